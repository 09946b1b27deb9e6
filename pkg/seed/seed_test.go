package seed

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nickout/ettlex/pkg/errors"
	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/status"
	"github.com/nickout/ettlex/pkg/traversal"
)

const minimalSeed = `
schema_version: 0
project:
  name: test
ettles:
  - id: ettle:root
    title: "Root"
    eps:
      - id: ep:root:0
        ordinal: 0
        normative: true
        why: "Why"
        what: "What"
        how: "How"
links: []
`

const linkedSeed = `
schema_version: 0
project:
  name: test
ettles:
  - id: ettle:root
    title: "Root"
    eps:
      - id: ep:root:0
        ordinal: 0
        normative: true
        why: "Root why"
        what: "Root what"
        how: "Root how"
      - id: ep:root:1
        ordinal: 1
        normative: true
        why: "Mapping why"
        what: "Mapping what"
        how: "Mapping how"
  - id: ettle:child
    title: "Child"
    eps:
      - id: ep:child:0
        ordinal: 0
        normative: false
        why: "Child why"
        what: "Child what"
        how: "Child how"
links:
  - parent: ettle:root
    parent_ep: ep:root:1
    child: ettle:child
`

func TestParseMinimal(t *testing.T) {
	s, err := Parse([]byte(minimalSeed))
	require.NoError(t, err)
	require.Equal(t, 0, s.SchemaVersion)
	require.Equal(t, "test", s.Project.Name)
	require.Len(t, s.Ettles, 1)
	require.Equal(t, "What", string(s.Ettles[0].EPs[0].What))
}

func TestParseWhatTypedBlock(t *testing.T) {
	typed := `
schema_version: 0
project:
  name: test
ettles:
  - id: ettle:1
    title: "Test"
    eps:
      - id: ep:1:0
        ordinal: 0
        normative: true
        why: "Why"
        what:
          text: "Typed block"
        how: "How"
links: []
`
	s, err := Parse([]byte(typed))
	require.NoError(t, err)
	require.Equal(t, "Typed block", string(s.Ettles[0].EPs[0].What))
}

func TestParseRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"bad version": `
schema_version: 3
project: {name: test}
ettles: []
links: []
`,
		"duplicate ordinal": `
schema_version: 0
project: {name: test}
ettles:
  - id: ettle:1
    title: "Test"
    eps:
      - {id: "ep:a", ordinal: 1, normative: true, why: w, what: w, how: h}
      - {id: "ep:b", ordinal: 1, normative: true, why: w, what: w, how: h}
links: []
`,
		"missing title": `
schema_version: 0
project: {name: test}
ettles:
  - id: ettle:1
    eps: []
links: []
`,
	} {
		_, err := Parse([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestDigestStableAcrossFormatting(t *testing.T) {
	s1, err := Parse([]byte(minimalSeed))
	require.NoError(t, err)
	d1, err := Digest(s1)
	require.NoError(t, err)
	d2, err := Digest(s1)
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	// declaration order does not matter
	reordered, err := Parse([]byte(linkedSeed))
	require.NoError(t, err)
	reordered.Ettles[0], reordered.Ettles[1] = reordered.Ettles[1], reordered.Ettles[0]
	original, err := Parse([]byte(linkedSeed))
	require.NoError(t, err)
	dA, err := Digest(original)
	require.NoError(t, err)
	dB, err := Digest(reordered)
	require.NoError(t, err)
	require.Equal(t, dA, dB)

	// content does
	changed, err := Parse([]byte(linkedSeed))
	require.NoError(t, err)
	changed.Ettles[0].EPs[0].What = "different"
	dC, err := Digest(changed)
	require.NoError(t, err)
	require.NotEqual(t, dA, dC)
}

func TestImportLinkedSeed(t *testing.T) {
	s, err := Parse([]byte(linkedSeed))
	require.NoError(t, err)

	res, err := NewImporter(nil).Import(kernel.New(), s, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Digest)
	require.NoError(t, res.State.ValidateTree())

	root := res.Mapping.Ettles["ettle:root"]
	child := res.Mapping.Ettles["ettle:child"]
	require.NotEmpty(t, root)
	require.NotEmpty(t, child)

	// the ordinal-0 content landed on the auto-created partition
	p0, err := res.State.GetPartition(res.Mapping.Partitions["ep:root:0"])
	require.NoError(t, err)
	require.EqualValues(t, 0, p0.Ordinal)
	require.Equal(t, "Root what", p0.What)

	// the link produced a traversable tree
	rt, err := traversal.ComputeRT(res.State, child)
	require.NoError(t, err)
	require.Equal(t, []string{root, child}, rt)
	ept, err := traversal.ComputeEPT(res.State, child, nil)
	require.NoError(t, err)
	require.Equal(t, res.Mapping.Partitions["ep:root:1"], ept[0])
	require.Equal(t, res.Mapping.Partitions["ep:child:0"], ept[1])
}

func TestImportDeterministic(t *testing.T) {
	s, err := Parse([]byte(linkedSeed))
	require.NoError(t, err)
	imp := NewImporter(nil)

	r1, err := imp.Import(kernel.New(), s, nil)
	require.NoError(t, err)
	r2, err := imp.Import(kernel.New(), s, nil)
	require.NoError(t, err)

	require.Equal(t, r1.Digest, r2.Digest)
	require.Len(t, r1.State.EttleIDs(), len(r2.State.EttleIDs()))

	// traversal digests agree run to run
	e1, err := traversal.ComputeEPT(r1.State, r1.Mapping.Ettles["ettle:child"], nil)
	require.NoError(t, err)
	e2, err := traversal.ComputeEPT(r2.State, r2.Mapping.Ettles["ettle:child"], nil)
	require.NoError(t, err)
	d1, err := traversal.EPTDigest(r1.State, e1)
	require.NoError(t, err)
	d2, err := traversal.EPTDigest(r2.State, e2)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestImportLeavesInputUntouchedOnFailure(t *testing.T) {
	s, err := Parse([]byte(linkedSeed))
	require.NoError(t, err)
	// sabotage: link through a partition handle that never gets imported
	s.Links[0].ParentEP = "ep:ghost"

	state := kernel.New()
	_, err = NewImporter(nil).Import(state, s, nil)
	require.True(t, errors.Is(err, status.ErrNotFound))
	require.Empty(t, state.EttleIDs())
}

func TestImportCrossSeedLink(t *testing.T) {
	first, err := Parse([]byte(minimalSeed))
	require.NoError(t, err)
	imp := NewImporter(nil)
	r1, err := imp.Import(kernel.New(), first, nil)
	require.NoError(t, err)

	second, err := Parse([]byte(`
schema_version: 0
project:
  name: follow-up
ettles:
  - id: ettle:leaf
    title: "Leaf"
    eps:
      - id: ep:leaf:0
        ordinal: 0
        normative: true
        why: "Why"
        what: "What"
        how: "How"
links:
  - parent: ettle:root
    parent_ep: ep:root:0
    child: ettle:leaf
`))
	require.NoError(t, err)

	// the second seed links against handles mapped by the first
	r2, err := imp.Import(r1.State, second, r1.Mapping)
	require.NoError(t, err)
	rt, err := traversal.ComputeRT(r2.State, r2.Mapping.Ettles["ettle:leaf"])
	require.NoError(t, err)
	require.Equal(t, r2.Mapping.Ettles["ettle:root"], rt[0])

	// re-importing the same handles is rejected
	_, err = imp.Import(r2.State, first, r2.Mapping)
	require.True(t, errors.Is(err, status.ErrConstraintViolation))
}
