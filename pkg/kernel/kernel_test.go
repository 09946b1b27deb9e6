package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nickout/ettlex/pkg/errors"
	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

func mustCreateEttle(t *testing.T, s *Store, title string) string {
	t.Helper()
	id, err := s.CreateEttle(title, nil)
	require.NoError(t, err)
	return id
}

func mustCreatePartition(t *testing.T, s *Store, ettleID string, in PartitionCreate) string {
	t.Helper()
	id, err := s.CreatePartition(ettleID, in)
	require.NoError(t, err)
	return id
}

func constraintRef(id string, ordinal uint32) model.ConstraintRef {
	return model.ConstraintRef{
		ConstraintID:  id,
		Family:        "policy",
		Kind:          "invariant",
		Scope:         "partition",
		PayloadDigest: "deadbeef",
		Ordinal:       ordinal,
	}
}

func contentPartition() PartitionCreate {
	return PartitionCreate{
		Why:       "rationale",
		What:      "behavioral contract",
		How:       "method",
		Normative: true,
	}
}

func TestCreateEttle(t *testing.T) {
	s := New()

	id := mustCreateEttle(t, s, "root")
	e, err := s.GetEttle(id)
	require.NoError(t, err)
	require.Equal(t, "root", e.Title)
	require.True(t, e.IsRoot())

	// ordinal-0 partition comes for free
	active, err := s.ActivePartitions(e)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.EqualValues(t, 0, active[0].Ordinal)
	require.True(t, active[0].Normative)

	require.NoError(t, s.ValidateTree())
}

func TestCreateEttleInvalidTitle(t *testing.T) {
	s := New()
	for _, title := range []string{"", "   ", "\t\n"} {
		_, err := s.CreateEttle(title, nil)
		require.True(t, errors.Is(err, status.ErrInvalidTitle), "title %q", title)
	}
}

func TestUpdateEttle(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "before")

	title := "after"
	require.NoError(t, s.UpdateEttle(id, EttleUpdate{
		Title:    &title,
		Metadata: map[string]string{"owner": "core"},
	}))
	e, err := s.GetEttle(id)
	require.NoError(t, err)
	require.Equal(t, "after", e.Title)
	require.Equal(t, "core", e.Metadata["owner"])

	// empty value removes the key
	require.NoError(t, s.UpdateEttle(id, EttleUpdate{Metadata: map[string]string{"owner": ""}}))
	e, err = s.GetEttle(id)
	require.NoError(t, err)
	require.NotContains(t, e.Metadata, "owner")

	blank := "  "
	err = s.UpdateEttle(id, EttleUpdate{Title: &blank})
	require.True(t, errors.Is(err, status.ErrInvalidTitle))
}

func TestDeleteEttleTombstones(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "gone")

	require.NoError(t, s.DeleteEttle(id))

	_, err := s.GetEttle(id)
	require.True(t, errors.Is(err, status.ErrDeleted))

	// the record survives tombstoning
	e, ok := s.GetEttleAny(id)
	require.True(t, ok)
	require.True(t, e.Deleted)

	err = s.DeleteEttle(id)
	require.True(t, errors.Is(err, status.ErrDeleted))
}

func TestDeleteEttleWithChildren(t *testing.T) {
	s := New()
	parent := mustCreateEttle(t, s, "parent")
	child := mustCreateEttle(t, s, "child")

	pe, err := s.GetEttle(parent)
	require.NoError(t, err)
	active, err := s.ActivePartitions(pe)
	require.NoError(t, err)
	require.NoError(t, s.LinkChild(active[0].ID, child))

	err = s.DeleteEttle(parent)
	require.True(t, errors.Is(err, status.ErrHasChildren))

	// tombstoning the child clears the way
	require.NoError(t, s.DeleteEttle(child))
	require.NoError(t, s.DeleteEttle(parent))
}

func TestCreatePartitionOrdinals(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "node")

	// auto-assignment continues past the auto-created ordinal 0
	p1 := mustCreatePartition(t, s, id, contentPartition())
	p, err := s.GetPartition(p1)
	require.NoError(t, err)
	require.EqualValues(t, 1, p.Ordinal)

	// explicit duplicate of an active ordinal
	one := uint32(1)
	in := contentPartition()
	in.Ordinal = &one
	_, err = s.CreatePartition(id, in)
	require.True(t, errors.Is(err, status.ErrConstraintViolation))

	// a tombstoned partition retires its ordinal; the retired case is a
	// specialization of the ordinal-uniqueness constraint
	require.NoError(t, s.DeletePartition(p1))
	_, err = s.CreatePartition(id, in)
	require.True(t, errors.Is(err, status.ErrOrdinalRetired))
	require.True(t, errors.Is(err, status.ErrConstraintViolation))

	// auto-assignment skips retired ordinals too
	p2 := mustCreatePartition(t, s, id, contentPartition())
	p, err = s.GetPartition(p2)
	require.NoError(t, err)
	require.EqualValues(t, 2, p.Ordinal)
}

func TestCreatePartitionOrdinalReusePolicy(t *testing.T) {
	s := NewWithConfig(Config{AllowOrdinalReuse: true})
	id := mustCreateEttle(t, s, "node")

	p1 := mustCreatePartition(t, s, id, contentPartition())
	require.NoError(t, s.DeletePartition(p1))

	one := uint32(1)
	in := contentPartition()
	in.Ordinal = &one
	_, err := s.CreatePartition(id, in)
	require.NoError(t, err)
}

func TestCreatePartitionValidation(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "node")

	in := contentPartition()
	in.What = " "
	_, err := s.CreatePartition(id, in)
	require.True(t, errors.Is(err, status.ErrInvalidInput))

	in = contentPartition()
	in.How = ""
	_, err = s.CreatePartition(id, in)
	require.True(t, errors.Is(err, status.ErrInvalidInput))

	// why is optional, but not blank
	in = contentPartition()
	in.Why = ""
	_, err = s.CreatePartition(id, in)
	require.NoError(t, err)

	in = contentPartition()
	in.Why = "   "
	_, err = s.CreatePartition(id, in)
	require.True(t, errors.Is(err, status.ErrInvalidInput))

	_, err = s.CreatePartition("ettle-nope", contentPartition())
	require.True(t, errors.Is(err, status.ErrNotFound))
}

func TestUpdatePartition(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "node")
	pid := mustCreatePartition(t, s, id, contentPartition())

	what := "updated contract"
	require.NoError(t, s.UpdatePartition(pid, PartitionUpdate{What: &what}))
	p, err := s.GetPartition(pid)
	require.NoError(t, err)
	require.Equal(t, "updated contract", p.What)

	two := uint32(2)
	err = s.UpdatePartition(pid, PartitionUpdate{Ordinal: &two})
	require.True(t, errors.Is(err, status.ErrOrdinalImmutable))

	blank := ""
	err = s.UpdatePartition(pid, PartitionUpdate{How: &blank})
	require.True(t, errors.Is(err, status.ErrInvalidInput))
}

func TestDeletePartitionStrandsChild(t *testing.T) {
	s := New()
	parent := mustCreateEttle(t, s, "parent")
	child := mustCreateEttle(t, s, "child")
	pid := mustCreatePartition(t, s, parent, contentPartition())
	require.NoError(t, s.LinkChild(pid, child))

	// Scenario: the sole mapping partition may not be removed while the
	// child is active, in either deletion mode.
	err := s.DeletePartition(pid)
	require.True(t, errors.Is(err, status.ErrStrandsChild))
	err = s.HardDeletePartition(pid)
	require.True(t, errors.Is(err, status.ErrStrandsChild))
	require.NoError(t, s.ValidateTree())

	// once the child is tombstoned the mapping may go
	require.NoError(t, s.DeleteEttle(child))
	require.NoError(t, s.DeletePartition(pid))
	require.NoError(t, s.ValidateTree())
}

func TestDeletePartitionOrdinalZeroProtected(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "node")
	e, err := s.GetEttle(id)
	require.NoError(t, err)
	active, err := s.ActivePartitions(e)
	require.NoError(t, err)

	err = s.DeletePartition(active[0].ID)
	require.True(t, errors.Is(err, status.ErrConstraintViolation))
	err = s.HardDeletePartition(active[0].ID)
	require.True(t, errors.Is(err, status.ErrConstraintViolation))
}

func TestHardDeletePartition(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "node")
	pid := mustCreatePartition(t, s, id, contentPartition())

	require.NoError(t, s.HardDeletePartition(pid))

	// fully gone: not in storage, not in the membership list
	require.False(t, s.HasPartition(pid))
	e, err := s.GetEttle(id)
	require.NoError(t, err)
	require.NotContains(t, e.Partitions, pid)
	require.NoError(t, s.ValidateTree())
}

func TestActivePartitionsSortedAndFiltered(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "node")

	five, three := uint32(5), uint32(3)
	inFive := contentPartition()
	inFive.Ordinal = &five
	pFive := mustCreatePartition(t, s, id, inFive)
	inThree := contentPartition()
	inThree.Ordinal = &three
	pThree := mustCreatePartition(t, s, id, inThree)

	e, err := s.GetEttle(id)
	require.NoError(t, err)
	active, err := s.ActivePartitions(e)
	require.NoError(t, err)
	require.Len(t, active, 3)
	require.Equal(t, []string{e.Partitions[0], pThree, pFive},
		[]string{active[0].ID, active[1].ID, active[2].ID})

	require.NoError(t, s.DeletePartition(pThree))
	active, err = s.ActivePartitions(e)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, pFive, active[1].ID)
}

func TestSetParent(t *testing.T) {
	s := New()
	parent := mustCreateEttle(t, s, "parent")
	child := mustCreateEttle(t, s, "child")
	other := mustCreateEttle(t, s, "other")

	require.NoError(t, s.SetParent(child, parent))

	err := s.SetParent(child, other)
	require.True(t, errors.Is(err, status.ErrIllegalReparent))

	// direct cycle
	err = s.SetParent(parent, child)
	require.True(t, errors.Is(err, status.ErrCycleDetected))
}

func TestSetParentMultiHopCycle(t *testing.T) {
	s := New()
	a := mustCreateEttle(t, s, "a")
	b := mustCreateEttle(t, s, "b")
	c := mustCreateEttle(t, s, "c")

	require.NoError(t, s.SetParent(b, a))
	require.NoError(t, s.SetParent(c, b))

	err := s.SetParent(a, c)
	require.True(t, errors.Is(err, status.ErrCycleDetected))
}

func TestLinkChild(t *testing.T) {
	s := New()
	parent := mustCreateEttle(t, s, "parent")
	child := mustCreateEttle(t, s, "child")
	pid := mustCreatePartition(t, s, parent, contentPartition())

	require.NoError(t, s.LinkChild(pid, child))
	p, err := s.GetPartition(pid)
	require.NoError(t, err)
	require.Equal(t, child, p.ChildID)
	e, err := s.GetEttle(child)
	require.NoError(t, err)
	require.Equal(t, parent, e.ParentID)

	// same edge twice
	err = s.LinkChild(pid, child)
	require.True(t, errors.Is(err, status.ErrDuplicateMapping))

	// a second active mapping to the same child
	pid2 := mustCreatePartition(t, s, parent, contentPartition())
	err = s.LinkChild(pid2, child)
	require.True(t, errors.Is(err, status.ErrDuplicateMapping))

	// a mapping from a different would-be parent
	other := mustCreateEttle(t, s, "other")
	pid3 := mustCreatePartition(t, s, other, contentPartition())
	err = s.LinkChild(pid3, child)
	require.True(t, errors.Is(err, status.ErrIllegalReparent))

	require.NoError(t, s.ValidateTree())
}

func TestLinkChildCycle(t *testing.T) {
	s := New()
	a := mustCreateEttle(t, s, "a")
	b := mustCreateEttle(t, s, "b")
	pa := mustCreatePartition(t, s, a, contentPartition())
	require.NoError(t, s.LinkChild(pa, b))

	pb := mustCreatePartition(t, s, b, contentPartition())
	err := s.LinkChild(pb, a)
	require.True(t, errors.Is(err, status.ErrCycleDetected))

	err = s.LinkChild(pb, b)
	require.True(t, errors.Is(err, status.ErrCycleDetected))
}

func TestUnlinkChild(t *testing.T) {
	s := New()
	parent := mustCreateEttle(t, s, "parent")
	child := mustCreateEttle(t, s, "child")
	pid := mustCreatePartition(t, s, parent, contentPartition())
	require.NoError(t, s.LinkChild(pid, child))

	require.NoError(t, s.UnlinkChild(pid))
	e, err := s.GetEttle(child)
	require.NoError(t, err)
	require.True(t, e.IsRoot())

	err = s.UnlinkChild(pid)
	require.True(t, errors.Is(err, status.ErrNotFound))
	require.NoError(t, s.ValidateTree())
}

func TestChildren(t *testing.T) {
	s := New()
	parent := mustCreateEttle(t, s, "parent")
	c1 := mustCreateEttle(t, s, "c1")
	c2 := mustCreateEttle(t, s, "c2")
	p1 := mustCreatePartition(t, s, parent, contentPartition())
	p2 := mustCreatePartition(t, s, parent, contentPartition())
	require.NoError(t, s.LinkChild(p1, c1))
	require.NoError(t, s.LinkChild(p2, c2))

	kids, err := s.Children(parent)
	require.NoError(t, err)
	require.Equal(t, []string{c1, c2}, kids)

	require.NoError(t, s.DeleteEttle(c2))
	kids, err = s.Children(parent)
	require.NoError(t, err)
	require.Equal(t, []string{c1}, kids)
}

func TestConstraintAttachDetach(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "node")
	pid := mustCreatePartition(t, s, id, contentPartition())

	refA := constraintRef("c-a", 2)
	refB := constraintRef("c-b", 1)
	require.NoError(t, s.AttachConstraint(pid, refA))
	require.NoError(t, s.AttachConstraint(pid, refB))

	err := s.AttachConstraint(pid, refA)
	require.True(t, errors.Is(err, status.ErrConstraintViolation))

	// listed by ordinal, not by attach order
	refs := s.ConstraintRefs(pid)
	require.Len(t, refs, 2)
	require.Equal(t, "c-b", refs[0].ConstraintID)
	require.Equal(t, "c-a", refs[1].ConstraintID)

	require.NoError(t, s.DetachConstraint(pid, "c-a"))
	err = s.DetachConstraint(pid, "c-a")
	require.True(t, errors.Is(err, status.ErrNotFound))
}

func TestCloneIsolation(t *testing.T) {
	s := New()
	id := mustCreateEttle(t, s, "node")
	pid := mustCreatePartition(t, s, id, contentPartition())
	require.NoError(t, s.AttachConstraint(pid, constraintRef("c-a", 0)))

	c := s.Clone()
	mustCreatePartition(t, c, id, contentPartition())
	require.NoError(t, c.DeletePartition(pid))
	what := "changed"
	cp, err := s.GetPartition(pid)
	require.NoError(t, err)
	require.NotEqual(t, what, cp.What)
	require.NoError(t, s.UpdatePartition(pid, PartitionUpdate{What: &what}))

	// the clone saw none of the origin's later edits and vice versa
	_, err = c.GetPartition(pid)
	require.True(t, errors.Is(err, status.ErrDeleted))
	p, err := s.GetPartition(pid)
	require.NoError(t, err)
	require.Equal(t, "changed", p.What)
	e, err := s.GetEttle(id)
	require.NoError(t, err)
	require.Len(t, e.Partitions, 2)
	ce, err := c.GetEttle(id)
	require.NoError(t, err)
	require.Len(t, ce.Partitions, 3)
}

func TestValidateTreeReportsAllViolations(t *testing.T) {
	s := New()
	a := mustCreateEttle(t, s, "a")
	b := mustCreateEttle(t, s, "b")

	// corrupt the store directly: dangling membership entry plus a parent
	// pointer with no mapping partition
	ea, _ := s.GetEttleAny(a)
	ea.Partitions = append(ea.Partitions, "ep-dangling")
	eb, _ := s.GetEttleAny(b)
	eb.ParentID = a

	err := s.ValidateTree()
	require.Error(t, err)
	require.True(t, errors.Is(err, status.ErrConstraintViolation))
	require.True(t, errors.Is(err, status.ErrMissingMapping))
}

func TestValidateTreeMappingSideIntegrity(t *testing.T) {
	// a mapping to an ettle that does not exist
	s := New()
	root := mustCreateEttle(t, s, "root")
	pid := mustCreatePartition(t, s, root, contentPartition())
	s.partitions[pid].ChildID = "ettle-ghost"

	err := s.ValidateTree()
	require.Error(t, err)
	require.True(t, errors.Is(err, status.ErrConstraintViolation))

	// a one-way edge: the partition maps to a child whose parent pointer
	// was never set
	s2 := New()
	root2 := mustCreateEttle(t, s2, "root")
	child := mustCreateEttle(t, s2, "child")
	pid2 := mustCreatePartition(t, s2, root2, contentPartition())
	s2.partitions[pid2].ChildID = child

	err = s2.ValidateTree()
	require.Error(t, err)
	require.True(t, errors.Is(err, status.ErrConstraintViolation))

	// repairing the child side makes the tree sound again
	ec, _ := s2.GetEttleAny(child)
	ec.ParentID = root2
	require.NoError(t, s2.ValidateTree())

	// a child claiming a different parent is still a violation
	other := mustCreateEttle(t, s2, "other")
	ec.ParentID = other
	require.Error(t, s2.ValidateTree())
}

func TestDeleteEttleBlockedByParentPointer(t *testing.T) {
	s := New()
	parent := mustCreateEttle(t, s, "parent")
	child := mustCreateEttle(t, s, "child")

	// attached with a parent pointer only, no mapping partition yet
	require.NoError(t, s.SetParent(child, parent))

	err := s.DeleteEttle(parent)
	require.True(t, errors.Is(err, status.ErrHasChildren))

	// tombstoning the child clears the way
	require.NoError(t, s.DeleteEttle(child))
	require.NoError(t, s.DeleteEttle(parent))
}
