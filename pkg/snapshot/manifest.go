// Package snapshot builds canonical manifests and couples the blob store
// with the ledger into one atomic commit operation.
package snapshot

import (
	"sort"
	"time"

	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
	"github.com/nickout/ettlex/pkg/traversal"
)

// ManifestSchemaVersion identifies the manifest document layout.
const ManifestSchemaVersion = "ettlex-manifest/v1"

// StorageSchemaVersion identifies the durable storage layout referenced by
// the manifest.
const StorageSchemaVersion = 1

// PartitionEntry is one partition of the traversal as recorded in a
// manifest.
type PartitionEntry struct {
	ID        string `json:"id" yaml:"id"`
	Ordinal   uint32 `json:"ordinal" yaml:"ordinal"`
	Normative bool   `json:"normative" yaml:"normative"`
	Digest    string `json:"digest" yaml:"digest"`

	_ struct{}
}

// EttleEntry is one traversal step: an ettle and its selected partitions in
// ordinal order.
type EttleEntry struct {
	EttleID    string           `json:"ettleId" yaml:"ettleId"`
	Partitions []PartitionEntry `json:"partitions" yaml:"partitions"`

	_ struct{}
}

// FamilyConstraints groups the constraint references of one family. The
// family tag is an open string; unknown families pass through untouched.
type FamilyConstraints struct {
	Family    string                `json:"family" yaml:"family"`
	Declared  []model.ConstraintRef `json:"declared" yaml:"declared"`
	Effective []model.ConstraintRef `json:"effective" yaml:"effective"`
	Resolved  []model.ConstraintRef `json:"resolved" yaml:"resolved"`

	_ struct{}
}

// ConstraintsEnvelope carries every constraint family touching the
// traversal, ordered lexicographically by family.
type ConstraintsEnvelope struct {
	Families []FamilyConstraints `json:"families" yaml:"families"`

	_ struct{}
}

// Manifest is the immutable snapshot document. Every list field is present
// even when empty; absence is not part of the format. ManifestDigest is
// excluded from the stored bytes (it is the digest of those bytes and
// doubles as the blob address); SemanticManifestDigest is stored and is
// computed with CreatedAt blanked, making it the stable comparison key.
type Manifest struct {
	SchemaVersion          string              `json:"schemaVersion" yaml:"schemaVersion"`
	StorageSchemaVersion   int                 `json:"storageSchemaVersion" yaml:"storageSchemaVersion"`
	CreatedAt              string              `json:"createdAt" yaml:"createdAt"`
	PolicyRef              string              `json:"policyRef" yaml:"policyRef"`
	ProfileRef             string              `json:"profileRef" yaml:"profileRef"`
	RootEttleID            string              `json:"rootEttleId" yaml:"rootEttleId"`
	Traversal              []EttleEntry        `json:"traversal" yaml:"traversal"`
	Constraints            ConstraintsEnvelope `json:"constraints" yaml:"constraints"`
	Coverage               []string            `json:"coverage" yaml:"coverage"`
	Exceptions             []string            `json:"exceptions" yaml:"exceptions"`
	EPTDigest              string              `json:"eptDigest" yaml:"eptDigest"`
	SemanticManifestDigest string              `json:"semanticManifestDigest" yaml:"semanticManifestDigest"`
	ManifestDigest         string              `json:"manifestDigest,omitempty" yaml:"manifestDigest,omitempty"`
	SeedProvenanceDigest   string              `json:"seedProvenanceDigest,omitempty" yaml:"seedProvenanceDigest,omitempty"`

	_ struct{}
}

// BuildInput carries everything the manifest builder consumes.
type BuildInput struct {
	Store                *kernel.Store
	RootEttleID          string
	RT                   []string
	EPT                  []string
	Constraints          ConstraintsEnvelope
	PolicyRef            string
	ProfileRef           string
	SeedProvenanceDigest string
	CreatedAt            time.Time

	_ struct{}
}

// BuildManifest assembles a manifest from a traversal computation, fills
// every required field, and computes all three digests. The returned bytes
// are the exact canonical form to persist; their digest is the manifest
// digest.
func BuildManifest(in BuildInput) (*Manifest, []byte, error) {
	if len(in.RT) == 0 || len(in.RT) != len(in.EPT) {
		return nil, nil, status.ErrInternal.WrapMessage(
			"traversal shape mismatch: %d ettles, %d partitions", len(in.RT), len(in.EPT))
	}

	entries := make([]EttleEntry, 0, len(in.RT))
	for i, eid := range in.RT {
		p, err := in.Store.GetPartition(in.EPT[i])
		if err != nil {
			return nil, nil, err
		}
		if p.EttleID != eid {
			return nil, nil, status.ErrInternal.WrapMessage(
				"partition %q not owned by traversal ettle %q", p.ID, eid)
		}
		d, err := traversal.PartitionDigest(p)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, EttleEntry{
			EttleID: eid,
			Partitions: []PartitionEntry{{
				ID:        p.ID,
				Ordinal:   p.Ordinal,
				Normative: p.Normative,
				Digest:    d,
			}},
		})
	}

	eptDigest, err := traversal.EPTDigest(in.Store, in.EPT)
	if err != nil {
		return nil, nil, err
	}

	m := &Manifest{
		SchemaVersion:        ManifestSchemaVersion,
		StorageSchemaVersion: StorageSchemaVersion,
		CreatedAt:            in.CreatedAt.UTC().Format(time.RFC3339Nano),
		PolicyRef:            in.PolicyRef,
		ProfileRef:           in.ProfileRef,
		RootEttleID:          in.RootEttleID,
		Traversal:            entries,
		Constraints:          normalizeEnvelope(in.Constraints),
		Coverage:             []string{},
		Exceptions:           []string{},
		EPTDigest:            eptDigest,
		SeedProvenanceDigest: in.SeedProvenanceDigest,
	}

	// semantic digest: timestamp blanked, digest fields empty
	semantic := *m
	semantic.CreatedAt = ""
	b, err := traversal.CanonicalMarshal(&semantic)
	if err != nil {
		return nil, nil, err
	}
	if m.SemanticManifestDigest, err = traversal.Sum(b); err != nil {
		return nil, nil, err
	}

	// manifest digest: the digest of the stored bytes themselves
	stored, err := traversal.CanonicalMarshal(m)
	if err != nil {
		return nil, nil, err
	}
	if m.ManifestDigest, err = traversal.Sum(stored); err != nil {
		return nil, nil, err
	}
	return m, stored, nil
}

// normalizeEnvelope sorts families lexicographically and every reference
// list by declared ordinal then id, and replaces nil lists with empty ones.
func normalizeEnvelope(env ConstraintsEnvelope) ConstraintsEnvelope {
	out := ConstraintsEnvelope{Families: make([]FamilyConstraints, 0, len(env.Families))}
	for _, fam := range env.Families {
		out.Families = append(out.Families, FamilyConstraints{
			Family:    fam.Family,
			Declared:  sortRefs(fam.Declared),
			Effective: sortRefs(fam.Effective),
			Resolved:  sortRefs(fam.Resolved),
		})
	}
	sort.Slice(out.Families, func(i, j int) bool {
		return out.Families[i].Family < out.Families[j].Family
	})
	return out
}

func sortRefs(refs []model.ConstraintRef) []model.ConstraintRef {
	out := make([]model.ConstraintRef, len(refs))
	copy(out, refs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].ConstraintID < out[j].ConstraintID
	})
	return out
}
