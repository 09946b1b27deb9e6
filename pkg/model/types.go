// Package model defines the canonical ettlex entities: ettles, partitions
// and snapshot ledger records. Types here are pure data and carry no
// behavior beyond trivial accessors, so every layer (kernel, storage,
// rendering) shares one vocabulary.
package model

import (
	"time"
)

// Ettle is a named node in the refinement tree. Each ettle owns an ordered
// set of partitions and has at most one structural parent, derived from the
// partition of the parent ettle that references it.
type Ettle struct {
	ID         string            `json:"id" yaml:"id"`
	Title      string            `json:"title" yaml:"title"`
	ParentID   string            `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Partitions []string          `json:"partitions" yaml:"partitions"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt" yaml:"updatedAt"`
	Deleted    bool              `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	_          struct{}
}

// IsRoot tells whether this ettle has no structural parent.
func (e *Ettle) IsRoot() bool {
	return e.ParentID == ""
}

// Partition is an ordered content unit owned by exactly one ettle.
// The ordinal is unique among the owner's active partitions and immutable
// once assigned. A partition optionally refines into a child ettle.
type Partition struct {
	ID        string    `json:"id" yaml:"id"`
	EttleID   string    `json:"ettleId" yaml:"ettleId"`
	Ordinal   uint32    `json:"ordinal" yaml:"ordinal"`
	ChildID   string    `json:"childId,omitempty" yaml:"childId,omitempty"`
	Normative bool      `json:"normative" yaml:"normative"`
	Why       string    `json:"why,omitempty" yaml:"why,omitempty"`
	What      string    `json:"what,omitempty" yaml:"what,omitempty"`
	How       string    `json:"how,omitempty" yaml:"how,omitempty"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
	Deleted   bool      `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	_         struct{}
}

// IsLeaf tells whether this partition refines into a child ettle.
func (p *Partition) IsLeaf() bool {
	return p.ChildID == ""
}

// SnapshotRecord is an immutable ledger row referencing a manifest in CAS.
// Rows are created by successful commits only, never updated, never deleted.
type SnapshotRecord struct {
	SnapshotID             string    `json:"snapshotId" yaml:"snapshotId"`
	RootEttleID            string    `json:"rootEttleId" yaml:"rootEttleId"`
	ManifestDigest         string    `json:"manifestDigest" yaml:"manifestDigest"`
	SemanticManifestDigest string    `json:"semanticManifestDigest" yaml:"semanticManifestDigest"`
	CreatedAt              time.Time `json:"createdAt" yaml:"createdAt"`
	ParentSnapshotID       string    `json:"parentSnapshotId,omitempty" yaml:"parentSnapshotId,omitempty"`
	PolicyRef              string    `json:"policyRef" yaml:"policyRef"`
	ProfileRef             string    `json:"profileRef" yaml:"profileRef"`
	Status                 string    `json:"status" yaml:"status"`
	_                      struct{}
}

// SnapshotStatusCommitted is the terminal status of a committed ledger row.
const SnapshotStatusCommitted = "committed"
