// Package kernel holds the in-memory canonical tree of ettles and
// partitions, with full CRUD, refinement wiring and invariant validation.
//
// A Store is a pure in-memory value: no I/O, no locking, single-threaded
// by design. Mutations happen through the operation methods in this
// package; the apply package wraps them in an all-or-nothing boundary.
package kernel

import (
	"sort"
	"time"

	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// Config carries kernel policy seams.
type Config struct {
	// AllowOrdinalReuse permits re-assigning an ordinal retired by a
	// tombstoned partition. Off by default: retired ordinals stay retired.
	AllowOrdinalReuse bool `json:"allowOrdinalReuse,omitempty" yaml:"allowOrdinalReuse,omitempty"`
}

// Store is the in-memory canonical model. The zero value is not usable;
// construct with New or NewWithConfig.
type Store struct {
	cfg        Config
	ettles     map[string]*model.Ettle
	partitions map[string]*model.Partition

	// constraint attachments per partition id, kept in attach order
	constraintRefs map[string][]model.ConstraintRef
}

// New creates an empty store with default config.
func New() *Store {
	return NewWithConfig(Config{})
}

// NewWithConfig creates an empty store with the given config.
func NewWithConfig(cfg Config) *Store {
	return &Store{
		cfg:            cfg,
		ettles:         make(map[string]*model.Ettle),
		partitions:     make(map[string]*model.Partition),
		constraintRefs: make(map[string][]model.ConstraintRef),
	}
}

// GetEttle returns an active ettle by id.
func (s *Store) GetEttle(id string) (*model.Ettle, error) {
	e, ok := s.ettles[id]
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("ettle %q", id)
	}
	if e.Deleted {
		return nil, status.ErrDeleted.WrapMessage("ettle %q", id)
	}
	return e, nil
}

// GetEttleAny returns an ettle by id regardless of tombstone state.
func (s *Store) GetEttleAny(id string) (*model.Ettle, bool) {
	e, ok := s.ettles[id]
	return e, ok
}

// GetPartition returns an active partition by id.
func (s *Store) GetPartition(id string) (*model.Partition, error) {
	p, ok := s.partitions[id]
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("partition %q", id)
	}
	if p.Deleted {
		return nil, status.ErrDeleted.WrapMessage("partition %q", id)
	}
	return p, nil
}

// GetPartitionAny returns a partition by id regardless of tombstone state.
func (s *Store) GetPartitionAny(id string) (*model.Partition, bool) {
	p, ok := s.partitions[id]
	return p, ok
}

// HasPartition tells whether a partition record exists in storage at all,
// tombstoned or not. Used to observe hard-delete behavior.
func (s *Store) HasPartition(id string) bool {
	_, ok := s.partitions[id]
	return ok
}

// EttleIDs returns the ids of all ettles (tombstoned included), sorted.
// Sorted output keeps every caller on this path deterministic.
func (s *Store) EttleIDs() []string {
	ids := make([]string, 0, len(s.ettles))
	for id := range s.ettles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PartitionIDs returns the ids of all partitions (tombstoned included), sorted.
func (s *Store) PartitionIDs() []string {
	ids := make([]string, 0, len(s.partitions))
	for id := range s.partitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListEttles returns all active ettles in sorted-id order.
func (s *Store) ListEttles() []*model.Ettle {
	var out []*model.Ettle
	for _, id := range s.EttleIDs() {
		if e := s.ettles[id]; !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}

// AttachConstraint records a constraint reference on an active partition.
func (s *Store) AttachConstraint(partitionID string, ref model.ConstraintRef) error {
	if _, err := s.GetPartition(partitionID); err != nil {
		return err
	}
	for _, existing := range s.constraintRefs[partitionID] {
		if existing.ConstraintID == ref.ConstraintID {
			return status.ErrConstraintViolation.WrapMessage(
				"constraint %q already attached to partition %q", ref.ConstraintID, partitionID)
		}
	}
	s.constraintRefs[partitionID] = append(s.constraintRefs[partitionID], ref)
	return nil
}

// DetachConstraint removes a constraint reference from a partition.
func (s *Store) DetachConstraint(partitionID, constraintID string) error {
	refs := s.constraintRefs[partitionID]
	for i, ref := range refs {
		if ref.ConstraintID == constraintID {
			s.constraintRefs[partitionID] = append(refs[:i:i], refs[i+1:]...)
			return nil
		}
	}
	return status.ErrNotFound.WrapMessage(
		"constraint %q not attached to partition %q", constraintID, partitionID)
}

// ConstraintRefs returns the constraint references attached to a partition,
// ordered by declared ordinal then constraint id.
func (s *Store) ConstraintRefs(partitionID string) []model.ConstraintRef {
	refs := append([]model.ConstraintRef(nil), s.constraintRefs[partitionID]...)
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Ordinal != refs[j].Ordinal {
			return refs[i].Ordinal < refs[j].Ordinal
		}
		return refs[i].ConstraintID < refs[j].ConstraintID
	})
	return refs
}

// Clone deep-copies the store. The apply boundary mutates a clone and
// swaps it in on success, so a failed command never leaves a partial edit
// visible to the caller.
func (s *Store) Clone() *Store {
	c := NewWithConfig(s.cfg)
	for id, e := range s.ettles {
		ce := *e
		ce.Partitions = append([]string(nil), e.Partitions...)
		if e.Metadata != nil {
			ce.Metadata = make(map[string]string, len(e.Metadata))
			for k, v := range e.Metadata {
				ce.Metadata[k] = v
			}
		}
		c.ettles[id] = &ce
	}
	for id, p := range s.partitions {
		cp := *p
		c.partitions[id] = &cp
	}
	for id, refs := range s.constraintRefs {
		c.constraintRefs[id] = append([]model.ConstraintRef(nil), refs...)
	}
	return c
}

func (s *Store) touchEttle(e *model.Ettle) { e.UpdatedAt = time.Now().UTC() }

func (s *Store) touchPartition(p *model.Partition) { p.UpdatedAt = time.Now().UTC() }
