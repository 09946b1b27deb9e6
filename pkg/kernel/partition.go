package kernel

import (
	"time"

	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// PartitionCreate carries the inputs for a new partition. A nil Ordinal asks
// the store to assign the next unused one.
type PartitionCreate struct {
	Ordinal   *uint32
	Why       string
	What      string
	How       string
	Normative bool

	_ struct{}
}

// PartitionUpdate carries a partial partition update. Nil fields are
// untouched. Ordinal is present only so the immutability rule can be
// reported as a typed error instead of silently ignored.
type PartitionUpdate struct {
	Why       *string
	What      *string
	How       *string
	Normative *bool
	Ordinal   *uint32

	_ struct{}
}

// CreatePartition adds a partition to an active ettle. The what and how
// fields are required; why is optional but must be non-blank when provided.
// Ordinals are unique over the active set and, by default, never reassigned
// once retired by a tombstoned partition.
func (s *Store) CreatePartition(ettleID string, in PartitionCreate) (string, error) {
	e, err := s.GetEttle(ettleID)
	if err != nil {
		return "", err
	}
	if emptyOrBlank(in.What) {
		return "", status.ErrInvalidInput.WrapMessage("what must be non-empty")
	}
	if emptyOrBlank(in.How) {
		return "", status.ErrInvalidInput.WrapMessage("how must be non-empty")
	}
	if blankButProvided(in.Why) {
		return "", status.ErrInvalidInput.WrapMessage("why must be non-empty when provided")
	}

	var ordinal uint32
	if in.Ordinal != nil {
		ordinal = *in.Ordinal
		if err := s.checkOrdinalFree(e, ordinal); err != nil {
			return "", err
		}
	} else {
		ordinal, err = s.NextOrdinal(ettleID)
		if err != nil {
			return "", err
		}
	}

	now := time.Now().UTC()
	p := &model.Partition{
		ID:        model.NewPartitionID(),
		EttleID:   e.ID,
		Ordinal:   ordinal,
		Normative: in.Normative,
		Why:       in.Why,
		What:      in.What,
		How:       in.How,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.partitions[p.ID] = p
	e.Partitions = append(e.Partitions, p.ID)
	s.touchEttle(e)
	return p.ID, nil
}

func (s *Store) checkOrdinalFree(e *model.Ettle, ordinal uint32) error {
	for _, pid := range e.Partitions {
		p, ok := s.partitions[pid]
		if !ok {
			return status.ErrInternal.WrapMessage(
				"ettle %q lists unknown partition %q", e.ID, pid)
		}
		if p.Ordinal != ordinal {
			continue
		}
		if !p.Deleted {
			return status.ErrConstraintViolation.WrapMessage(
				"ordinal %d already active on ettle %q", ordinal, e.ID)
		}
		if !s.cfg.AllowOrdinalReuse {
			return status.ErrOrdinalRetired.WrapMessage(
				"ordinal %d on ettle %q", ordinal, e.ID)
		}
	}
	return nil
}

// UpdatePartition applies a partial update to an active partition. Content
// fields may be changed but never blanked; the ordinal is immutable.
func (s *Store) UpdatePartition(id string, upd PartitionUpdate) error {
	p, err := s.GetPartition(id)
	if err != nil {
		return err
	}
	if upd.Ordinal != nil {
		return status.ErrOrdinalImmutable.WrapMessage("partition %q", id)
	}
	if upd.Why != nil && blankButProvided(*upd.Why) {
		return status.ErrInvalidInput.WrapMessage("why must be non-empty when provided")
	}
	if upd.What != nil && emptyOrBlank(*upd.What) {
		return status.ErrInvalidInput.WrapMessage("what must be non-empty")
	}
	if upd.How != nil && emptyOrBlank(*upd.How) {
		return status.ErrInvalidInput.WrapMessage("how must be non-empty")
	}
	if upd.Why != nil {
		p.Why = *upd.Why
	}
	if upd.What != nil {
		p.What = *upd.What
	}
	if upd.How != nil {
		p.How = *upd.How
	}
	if upd.Normative != nil {
		p.Normative = *upd.Normative
	}
	s.touchPartition(p)
	return nil
}

// DeletePartition tombstones a partition. The record and its ordinal are
// preserved; the partition merely drops out of the active projection.
func (s *Store) DeletePartition(id string) error {
	p, err := s.deletablePartition(id)
	if err != nil {
		return err
	}
	p.Deleted = true
	s.touchPartition(p)
	if e, ok := s.ettles[p.EttleID]; ok {
		s.touchEttle(e)
	}
	return nil
}

// HardDeletePartition removes a partition from storage and from its owner's
// membership list entirely. Subject to the same safety checks as tombstoning.
func (s *Store) HardDeletePartition(id string) error {
	p, err := s.deletablePartition(id)
	if err != nil {
		return err
	}
	e, ok := s.ettles[p.EttleID]
	if !ok {
		return status.ErrInternal.WrapMessage(
			"partition %q owned by unknown ettle %q", id, p.EttleID)
	}
	for i, pid := range e.Partitions {
		if pid == id {
			e.Partitions = append(e.Partitions[:i:i], e.Partitions[i+1:]...)
			break
		}
	}
	delete(s.partitions, id)
	delete(s.constraintRefs, id)
	s.touchEttle(e)
	return nil
}

// deletablePartition runs the shared safety checks for both deletion modes:
// ordinal 0 is protected, and a partition that is the sole active mapping to
// an active child may not be removed.
func (s *Store) deletablePartition(id string) (*model.Partition, error) {
	p, err := s.GetPartition(id)
	if err != nil {
		return nil, err
	}
	if p.Ordinal == 0 {
		return nil, status.ErrConstraintViolation.WrapMessage(
			"partition %q has ordinal 0 and may not be deleted", id)
	}
	if p.ChildID != "" {
		if child, ok := s.ettles[p.ChildID]; ok && !child.Deleted {
			return nil, status.ErrStrandsChild.WrapMessage(
				"partition %q is the sole mapping to active child %q", id, p.ChildID)
		}
	}
	return p, nil
}
