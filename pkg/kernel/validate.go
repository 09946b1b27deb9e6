package kernel

import (
	"go.uber.org/multierr"

	"github.com/nickout/ettlex/pkg/status"
)

// ValidateTree sweeps the whole store for invariant violations and returns
// them aggregated, or nil when the tree is sound. It never stops at the
// first finding, so a caller sees every breach in one pass. Iteration is in
// sorted-id order to keep the report stable.
//
// Checked invariants:
//   - every partition's owner pointer resolves and the owner lists it
//   - every membership entry resolves and points back at the lister
//   - ordinal uniqueness over each ettle's active partitions
//   - single parent per ettle, consistent with the mapping partition
//   - every active mapping resolves to a child whose parent pointer
//     names the mapping partition's owner
//   - exactly one active mapping partition per refinement edge
//   - no child referenced by two active partitions
//   - no cycles in the parent closure
func (s *Store) ValidateTree() error {
	var errs error

	seenChild := map[string]string{}
	for _, pid := range s.PartitionIDs() {
		p := s.partitions[pid]
		owner, ok := s.ettles[p.EttleID]
		if !ok {
			errs = multierr.Append(errs, status.ErrConstraintViolation.WrapMessage(
				"partition %q owned by unknown ettle %q", pid, p.EttleID))
			continue
		}
		if !containsString(owner.Partitions, pid) {
			errs = multierr.Append(errs, status.ErrConstraintViolation.WrapMessage(
				"partition %q missing from membership list of ettle %q", pid, p.EttleID))
		}
		if p.Deleted || p.ChildID == "" {
			continue
		}
		child, ok := s.ettles[p.ChildID]
		if !ok {
			errs = multierr.Append(errs, status.ErrConstraintViolation.WrapMessage(
				"partition %q maps to unknown ettle %q", pid, p.ChildID))
		} else if child.ParentID != p.EttleID {
			errs = multierr.Append(errs, status.ErrConstraintViolation.WrapMessage(
				"partition %q maps to ettle %q which claims parent %q",
				pid, p.ChildID, child.ParentID))
		}
		if prev, dup := seenChild[p.ChildID]; dup {
			errs = multierr.Append(errs, status.ErrDuplicateMapping.WrapMessage(
				"ettle %q mapped by partitions %q and %q", p.ChildID, prev, pid))
		} else {
			seenChild[p.ChildID] = pid
		}
	}

	for _, eid := range s.EttleIDs() {
		e := s.ettles[eid]
		ordinals := map[uint32]string{}
		for _, pid := range e.Partitions {
			p, ok := s.partitions[pid]
			if !ok {
				errs = multierr.Append(errs, status.ErrConstraintViolation.WrapMessage(
					"ettle %q lists unknown partition %q", eid, pid))
				continue
			}
			if p.EttleID != eid {
				errs = multierr.Append(errs, status.ErrConstraintViolation.WrapMessage(
					"ettle %q lists partition %q owned by %q", eid, pid, p.EttleID))
			}
			if p.Deleted {
				continue
			}
			if prev, dup := ordinals[p.Ordinal]; dup {
				errs = multierr.Append(errs, status.ErrConstraintViolation.WrapMessage(
					"ettle %q has ordinal %d on partitions %q and %q", eid, p.Ordinal, prev, pid))
			} else {
				ordinals[p.Ordinal] = pid
			}
		}

		if e.Deleted {
			continue
		}
		if e.ParentID != "" {
			if err := s.validateParentEdge(e.ID, e.ParentID, seenChild); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		if err := s.validateAcyclic(eid); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// validateParentEdge checks one child's side of a refinement edge: the
// parent must exist and be active, and exactly one active partition of the
// parent must map to the child.
func (s *Store) validateParentEdge(childID, parentID string, seenChild map[string]string) error {
	parent, ok := s.ettles[parentID]
	if !ok {
		return status.ErrConstraintViolation.WrapMessage(
			"ettle %q has unknown parent %q", childID, parentID)
	}
	if parent.Deleted {
		return status.ErrConstraintViolation.WrapMessage(
			"ettle %q has tombstoned parent %q", childID, parentID)
	}
	mapping, ok := seenChild[childID]
	if !ok {
		return status.ErrMissingMapping.WrapMessage(
			"no active partition of %q maps to child %q", parentID, childID)
	}
	if p := s.partitions[mapping]; p != nil && p.EttleID != parentID {
		return status.ErrConstraintViolation.WrapMessage(
			"ettle %q claims parent %q but is mapped by partition %q of %q",
			childID, parentID, mapping, p.EttleID)
	}
	return nil
}

// validateAcyclic walks the parent chain of one ettle and reports a cycle
// if the walk revisits a node.
func (s *Store) validateAcyclic(id string) error {
	seen := map[string]bool{}
	cur := id
	for cur != "" {
		if seen[cur] {
			return status.ErrCycleDetected.WrapMessage(
				"parent chain of ettle %q is cyclic", id)
		}
		seen[cur] = true
		e, ok := s.ettles[cur]
		if !ok {
			break
		}
		cur = e.ParentID
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
