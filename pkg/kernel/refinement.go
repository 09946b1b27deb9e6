package kernel

import (
	"sort"

	"github.com/nickout/ettlex/pkg/status"
)

// SetParent assigns a structural parent to a currently parentless ettle.
// Reparenting is never implicit: a child with a parent must be unlinked
// first. The assignment is rejected when it would close a cycle.
func (s *Store) SetParent(childID, parentID string) error {
	child, err := s.GetEttle(childID)
	if err != nil {
		return err
	}
	if _, err := s.GetEttle(parentID); err != nil {
		return err
	}
	if child.ParentID != "" {
		return status.ErrIllegalReparent.WrapMessage(
			"ettle %q already has parent %q", childID, child.ParentID)
	}
	if err := s.wouldCycle(parentID, childID); err != nil {
		return err
	}
	child.ParentID = parentID
	s.touchEttle(child)
	return nil
}

// LinkChild wires a refinement edge: the partition's child reference is set
// and the child's parent pointer is set to the partition's owner. Enforces
// the one-to-one mapping between active partitions and children.
func (s *Store) LinkChild(partitionID, childID string) error {
	p, err := s.GetPartition(partitionID)
	if err != nil {
		return err
	}
	child, err := s.GetEttle(childID)
	if err != nil {
		return err
	}
	if p.ChildID == childID {
		return status.ErrDuplicateMapping.WrapMessage(
			"partition %q already maps to child %q", partitionID, childID)
	}
	if p.ChildID != "" {
		return status.ErrConstraintViolation.WrapMessage(
			"partition %q already maps to child %q", partitionID, p.ChildID)
	}
	if child.ParentID != "" && child.ParentID != p.EttleID {
		return status.ErrIllegalReparent.WrapMessage(
			"ettle %q already has parent %q", childID, child.ParentID)
	}
	for _, other := range s.activeMappingsTo(childID) {
		if other != partitionID {
			return status.ErrDuplicateMapping.WrapMessage(
				"ettle %q already mapped by partition %q", childID, other)
		}
	}
	if childID == p.EttleID {
		return status.ErrCycleDetected.WrapMessage(
			"partition %q may not map its own ettle %q", partitionID, childID)
	}
	if err := s.wouldCycle(p.EttleID, childID); err != nil {
		return err
	}
	p.ChildID = childID
	child.ParentID = p.EttleID
	s.touchPartition(p)
	s.touchEttle(child)
	return nil
}

// UnlinkChild removes a partition's refinement edge. The former child
// becomes a root.
func (s *Store) UnlinkChild(partitionID string) error {
	p, err := s.GetPartition(partitionID)
	if err != nil {
		return err
	}
	if p.ChildID == "" {
		return status.ErrNotFound.WrapMessage(
			"partition %q has no child mapping", partitionID)
	}
	if child, ok := s.ettles[p.ChildID]; ok && child.ParentID == p.EttleID {
		child.ParentID = ""
		s.touchEttle(child)
	}
	p.ChildID = ""
	s.touchPartition(p)
	return nil
}

// Children returns the ids of the active children of an ettle, derived from
// its active partitions' child references, in ordinal order.
func (s *Store) Children(ettleID string) ([]string, error) {
	e, err := s.GetEttle(ettleID)
	if err != nil {
		return nil, err
	}
	active, err := s.ActivePartitions(e)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range active {
		if p.ChildID == "" {
			continue
		}
		if child, ok := s.ettles[p.ChildID]; ok && !child.Deleted {
			out = append(out, p.ChildID)
		}
	}
	return out, nil
}

// activeMappingsTo returns the ids of all active partitions whose child
// reference points at the given ettle, in sorted order.
func (s *Store) activeMappingsTo(childID string) []string {
	var out []string
	for id, p := range s.partitions {
		if !p.Deleted && p.ChildID == childID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// wouldCycle walks the ancestor chain starting at startID and fails when it
// reaches forbiddenID or when the existing chain itself is cyclic. Covers
// multi-hop cycles, not just direct self-reference.
func (s *Store) wouldCycle(startID, forbiddenID string) error {
	seen := map[string]bool{}
	cur := startID
	for cur != "" {
		if cur == forbiddenID {
			return status.ErrCycleDetected.WrapMessage(
				"linking %q under %q closes a cycle", forbiddenID, startID)
		}
		if seen[cur] {
			return status.ErrCycleDetected.WrapMessage(
				"ancestor chain of %q is cyclic", startID)
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
