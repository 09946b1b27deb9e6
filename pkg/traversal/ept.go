package traversal

import (
	"fmt"
	"strings"

	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// Candidate identifies one selectable leaf partition when a leaf ettle has
// more than one active partition.
type Candidate struct {
	PartitionID string
	Ordinal     uint32

	_ struct{}
}

// LeafCandidates lists the selectable leaf partitions of an ettle in
// ordinal order. Callers use this to present disambiguation choices when
// ComputeEPT reports an ambiguous leaf.
func LeafCandidates(s *kernel.Store, leafEttleID string) ([]Candidate, error) {
	e, err := s.GetEttle(leafEttleID)
	if err != nil {
		return nil, err
	}
	active, err := s.ActivePartitions(e)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(active))
	for _, p := range active {
		out = append(out, Candidate{PartitionID: p.ID, Ordinal: p.Ordinal})
	}
	return out, nil
}

// ComputeEPT returns the partition traversal for a leaf ettle: for each
// consecutive (parent, child) pair of the refinement traversal, the unique
// active parent partition mapping to the child, terminated by a selected
// partition of the leaf itself. The leaf partition is auto-selected when
// exactly one active partition exists; otherwise the caller must pass its
// ordinal.
func ComputeEPT(s *kernel.Store, leafEttleID string, leafOrdinal *uint32) ([]string, error) {
	rt, err := ComputeRT(s, leafEttleID)
	if err != nil {
		return nil, err
	}

	var ept []string
	for i := 0; i+1 < len(rt); i++ {
		pid, err := mappingPartition(s, rt[i], rt[i+1])
		if err != nil {
			return nil, err
		}
		ept = append(ept, pid)
	}

	leafPID, err := selectLeafPartition(s, leafEttleID, leafOrdinal)
	if err != nil {
		return nil, err
	}
	return append(ept, leafPID), nil
}

// mappingPartition finds the single active partition of parentID whose child
// reference is childID.
func mappingPartition(s *kernel.Store, parentID, childID string) (string, error) {
	parent, err := s.GetEttle(parentID)
	if err != nil {
		return "", err
	}
	active, err := s.ActivePartitions(parent)
	if err != nil {
		return "", err
	}
	if err := checkOrdinalOrder(active); err != nil {
		return "", err
	}
	var matches []string
	for _, p := range active {
		if p.ChildID == childID {
			matches = append(matches, p.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", status.ErrMissingMapping.WrapMessage(
			"no active partition of %q maps to %q", parentID, childID)
	case 1:
		return matches[0], nil
	default:
		return "", status.ErrDuplicateMapping.WrapMessage(
			"%d active partitions of %q map to %q", len(matches), parentID, childID)
	}
}

func selectLeafPartition(s *kernel.Store, leafEttleID string, leafOrdinal *uint32) (string, error) {
	candidates, err := LeafCandidates(s, leafEttleID)
	if err != nil {
		return "", err
	}
	if leafOrdinal != nil {
		for _, c := range candidates {
			if c.Ordinal == *leafOrdinal {
				return c.PartitionID, nil
			}
		}
		return "", status.ErrNotFound.WrapMessage(
			"ettle %q has no active partition with ordinal %d", leafEttleID, *leafOrdinal)
	}
	switch len(candidates) {
	case 0:
		return "", status.ErrMissingMapping.WrapMessage(
			"ettle %q has no active partitions", leafEttleID)
	case 1:
		return candidates[0].PartitionID, nil
	default:
		return "", status.ErrAmbiguousLeaf.WrapMessage(
			"ettle %q requires an explicit ordinal, candidates: %s",
			leafEttleID, formatCandidates(candidates))
	}
}

func formatCandidates(candidates []Candidate) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("%s(ordinal %d)", c.PartitionID, c.Ordinal))
	}
	return strings.Join(parts, ", ")
}

// checkOrdinalOrder guards the ordered-collection contract on the traversal
// path. Unreachable when the active projection behaves; kept as a defensive
// check rather than assumed dead.
func checkOrdinalOrder(active []*model.Partition) error {
	for i := 1; i < len(active); i++ {
		if active[i-1].Ordinal >= active[i].Ordinal {
			return status.ErrDeterminismViolation.WrapMessage(
				"active projection out of ordinal order at %q", active[i].ID)
		}
	}
	return nil
}
