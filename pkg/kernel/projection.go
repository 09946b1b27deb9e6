package kernel

import (
	"sort"
	"strings"

	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// ActivePartitions returns the non-tombstoned partitions of an ettle,
// sorted ascending by ordinal. This projection is the only view traversal,
// rendering and export may use: it never contains tombstoned partitions
// and its order does not depend on insertion order.
//
// Membership is validated both ways while projecting: every listed id must
// resolve, and each partition's owner pointer must match the listing ettle.
func (s *Store) ActivePartitions(e *model.Ettle) ([]*model.Partition, error) {
	var out []*model.Partition
	for _, pid := range e.Partitions {
		p, ok := s.partitions[pid]
		if !ok {
			return nil, status.ErrInternal.WrapMessage(
				"ettle %q lists unknown partition %q", e.ID, pid)
		}
		if p.EttleID != e.ID {
			return nil, status.ErrInternal.WrapMessage(
				"partition %q owned by %q but listed by %q", p.ID, p.EttleID, e.ID)
		}
		if !p.Deleted {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

// NextOrdinal returns the smallest ordinal above every ordinal ever used by
// the ettle, tombstoned partitions included, so retired ordinals are never
// handed out again.
func (s *Store) NextOrdinal(ettleID string) (uint32, error) {
	e, err := s.GetEttle(ettleID)
	if err != nil {
		return 0, err
	}
	var next uint32
	for _, pid := range e.Partitions {
		if p, ok := s.partitions[pid]; ok && p.Ordinal >= next {
			next = p.Ordinal + 1
		}
	}
	return next, nil
}

func emptyOrBlank(v string) bool {
	return v == "" || strings.TrimSpace(v) == ""
}

// blankButProvided reports a provided value that is whitespace-only.
func blankButProvided(v string) bool {
	return v != "" && strings.TrimSpace(v) == ""
}
