// Package traversal computes deterministic root-to-leaf paths over the
// kernel's tree and the stable content digests derived from them.
//
// Every function here is a pure read over a kernel.Store. Determinism is a
// hard contract: repeated calls on the same state return byte-identical
// ordered output, and nothing on this path iterates an unordered container.
package traversal

import (
	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/status"
)

// ComputeRT returns the refinement traversal for a leaf ettle: the ordered
// ettle ids from the tree root down to the leaf. Fails when the leaf is
// unknown or tombstoned, when a parent link does not resolve, when a
// tombstoned node sits in the chain, or when the chain is cyclic.
func ComputeRT(s *kernel.Store, leafEttleID string) ([]string, error) {
	if _, err := s.GetEttle(leafEttleID); err != nil {
		return nil, err
	}

	var chain []string
	seen := map[string]bool{}
	cur := leafEttleID
	for cur != "" {
		if seen[cur] {
			return nil, status.ErrCycleDetected.WrapMessage(
				"parent chain of ettle %q is cyclic", leafEttleID)
		}
		seen[cur] = true
		e, ok := s.GetEttleAny(cur)
		if !ok {
			return nil, status.ErrTraversalBroken.WrapMessage(
				"parent link to unknown ettle %q", cur)
		}
		if e.Deleted {
			return nil, status.ErrDeleted.WrapMessage("ettle %q in parent chain", cur)
		}
		chain = append(chain, cur)
		cur = e.ParentID
	}

	// walked leaf-to-root, callers want root-to-leaf
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
