// Package status declares the sentinel errors raised by the ettlex core.
//
// NOTE: sentinels live in a separate package to avoid creating undue
// cyclical dependencies between the kernel, traversal, storage and
// orchestration packages that raise them.
//
// Callers match with errors.Is; packages attach per-call context by
// wrapping a formatted message around the sentinel, e.g.
//
//	status.ErrNotFound.WrapMessage("ettle %s", id)
package status

import "github.com/nickout/ettlex/pkg/errors"

var (
	// ErrNotFound indicates that the target entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrDeleted indicates that the target entity exists but is tombstoned
	ErrDeleted = errors.New("deleted")

	// ErrInvalidInput indicates malformed caller input
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTitle indicates an empty or whitespace-only ettle title
	ErrInvalidTitle = errors.New("invalid title")

	// ErrConstraintViolation covers structural constraint breaches:
	// duplicate ordinals, broken refinement mappings, unsafe deletions
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrOrdinalImmutable indicates an attempt to mutate a partition ordinal
	ErrOrdinalImmutable = errors.New("ordinal is immutable")

	// ErrOrdinalRetired indicates reuse of a tombstoned partition's ordinal.
	// A specialization of ErrConstraintViolation: both sentinels match.
	ErrOrdinalRetired = ErrConstraintViolation.WrapMessage("ordinal retired by tombstoned partition")

	// ErrCycleDetected indicates a parent assignment or link that would
	// close a cycle in the refinement tree
	ErrCycleDetected = errors.New("cycle detected")

	// ErrIllegalReparent indicates a child that already has a parent
	ErrIllegalReparent = errors.New("child already has a parent")

	// ErrStrandsChild indicates deleting the sole active mapping to a child
	ErrStrandsChild = errors.New("deletion strands child")

	// ErrHasChildren indicates deleting an ettle that still has children
	ErrHasChildren = errors.New("ettle has children")

	// ErrTraversalBroken indicates a missing link in a parent chain
	ErrTraversalBroken = errors.New("traversal broken")

	// ErrMissingMapping indicates an RT edge with no active mapping partition
	ErrMissingMapping = errors.New("missing refinement mapping")

	// ErrDuplicateMapping indicates an RT edge with two or more active
	// mapping partitions
	ErrDuplicateMapping = errors.New("duplicate refinement mapping")

	// ErrAmbiguousLeaf indicates a leaf with several active partitions and
	// no explicit ordinal selection
	ErrAmbiguousLeaf = errors.New("ambiguous leaf selection")

	// ErrRootAmbiguous indicates a root that resolves to more than one leaf
	ErrRootAmbiguous = errors.New("root resolves to multiple leaves")

	// ErrNotALeaf indicates a commit target partition that has a child
	ErrNotALeaf = errors.New("partition is not a leaf")

	// ErrDeterminismViolation guards ordered-collection invariants on the
	// traversal path. Unreachable in a correct implementation; kept as a
	// defensive check, never removed.
	ErrDeterminismViolation = errors.New("determinism violation")

	// ErrHeadMismatch indicates an optimistic-concurrency conflict on commit
	ErrHeadMismatch = errors.New("expected head mismatch")

	// ErrPolicyDenied indicates the commit policy hook rejected the commit
	ErrPolicyDenied = errors.New("commit denied by policy")

	// ErrAmbiguousSelection indicates multiple constraint candidates under
	// the fail-fast ambiguity policy
	ErrAmbiguousSelection = errors.New("ambiguous constraint selection")

	// ErrRoutingUnavailable indicates no approval router is configured
	ErrRoutingUnavailable = errors.New("approval routing unavailable")

	// ErrProfileDefaultMissing indicates no profile could be resolved
	ErrProfileDefaultMissing = errors.New("default profile missing")

	// ErrCasMissing indicates a CAS read for an absent digest
	ErrCasMissing = errors.New("blob not in store")

	// ErrCasCollision indicates a CAS write whose target digest exists with
	// different bytes (corruption signal)
	ErrCasCollision = errors.New("digest collision in store")

	// ErrPersistence indicates a ledger or transaction failure
	ErrPersistence = errors.New("persistence failure")

	// ErrInternal is reserved for proven-impossible states. Observing it is
	// a defect, never a user error.
	ErrInternal = errors.New("internal invariant breach")
)
