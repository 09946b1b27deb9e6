// Package apply is the sole external mutation path into a kernel store.
// Every mutation is a variant of one closed command set, dispatched through
// a single all-or-nothing boundary: the caller's state is never changed on
// failure, and a returned state is always fully validated.
package apply

import "github.com/nickout/ettlex/pkg/kernel"

// Command is the closed set of state transitions. Implementations live in
// this package only; the sealed marker keeps the set exhaustive at the
// dispatcher.
type Command interface {
	isCommand()
}

// EttleCreate creates an ettle with its auto-created ordinal-0 partition.
type EttleCreate struct {
	Title    string
	Metadata map[string]string

	_ struct{}
}

// EttleUpdate applies a partial update to an ettle.
type EttleUpdate struct {
	ID     string
	Update kernel.EttleUpdate

	_ struct{}
}

// EttleDelete tombstones an ettle. Ettle deletion is tombstone-only
// regardless of anchor policy.
type EttleDelete struct {
	ID string

	_ struct{}
}

// PartitionCreate adds a partition to an ettle.
type PartitionCreate struct {
	EttleID string
	In      kernel.PartitionCreate

	_ struct{}
}

// PartitionUpdate applies a partial update to a partition.
type PartitionUpdate struct {
	ID     string
	Update kernel.PartitionUpdate

	_ struct{}
}

// PartitionDelete removes a partition. The anchor policy decides the mode:
// anchored partitions degrade to a tombstone, non-anchored partitions are
// hard-deleted from storage and from the owner's membership list.
type PartitionDelete struct {
	ID string

	_ struct{}
}

// LinkChild wires a refinement edge from a partition to a child ettle.
type LinkChild struct {
	PartitionID string
	ChildID     string

	_ struct{}
}

// UnlinkChild removes a partition's refinement edge.
type UnlinkChild struct {
	PartitionID string

	_ struct{}
}

func (EttleCreate) isCommand()     {}
func (EttleUpdate) isCommand()     {}
func (EttleDelete) isCommand()     {}
func (PartitionCreate) isCommand() {}
func (PartitionUpdate) isCommand() {}
func (PartitionDelete) isCommand() {}
func (LinkChild) isCommand()       {}
func (UnlinkChild) isCommand()     {}
