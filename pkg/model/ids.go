package model

import (
	"github.com/segmentio/ksuid"
)

// NewEttleID mints a time-ordered opaque identifier for an ettle.
func NewEttleID() string {
	return "ettle-" + ksuid.New().String()
}

// NewPartitionID mints a time-ordered opaque identifier for a partition.
func NewPartitionID() string {
	return "ep-" + ksuid.New().String()
}

// NewSnapshotID mints a time-ordered snapshot identifier. ksuids sort by
// creation time, which gives the ledger its monotonic id ordering.
func NewSnapshotID() string {
	return "snap-" + ksuid.New().String()
}

// NewApprovalToken mints an opaque token for a routed approval request.
func NewApprovalToken() string {
	return "appr-" + ksuid.New().String()
}
