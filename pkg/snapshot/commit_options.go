package snapshot

import (
	"time"

	"go.uber.org/zap"
)

// CommitterOption configures a Committer.
type CommitterOption func(*Committer)

// CommitterLogger sets the committer logger.
func CommitterLogger(l *zap.Logger) CommitterOption {
	return func(c *Committer) {
		if l != nil {
			c.l = l
		}
	}
}

// CommitterApprovalRouter installs the approval router used when ambiguity
// is routed instead of resolved. Without one, RouteForApproval commits fail
// as routing-unavailable.
func CommitterApprovalRouter(r ApprovalRouter) CommitterOption {
	return func(c *Committer) { c.router = r }
}

// CommitterPolicyHook installs the pre-computation policy gate.
func CommitterPolicyHook(hook CommitPolicyHook) CommitterOption {
	return func(c *Committer) { c.policyHook = hook }
}

// CommitterDefaultProfile sets the configured default profile reference,
// used when a request names none.
func CommitterDefaultProfile(ref string) CommitterOption {
	return func(c *Committer) { c.defaultProfile = ref }
}

// CommitterClock overrides the time source. Tests pin it for reproducible
// manifests.
func CommitterClock(clock func() time.Time) CommitterOption {
	return func(c *Committer) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// CommitterSnapshotIDs overrides snapshot id minting.
func CommitterSnapshotIDs(mint func() string) CommitterOption {
	return func(c *Committer) {
		if mint != nil {
			c.newSnapshotID = mint
		}
	}
}
