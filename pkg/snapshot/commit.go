package snapshot

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nickout/ettlex/pkg/cas"
	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/ledger"
	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
	"github.com/nickout/ettlex/pkg/traversal"
)

// LedgerStore is the slice of the ledger the committer depends on. Narrow
// so tests can inject append failures.
type LedgerStore interface {
	Append(ctx context.Context, rec *model.SnapshotRecord, expect *ledger.ExpectHead) error
	CurrentHead(ctx context.Context, rootEttleID string) (string, error)
	FindBySemanticDigest(ctx context.Context, digest string) (*model.SnapshotRecord, error)
	ResolveProfileRef(ctx context.Context, explicit, configuredDefault string) (string, error)
}

// ApprovalRouter durably records an approval request and returns a token.
// An opaque capability: the committer never interprets the token. The
// sqlite ledger implements it; deployments may swap in an external router.
type ApprovalRouter interface {
	RouteApproval(ctx context.Context, req ledger.ApprovalRequest) (string, error)
}

// CommitPolicyHook may deny a commit before any computation happens.
type CommitPolicyHook func(ctx context.Context, req CommitRequest) error

// CommitRequest describes one commit attempt.
type CommitRequest struct {
	// LeafPartitionID targets the commit directly. When empty, RootEttleID
	// is used instead and must resolve to exactly one leaf partition.
	LeafPartitionID string
	RootEttleID     string
	// LeafOrdinal disambiguates the leaf partition when the leaf ettle has
	// several active partitions.
	LeafOrdinal *uint32

	ProfileRef      string
	PolicyRef       string
	AmbiguityPolicy AmbiguityPolicy

	// DryRun performs every computation but writes nothing: no CAS blob,
	// no ledger row, no approval routing.
	DryRun bool
	// ExpectedHead, when non-nil, is the manifest digest the caller
	// believes is the current head; empty string means "no head yet".
	ExpectedHead *string
	// Dedup returns the prior snapshot instead of appending a new row when
	// the semantic manifest digest already exists.
	Dedup bool

	SeedProvenanceDigest string

	_ struct{}
}

// OutcomeState is the terminal state of a commit attempt.
type OutcomeState string

const (
	// Committed means a new ledger row was appended.
	Committed OutcomeState = "committed"
	// Deduplicated means an equivalent snapshot already existed and was
	// returned instead of writing a new row.
	Deduplicated OutcomeState = "deduplicated"
	// RoutedForApprovalOutcome means ambiguity was routed; nothing was
	// written to CAS or the ledger.
	RoutedForApprovalOutcome OutcomeState = "routed_for_approval"
	// DryRunOutcome means everything was computed and nothing written.
	DryRunOutcome OutcomeState = "dry_run"
)

// Outcome is the result of a successful commit attempt.
type Outcome struct {
	State         OutcomeState
	Record        *model.SnapshotRecord
	Manifest      *Manifest
	ManifestBytes []byte
	ApprovalToken string
	// Resolution carries the constraint-resolution result, including the
	// non-binding preview on dry runs.
	Resolution *Resolution

	_ struct{}
}

// Committer orchestrates snapshot commits: policy check, leaf resolution,
// traversal, manifest build, then the atomic CAS-write plus ledger-append
// pair. A failed append leaves no ledger row; the already-written blob is
// tolerated garbage.
type Committer struct {
	blobs      *cas.FsStore
	records    LedgerStore
	router     ApprovalRouter
	policyHook CommitPolicyHook

	defaultProfile string
	clock          func() time.Time
	newSnapshotID  func() string
	l              *zap.Logger
}

// NewCommitter wires a committer over a blob store and a ledger.
func NewCommitter(blobs *cas.FsStore, records LedgerStore, opts ...CommitterOption) *Committer {
	c := &Committer{
		blobs:         blobs,
		records:       records,
		clock:         time.Now,
		newSnapshotID: model.NewSnapshotID,
		l:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit runs one attempt against the given state.
func (c *Committer) Commit(ctx context.Context, s *kernel.Store, req CommitRequest) (*Outcome, error) {
	if c.policyHook != nil {
		if err := c.policyHook(ctx, req); err != nil {
			return nil, status.ErrPolicyDenied.Wrap(err)
		}
	}

	leaf, err := c.resolveLeaf(s, req)
	if err != nil {
		return nil, err
	}

	profileRef, err := c.records.ResolveProfileRef(ctx, req.ProfileRef, c.defaultProfile)
	if err != nil {
		return nil, err
	}

	rt, err := traversal.ComputeRT(s, leaf.EttleID)
	if err != nil {
		return nil, err
	}
	ordinal := leaf.Ordinal
	ept, err := traversal.ComputeEPT(s, leaf.EttleID, &ordinal)
	if err != nil {
		return nil, err
	}

	resolution, err := resolveConstraints(s, ept, req.AmbiguityPolicy)
	if err != nil {
		return nil, err
	}
	rootID := rt[0]
	if len(resolution.Ambiguities) > 0 {
		return c.route(ctx, rootID, profileRef, resolution, req)
	}

	m, stored, err := BuildManifest(BuildInput{
		Store:                s,
		RootEttleID:          rootID,
		RT:                   rt,
		EPT:                  ept,
		Constraints:          resolution.Envelope,
		PolicyRef:            req.PolicyRef,
		ProfileRef:           profileRef,
		SeedProvenanceDigest: req.SeedProvenanceDigest,
		CreatedAt:            c.clock(),
	})
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		return &Outcome{
			State:         DryRunOutcome,
			Manifest:      m,
			ManifestBytes: stored,
			Resolution:    resolution,
		}, nil
	}

	if req.Dedup {
		prior, err := c.records.FindBySemanticDigest(ctx, m.SemanticManifestDigest)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			c.l.Info("commit deduplicated",
				zap.String("snapshot_id", prior.SnapshotID),
				zap.String("semantic_manifest_digest", m.SemanticManifestDigest))
			return &Outcome{
				State:      Deduplicated,
				Record:     prior,
				Manifest:   m,
				Resolution: resolution,
			}, nil
		}
	}

	digest, err := c.blobs.Write(stored, cas.KindManifest)
	if err != nil {
		return nil, err
	}
	if digest != m.ManifestDigest {
		return nil, status.ErrInternal.WrapMessage(
			"stored blob digest %s does not match manifest digest %s", digest, m.ManifestDigest)
	}

	rec := &model.SnapshotRecord{
		SnapshotID:             c.newSnapshotID(),
		RootEttleID:            rootID,
		ManifestDigest:         m.ManifestDigest,
		SemanticManifestDigest: m.SemanticManifestDigest,
		CreatedAt:              c.clock().UTC(),
		PolicyRef:              req.PolicyRef,
		ProfileRef:             profileRef,
		Status:                 model.SnapshotStatusCommitted,
	}
	var expect *ledger.ExpectHead
	if req.ExpectedHead != nil {
		expect = &ledger.ExpectHead{ManifestDigest: *req.ExpectedHead}
	}
	if err := c.records.Append(ctx, rec, expect); err != nil {
		// the blob is orphaned garbage, never a dangling ledger reference
		return nil, err
	}
	c.l.Info("snapshot committed",
		zap.String("snapshot_id", rec.SnapshotID),
		zap.String("root_ettle_id", rootID),
		zap.String("manifest_digest", m.ManifestDigest))
	return &Outcome{
		State:         Committed,
		Record:        rec,
		Manifest:      m,
		ManifestBytes: stored,
		Resolution:    resolution,
	}, nil
}

// route short-circuits a contested commit into a durable approval request.
// Dry runs report the ambiguity preview without routing anything.
func (c *Committer) route(ctx context.Context, rootID, profileRef string, resolution *Resolution, req CommitRequest) (*Outcome, error) {
	if req.DryRun {
		return &Outcome{State: DryRunOutcome, Resolution: resolution}, nil
	}
	if c.router == nil {
		return nil, status.ErrRoutingUnavailable.WrapMessage(
			"%d contested candidate sets", len(resolution.Ambiguities))
	}
	var candidates []string
	for _, a := range resolution.Ambiguities {
		candidates = append(candidates, a.Candidates...)
	}
	sort.Strings(candidates)
	token, err := c.router.RouteApproval(ctx, ledger.ApprovalRequest{
		RootEttleID: rootID,
		ProfileRef:  profileRef,
		Reason:      resolution.Ambiguities[0].String(),
		Candidates:  candidates,
	})
	if err != nil {
		return nil, err
	}
	c.l.Info("commit routed for approval",
		zap.String("root_ettle_id", rootID), zap.String("token", token))
	return &Outcome{
		State:         RoutedForApprovalOutcome,
		ApprovalToken: token,
		Resolution:    resolution,
	}, nil
}

// leafTarget is the resolved commit target.
type leafTarget struct {
	PartitionID string
	EttleID     string
	Ordinal     uint32
}

// resolveLeaf turns a request into a concrete leaf partition. The explicit
// partition id is the canonical path; the root-ettle path exists for
// callers that predate partition addressing and requires the subtree to
// contain exactly one leaf partition.
func (c *Committer) resolveLeaf(s *kernel.Store, req CommitRequest) (leafTarget, error) {
	if req.LeafPartitionID != "" {
		p, err := s.GetPartition(req.LeafPartitionID)
		if err != nil {
			return leafTarget{}, err
		}
		if !p.IsLeaf() {
			return leafTarget{}, status.ErrNotALeaf.WrapMessage(
				"partition %q maps to child %q", p.ID, p.ChildID)
		}
		return leafTarget{PartitionID: p.ID, EttleID: p.EttleID, Ordinal: p.Ordinal}, nil
	}
	if req.RootEttleID == "" {
		return leafTarget{}, status.ErrInvalidInput.WrapMessage(
			"either a leaf partition id or a root ettle id is required")
	}

	candidates, err := leafPartitionsUnder(s, req.RootEttleID)
	if err != nil {
		return leafTarget{}, err
	}
	switch len(candidates) {
	case 0:
		return leafTarget{}, status.ErrNotFound.WrapMessage(
			"no leaf partition under ettle %q", req.RootEttleID)
	case 1:
		if req.LeafOrdinal != nil && *req.LeafOrdinal != candidates[0].Ordinal {
			return leafTarget{}, status.ErrNotFound.WrapMessage(
				"ettle %q has no leaf partition with ordinal %d",
				candidates[0].EttleID, *req.LeafOrdinal)
		}
		return candidates[0], nil
	default:
		if req.LeafOrdinal != nil {
			var matches []leafTarget
			for _, cand := range candidates {
				if cand.Ordinal == *req.LeafOrdinal {
					matches = append(matches, cand)
				}
			}
			if len(matches) == 1 {
				return matches[0], nil
			}
		}
		ids := make([]string, 0, len(candidates))
		for _, cand := range candidates {
			ids = append(ids, cand.PartitionID)
		}
		return leafTarget{}, status.ErrRootAmbiguous.WrapMessage(
			"ettle %q resolves to %d leaf partitions: %v", req.RootEttleID, len(ids), ids)
	}
}

// leafPartitionsUnder walks the subtree in deterministic order and collects
// every active childless partition of every leaf ettle.
func leafPartitionsUnder(s *kernel.Store, rootID string) ([]leafTarget, error) {
	var out []leafTarget
	var walk func(id string) error
	walk = func(id string) error {
		e, err := s.GetEttle(id)
		if err != nil {
			return err
		}
		children, err := s.Children(id)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			active, err := s.ActivePartitions(e)
			if err != nil {
				return err
			}
			for _, p := range active {
				if p.IsLeaf() {
					out = append(out, leafTarget{
						PartitionID: p.ID, EttleID: e.ID, Ordinal: p.Ordinal,
					})
				}
			}
			return nil
		}
		for _, child := range children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rootID); err != nil {
		return nil, err
	}
	return out, nil
}
