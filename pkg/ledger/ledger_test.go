package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nickout/ettlex/pkg/errors"
	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ld, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ld.Close()) })
	return ld
}

func record(root, manifestDigest, semanticDigest string) *model.SnapshotRecord {
	return &model.SnapshotRecord{
		SnapshotID:             model.NewSnapshotID(),
		RootEttleID:            root,
		ManifestDigest:         manifestDigest,
		SemanticManifestDigest: semanticDigest,
		CreatedAt:              time.Now().UTC(),
		Status:                 model.SnapshotStatusCommitted,
	}
}

func TestAppendAndHead(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()

	head, err := ld.CurrentHead(ctx, "ettle-root")
	require.NoError(t, err)
	require.Empty(t, head)

	r1 := record("ettle-root", "m1", "s1")
	require.NoError(t, ld.Append(ctx, r1, nil))
	require.Empty(t, r1.ParentSnapshotID)

	head, err = ld.CurrentHead(ctx, "ettle-root")
	require.NoError(t, err)
	require.Equal(t, "m1", head)

	// the second row chains to the first
	r2 := record("ettle-root", "m2", "s2")
	require.NoError(t, ld.Append(ctx, r2, nil))
	require.Equal(t, r1.SnapshotID, r2.ParentSnapshotID)

	// per-root heads are independent
	head, err = ld.CurrentHead(ctx, "ettle-other")
	require.NoError(t, err)
	require.Empty(t, head)
}

func TestAppendExpectedHead(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()

	// expecting no head on an empty ledger succeeds
	r1 := record("ettle-root", "m1", "s1")
	require.NoError(t, ld.Append(ctx, r1, &ExpectHead{}))

	// stale expectation fails with no write
	err := ld.Append(ctx, record("ettle-root", "m2", "s2"), &ExpectHead{})
	require.True(t, errors.Is(err, status.ErrHeadMismatch))
	history, err := ld.List(ctx, "ettle-root")
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.NoError(t, ld.Append(ctx, record("ettle-root", "m2", "s2"),
		&ExpectHead{ManifestDigest: "m1"}))
}

func TestAppendConcurrentSameHead(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ld.Append(ctx, record("ettle-root", "m1", "s1"), nil))

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := record("ettle-root", "m2", "s2")
			results <- ld.Append(ctx, rec, &ExpectHead{ManifestDigest: "m1"})
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, mismatches int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, status.ErrHeadMismatch):
			mismatches++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, n-1, mismatches)

	// linear history, no fork
	history, err := ld.List(ctx, "ettle-root")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, history[0].SnapshotID, history[1].ParentSnapshotID)
}

func TestFindBySemanticDigest(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()

	missing, err := ld.FindBySemanticDigest(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, missing)

	r1 := record("ettle-root", "m1", "s1")
	require.NoError(t, ld.Append(ctx, r1, nil))
	// same semantic content committed again in append-only mode
	require.NoError(t, ld.Append(ctx, record("ettle-root", "m2", "s1"), nil))

	// the earliest row wins the idempotency lookup
	found, err := ld.FindBySemanticDigest(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, r1.SnapshotID, found.SnapshotID)
}

func TestGetAndList(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()

	r1 := record("ettle-root", "m1", "s1")
	require.NoError(t, ld.Append(ctx, r1, nil))

	got, err := ld.Get(ctx, r1.SnapshotID)
	require.NoError(t, err)
	require.Equal(t, "m1", got.ManifestDigest)
	require.Equal(t, model.SnapshotStatusCommitted, got.Status)
	require.WithinDuration(t, r1.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = ld.Get(ctx, "snap-nope")
	require.True(t, errors.Is(err, status.ErrNotFound))
}

func TestProfiles(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ld.PutProfile(ctx, "strict", `{"mode":"fail_fast"}`))
	p, err := ld.GetProfile(ctx, "strict")
	require.NoError(t, err)
	require.Equal(t, `{"mode":"fail_fast"}`, p.Payload)

	// upsert replaces the payload
	require.NoError(t, ld.PutProfile(ctx, "strict", `{"mode":"choose"}`))
	p, err = ld.GetProfile(ctx, "strict")
	require.NoError(t, err)
	require.Equal(t, `{"mode":"choose"}`, p.Payload)

	_, err = ld.GetProfile(ctx, "nope")
	require.True(t, errors.Is(err, status.ErrNotFound))
}

func TestResolveProfileRef(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()
	require.NoError(t, ld.PutProfile(ctx, "strict", "{}"))
	require.NoError(t, ld.PutProfile(ctx, "default", "{}"))

	ref, err := ld.ResolveProfileRef(ctx, "strict", "default")
	require.NoError(t, err)
	require.Equal(t, "strict", ref)

	ref, err = ld.ResolveProfileRef(ctx, "", "default")
	require.NoError(t, err)
	require.Equal(t, "default", ref)

	ref, err = ld.ResolveProfileRef(ctx, "", "")
	require.NoError(t, err)
	require.Equal(t, FallbackProfileRef, ref)

	_, err = ld.ResolveProfileRef(ctx, "nope", "default")
	require.True(t, errors.Is(err, status.ErrProfileDefaultMissing))
}

func TestApprovals(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()

	req := ApprovalRequest{
		RootEttleID: "ettle-root",
		ProfileRef:  "strict",
		Reason:      "ambiguous constraint candidates",
		Candidates:  []string{"c-a", "c-b"},
	}
	token, err := ld.RouteApproval(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	rec, err := ld.GetApproval(ctx, token)
	require.NoError(t, err)
	require.Equal(t, ApprovalStatusPending, rec.Status)
	require.Equal(t, req.Candidates, rec.Request.Candidates)
	require.Equal(t, req.Reason, rec.Request.Reason)

	_, err = ld.GetApproval(ctx, "appr-nope")
	require.True(t, errors.Is(err, status.ErrNotFound))

	_, err = ld.RouteApproval(ctx, ApprovalRequest{RootEttleID: "x"})
	require.True(t, errors.Is(err, status.ErrInvalidInput))
}

func TestMetadata(t *testing.T) {
	ld := openTestLedger(t)
	ctx := context.Background()

	_, err := ld.GetMetadata(ctx, MetadataKeySeedDigest)
	require.True(t, errors.Is(err, status.ErrNotFound))

	require.NoError(t, ld.SetMetadata(ctx, MetadataKeySeedDigest, "abc123"))
	v, err := ld.GetMetadata(ctx, MetadataKeySeedDigest)
	require.NoError(t, err)
	require.Equal(t, "abc123", v)

	// upsert overwrites
	require.NoError(t, ld.SetMetadata(ctx, MetadataKeySeedDigest, "def456"))
	v, err = ld.GetMetadata(ctx, MetadataKeySeedDigest)
	require.NoError(t, err)
	require.Equal(t, "def456", v)

	require.True(t, errors.Is(ld.SetMetadata(ctx, "", "x"), status.ErrInvalidInput))
}
