// Package ledger persists the append-only snapshot history in sqlite.
// Rows are immutable: created by successful commits, never updated, never
// deleted. Head tracking per root ettle gives the commit orchestrator its
// optimistic-concurrency primitive.
package ledger

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// Ledger is a sqlite-backed snapshot ledger. The head-check-and-append
// critical section is serialized with a process-wide mutex on top of the
// transaction, so of N concurrent appends against the same expected head
// exactly one wins.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
	l  *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Ledger) { ld.l = l }
}

// Open opens (or creates) a ledger database at path. Use ":memory:" for an
// ephemeral ledger in tests.
func Open(path string, opts ...Option) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	// sqlite serializes writers; a single pooled connection avoids
	// spurious table-lock errors under concurrent commits
	db.SetMaxOpenConns(1)

	ld := &Ledger{db: db, l: zap.NewNop()}
	for _, opt := range opts {
		opt(ld)
	}
	if err := ld.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ld, nil
}

func (ld *Ledger) migrate() error {
	for _, ddl := range allDDL {
		if _, err := ld.db.Exec(ddl); err != nil {
			return status.ErrPersistence.Wrap(err)
		}
	}
	var current int
	err := ld.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if _, err := ld.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return status.ErrPersistence.Wrap(err)
		}
	case err != nil:
		return status.ErrPersistence.Wrap(err)
	case current > schemaVersion:
		return status.ErrPersistence.WrapMessage(
			"database schema version %d is newer than supported %d", current, schemaVersion)
	}
	return nil
}

// Close releases the database handle.
func (ld *Ledger) Close() error {
	return ld.db.Close()
}

// ExpectHead asks Append to verify the current head before writing.
type ExpectHead struct {
	// ManifestDigest of the expected head row; empty means "no head yet".
	ManifestDigest string

	_ struct{}
}

// Append inserts one snapshot row inside a transaction. When expect is
// non-nil the current head is compared first and a mismatch fails with no
// write. The row's parent pointer is set to the current head.
func (ld *Ledger) Append(ctx context.Context, rec *model.SnapshotRecord, expect *ExpectHead) error {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	tx, err := ld.db.BeginTx(ctx, nil)
	if err != nil {
		return status.ErrPersistence.Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	head, err := headInTx(ctx, tx, rec.RootEttleID)
	if err != nil {
		return err
	}
	if expect != nil {
		var current string
		if head != nil {
			current = head.ManifestDigest
		}
		if current != expect.ManifestDigest {
			return status.ErrHeadMismatch.WrapMessage(
				"expected head %q, current %q", expect.ManifestDigest, current)
		}
	}
	if head != nil {
		rec.ParentSnapshotID = head.SnapshotID
	} else {
		rec.ParentSnapshotID = ""
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (
			snapshot_id, root_ettle_id, manifest_digest, semantic_manifest_digest,
			created_at, parent_snapshot_id, policy_ref, profile_ref, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SnapshotID, rec.RootEttleID, rec.ManifestDigest, rec.SemanticManifestDigest,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.ParentSnapshotID,
		rec.PolicyRef, rec.ProfileRef, rec.Status,
	)
	if err != nil {
		return status.ErrPersistence.Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return status.ErrPersistence.Wrap(err)
	}
	ld.l.Info("snapshot appended",
		zap.String("snapshot_id", rec.SnapshotID),
		zap.String("root_ettle_id", rec.RootEttleID),
		zap.String("parent_snapshot_id", rec.ParentSnapshotID),
	)
	return nil
}

// CurrentHead returns the manifest digest of the latest snapshot for a root
// ettle, or empty when no snapshot exists yet.
func (ld *Ledger) CurrentHead(ctx context.Context, rootEttleID string) (string, error) {
	rec, err := ld.Head(ctx, rootEttleID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.ManifestDigest, nil
}

// Head returns the latest snapshot record for a root ettle, or nil.
func (ld *Ledger) Head(ctx context.Context, rootEttleID string) (*model.SnapshotRecord, error) {
	tx, err := ld.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()
	return headInTx(ctx, tx, rootEttleID)
}

// headInTx resolves the head row: snapshot ids are time-ordered, so the
// lexicographically greatest id is the latest row.
func headInTx(ctx context.Context, tx *sql.Tx, rootEttleID string) (*model.SnapshotRecord, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT snapshot_id, root_ettle_id, manifest_digest, semantic_manifest_digest,
		       created_at, parent_snapshot_id, policy_ref, profile_ref, status
		FROM snapshots WHERE root_ettle_id = ?
		ORDER BY snapshot_id DESC LIMIT 1`, rootEttleID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return rec, nil
}

// FindBySemanticDigest returns the earliest snapshot with the given
// semantic manifest digest, or nil. This is the idempotency lookup used by
// dedup-mode commits.
func (ld *Ledger) FindBySemanticDigest(ctx context.Context, digest string) (*model.SnapshotRecord, error) {
	row := ld.db.QueryRowContext(ctx, `
		SELECT snapshot_id, root_ettle_id, manifest_digest, semantic_manifest_digest,
		       created_at, parent_snapshot_id, policy_ref, profile_ref, status
		FROM snapshots WHERE semantic_manifest_digest = ?
		ORDER BY snapshot_id ASC LIMIT 1`, digest)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return rec, nil
}

// Get returns a snapshot by id.
func (ld *Ledger) Get(ctx context.Context, snapshotID string) (*model.SnapshotRecord, error) {
	row := ld.db.QueryRowContext(ctx, `
		SELECT snapshot_id, root_ettle_id, manifest_digest, semantic_manifest_digest,
		       created_at, parent_snapshot_id, policy_ref, profile_ref, status
		FROM snapshots WHERE snapshot_id = ?`, snapshotID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, status.ErrNotFound.WrapMessage("snapshot %q", snapshotID)
	}
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return rec, nil
}

// List returns the full history for a root ettle, oldest first.
func (ld *Ledger) List(ctx context.Context, rootEttleID string) ([]*model.SnapshotRecord, error) {
	rows, err := ld.db.QueryContext(ctx, `
		SELECT snapshot_id, root_ettle_id, manifest_digest, semantic_manifest_digest,
		       created_at, parent_snapshot_id, policy_ref, profile_ref, status
		FROM snapshots WHERE root_ettle_id = ?
		ORDER BY snapshot_id ASC`, rootEttleID)
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.SnapshotRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, status.ErrPersistence.Wrap(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.SnapshotRecord, error) {
	var rec model.SnapshotRecord
	var createdAt string
	if err := row.Scan(
		&rec.SnapshotID, &rec.RootEttleID, &rec.ManifestDigest, &rec.SemanticManifestDigest,
		&createdAt, &rec.ParentSnapshotID, &rec.PolicyRef, &rec.ProfileRef, &rec.Status,
	); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = ts
	return &rec, nil
}
