package ledger

import (
	"context"
	"database/sql"

	"github.com/nickout/ettlex/pkg/status"
)

// MetadataKeySeedDigest records the provenance digest of the last imported seed.
const MetadataKeySeedDigest = "seed_digest"

// SetMetadata upserts a metadata key.
func (ld *Ledger) SetMetadata(ctx context.Context, key, value string) error {
	if key == "" {
		return status.ErrInvalidInput.WrapMessage("metadata key required")
	}
	_, err := ld.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return status.ErrPersistence.Wrap(err)
	}
	return nil
}

// GetMetadata returns the value stored under a metadata key.
func (ld *Ledger) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := ld.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", status.ErrNotFound.WrapMessage("metadata key %q", key)
	}
	if err != nil {
		return "", status.ErrPersistence.Wrap(err)
	}
	return value, nil
}
