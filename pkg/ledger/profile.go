package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/nickout/ettlex/pkg/status"
)

// FallbackProfileRef is the last-resort profile used when neither an
// explicit reference nor a configured default resolves.
const FallbackProfileRef = "baseline"

// Profile is a named constraint-resolution profile. The payload is an
// opaque document owned by the resolution layer.
type Profile struct {
	Name      string
	Payload   string
	CreatedAt time.Time
	UpdatedAt time.Time

	_ struct{}
}

// PutProfile creates or replaces a named profile.
func (ld *Ledger) PutProfile(ctx context.Context, name, payload string) error {
	if name == "" {
		return status.ErrInvalidInput.WrapMessage("profile name must be non-empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := ld.db.ExecContext(ctx, `
		INSERT INTO profiles (name, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, payload, now, now)
	if err != nil {
		return status.ErrPersistence.Wrap(err)
	}
	return nil
}

// GetProfile returns a named profile.
func (ld *Ledger) GetProfile(ctx context.Context, name string) (*Profile, error) {
	row := ld.db.QueryRowContext(ctx,
		`SELECT name, payload, created_at, updated_at FROM profiles WHERE name = ?`, name)
	var p Profile
	var created, updated string
	err := row.Scan(&p.Name, &p.Payload, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, status.ErrNotFound.WrapMessage("profile %q", name)
	}
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return &p, nil
}

// ResolveProfileRef picks the profile reference for a commit: the explicit
// ref wins, else the configured default, else the hardcoded fallback. An
// explicit or default ref that names a stored profile must resolve; the
// fallback is accepted unstored.
func (ld *Ledger) ResolveProfileRef(ctx context.Context, explicit, configuredDefault string) (string, error) {
	for _, ref := range []string{explicit, configuredDefault} {
		if ref == "" {
			continue
		}
		if _, err := ld.GetProfile(ctx, ref); err != nil {
			return "", status.ErrProfileDefaultMissing.Wrap(err)
		}
		return ref, nil
	}
	return FallbackProfileRef, nil
}
