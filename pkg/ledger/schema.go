package ledger

// schemaVersion is bumped on any DDL change. Opening a database with a
// newer recorded version fails rather than guessing at migrations.
const schemaVersion = 1

const ddlSnapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id              TEXT PRIMARY KEY,
	root_ettle_id            TEXT NOT NULL,
	manifest_digest          TEXT NOT NULL,
	semantic_manifest_digest TEXT NOT NULL,
	created_at               TEXT NOT NULL,
	parent_snapshot_id       TEXT NOT NULL DEFAULT '',
	policy_ref               TEXT NOT NULL DEFAULT '',
	profile_ref              TEXT NOT NULL DEFAULT '',
	status                   TEXT NOT NULL,
	UNIQUE (root_ettle_id, parent_snapshot_id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_root
	ON snapshots (root_ettle_id, snapshot_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_semantic
	ON snapshots (semantic_manifest_digest);
`

const ddlProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
	name       TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const ddlApprovals = `
CREATE TABLE IF NOT EXISTS approvals (
	token         TEXT PRIMARY KEY,
	root_ettle_id TEXT NOT NULL,
	profile_ref   TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL,
	candidates    TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`

const ddlMetadata = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const ddlSchemaVersion = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
`

var allDDL = []string{
	ddlSnapshots,
	ddlProfiles,
	ddlApprovals,
	ddlMetadata,
	ddlSchemaVersion,
}
