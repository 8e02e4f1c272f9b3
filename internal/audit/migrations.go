package audit

import "database/sql"

// migration is one linear, numbered schema change. Migrations are applied
// once, in order, and recorded in the schema_version table so a restart
// never re-applies one.
type migration struct {
	version int
	stmt    string
}

var migrations = []migration{
	{
		version: 1,
		stmt: `
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp_ms INTEGER NOT NULL,
	server_name TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	tool_args TEXT NOT NULL DEFAULT '',
	result TEXT NOT NULL DEFAULT '',
	truncated INTEGER NOT NULL DEFAULT 0,
	blocked INTEGER NOT NULL DEFAULT 0,
	block_reason TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_log_server ON audit_log(server_name);
CREATE INDEX IF NOT EXISTS idx_audit_log_tool ON audit_log(tool_name);
CREATE INDEX IF NOT EXISTS idx_audit_log_blocked ON audit_log(blocked);
`,
	},
	{
		version: 2,
		stmt: `
CREATE TABLE IF NOT EXISTS proxy_rule (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	pattern TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '*',
	priority INTEGER NOT NULL DEFAULT 0,
	enabled INTEGER NOT NULL DEFAULT 1,
	reason TEXT NOT NULL DEFAULT '',
	max_calls INTEGER NOT NULL DEFAULT 0,
	window_seconds INTEGER NOT NULL DEFAULT 0,
	insertion_order INTEGER NOT NULL
);
`,
	},
}

// applyMigrations creates schema_version if needed and runs every
// migration newer than the current version, each inside its own
// transaction, recording the new version as it goes.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	current := 0
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
