package persistence

import (
	"fmt"
)

// CurrentSchemaVersion is bumped whenever a migration is added.
const CurrentSchemaVersion = 1

func (s *Store) migrate() error {
	version, err := s.schemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == 0 {
		return s.createSchema()
	}
	if version == CurrentSchemaVersion {
		return nil
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, CurrentSchemaVersion)
	}

	// Future migrations go here, applied one version at a time.
	return fmt.Errorf("no migration path from schema version %d", version)
}

func (s *Store) schemaVersion() (int, error) {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to ensure schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		// Empty table means a fresh database.
		return 0, nil //nolint:nilerr // absence of a row is version 0
	}
	return version, nil
}

func (s *Store) createSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS approval_requests (
	id            TEXT PRIMARY KEY,
	intent        TEXT NOT NULL,
	risk          TEXT NOT NULL,
	plan_summary  TEXT NOT NULL,
	plan_json     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	decided_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS turns (
	trace_id    TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	stop_reason TEXT,
	goal        TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS undo_records (
	id          TEXT PRIMARY KEY,
	trace_id    TEXT NOT NULL,
	path        TEXT NOT NULL,
	before_hash TEXT NOT NULL,
	after_hash  TEXT NOT NULL,
	backup_path TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_undo_path ON undo_records(path, created_at);

CREATE TABLE IF NOT EXISTS usage (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id          TEXT NOT NULL,
	model             TEXT NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	cost_usd          REAL NOT NULL,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_trace ON usage(trace_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to reset schema version: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
