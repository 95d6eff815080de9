// Package store provides SQLite-backed persistence for the Tool Foundry.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
//
// tool_artifacts carries a UNIQUE constraint on content_hash: registration
// of byte-identical source must resolve to one row no matter how many
// callers race the insert.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS tool_artifacts (
	artifact_id       TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	version           TEXT NOT NULL,
	content_hash      TEXT NOT NULL UNIQUE,
	storage_path      TEXT NOT NULL,
	category          TEXT NOT NULL,
	capabilities_json TEXT NOT NULL DEFAULT '[]',
	contract_id       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'provisional',
	highest_stage     TEXT NOT NULL DEFAULT 'none',
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_name ON tool_artifacts(name, version);

CREATE TABLE IF NOT EXISTS execution_traces (
	trace_id    TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL,
	artifact_id TEXT NOT NULL DEFAULT '',
	args_json   TEXT NOT NULL DEFAULT '{}',
	stdout      TEXT NOT NULL DEFAULT '',
	stderr      TEXT NOT NULL DEFAULT '',
	exit_code   INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	stage       TEXT NOT NULL DEFAULT 'none',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_traces_task ON execution_traces(task_id);

CREATE TABLE IF NOT EXISTS error_reports (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	root_cause TEXT NOT NULL DEFAULT '',
	trace_id   TEXT NOT NULL,
	attempt    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_trace ON error_reports(trace_id);

CREATE TABLE IF NOT EXISTS tool_patches (
	id           TEXT PRIMARY KEY,
	task_id      TEXT NOT NULL,
	attempt      INTEGER NOT NULL,
	approach     TEXT NOT NULL DEFAULT '',
	prev_failure TEXT NOT NULL DEFAULT '',
	artifact_id  TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patches_task ON tool_patches(task_id, attempt);

CREATE TABLE IF NOT EXISTS gate_decisions (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	action        TEXT NOT NULL,
	tier          TEXT NOT NULL,
	checkpoint_id TEXT NOT NULL DEFAULT '',
	approved      INTEGER NOT NULL DEFAULT 0,
	outcome       TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_task ON gate_decisions(task_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	id               TEXT PRIMARY KEY,
	task_id          TEXT NOT NULL,
	max_artifact_row INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'open',
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_task ON checkpoints(task_id, status);

CREATE TABLE IF NOT EXISTS audit_records (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	category      TEXT NOT NULL,
	actor         TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	request_json  TEXT NOT NULL DEFAULT '{}',
	decision_json TEXT NOT NULL DEFAULT '{}',
	severity      TEXT NOT NULL DEFAULT 'info',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_records(task_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
