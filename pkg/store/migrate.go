package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version applied by migrate.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE runs (
    run_id TEXT PRIMARY KEY,
    saved_at TEXT NOT NULL,
    days INTEGER NOT NULL,
    records INTEGER NOT NULL,
    timelines INTEGER NOT NULL,
    background INTEGER NOT NULL,
    faulted INTEGER NOT NULL,
    candidates INTEGER NOT NULL,
    committed INTEGER NOT NULL,
    discarded INTEGER NOT NULL
);

CREATE TABLE snapshots (
    run_id TEXT NOT NULL,
    day_index INTEGER NOT NULL,
    day TEXT NOT NULL,
    stage TEXT NOT NULL,
    count INTEGER NOT NULL,
    PRIMARY KEY (run_id, day_index, stage),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE TABLE transitions (
    run_id TEXT NOT NULL,
    record_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    at TEXT NOT NULL,
    stage TEXT NOT NULL,
    previous TEXT NOT NULL,
    PRIMARY KEY (run_id, record_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX idx_transitions_stage ON transitions(run_id, stage);

CREATE TABLE faults (
    run_id TEXT NOT NULL,
    record_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    detail TEXT NOT NULL,
    PRIMARY KEY (run_id, record_id),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
`

// migrate brings the schema up to SchemaVersion.
func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int

	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, schemaV1)
	if err != nil {
		return fmt.Errorf("migrate: apply v1: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}

	return nil
}
