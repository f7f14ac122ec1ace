package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id             TEXT PRIMARY KEY,
		device         TEXT NOT NULL,
		priority       INTEGER NOT NULL DEFAULT 1,
		state          TEXT NOT NULL DEFAULT 'QUEUED',
		program        TEXT NOT NULL DEFAULT '',
		max_retries    INTEGER NOT NULL DEFAULT 0,
		attempts       INTEGER NOT NULL DEFAULT 0,
		gate_count     INTEGER NOT NULL DEFAULT 0,
		depth          INTEGER NOT NULL DEFAULT 0,
		qubits         INTEGER NOT NULL DEFAULT 0,
		shots          INTEGER NOT NULL DEFAULT 0,
		source         TEXT NOT NULL DEFAULT '',
		error          TEXT NOT NULL DEFAULT '',
		result_summary TEXT NOT NULL DEFAULT '',
		elapsed_ms     INTEGER NOT NULL DEFAULT 0,
		submitted_at   TEXT NOT NULL,
		started_at     TEXT,
		completed_at   TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_device ON jobs(device)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_submitted_at ON jobs(submitted_at)`,
	// Compound index for the listing query (state filter, newest first)
	`CREATE INDEX IF NOT EXISTS idx_jobs_state_submitted ON jobs(state, submitted_at)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "jobs",
		column:   "source",
		alterSQL: "ALTER TABLE jobs ADD COLUMN source TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "jobs",
		column:   "result_summary",
		alterSQL: "ALTER TABLE jobs ADD COLUMN result_summary TEXT NOT NULL DEFAULT ''",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	// Execute ALTER TABLE statements idempotently.
	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil // Column already exists
		}
	}

	// Column doesn't exist, add it.
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
