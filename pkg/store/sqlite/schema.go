package sqlite

import (
	"context"
	"fmt"
)

const schemaVersion = 1

// migrate creates (or upgrades) the run store schema in-place.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 1)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS test_runs (
			run_id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			scenario TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_test_runs_created
			ON test_runs (created_at DESC);`,

		`CREATE TABLE IF NOT EXISTS test_plans (
			run_id TEXT PRIMARY KEY REFERENCES test_runs(run_id),
			plan_json TEXT NOT NULL,
			generated_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS test_cases (
			run_id TEXT NOT NULL REFERENCES test_runs(run_id),
			tc_id TEXT NOT NULL,
			-- position preserves plan-authored order for execution and reporting
			position INTEGER NOT NULL,
			description TEXT NOT NULL,
			steps_json TEXT NOT NULL,
			expected_result TEXT NOT NULL,
			actual_result TEXT,
			status TEXT NOT NULL,
			notes TEXT,
			executed_at TIMESTAMP,
			PRIMARY KEY (run_id, tc_id)
		);`,

		`CREATE TABLE IF NOT EXISTS test_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES test_runs(run_id),
			message TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_test_logs_run
			ON test_logs (run_id, id);`,

		`CREATE TABLE IF NOT EXISTS test_reports (
			run_id TEXT PRIMARY KEY REFERENCES test_runs(run_id),
			report_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE schema_meta SET schema_version = ? WHERE id = 1`, schemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	return tx.Commit()
}
