package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scenariolabs/verdict/pkg/qa"
	"github.com/scenariolabs/verdict/pkg/store"
)

// CreateRun persists a new run.
func (s *Store) CreateRun(ctx context.Context, run *qa.TestRun) error {
	if run == nil {
		return &store.StoreError{Op: "CreateRun", Err: errors.New("run is nil")}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_runs (run_id, target, scenario, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Target, run.Scenario, string(run.Status),
		run.CreatedAt.UTC(), run.UpdatedAt.UTC())
	if err != nil {
		return &store.StoreError{Op: "CreateRun", RunID: run.RunID, Err: err}
	}
	return nil
}

// GetRun returns a run by its external id.
func (s *Store) GetRun(ctx context.Context, runID string) (*qa.TestRun, error) {
	var run qa.TestRun
	var status string

	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, target, scenario, status, created_at, updated_at
		 FROM test_runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.Target, &run.Scenario, &status,
		&run.CreatedAt, &run.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.StoreError{Op: "GetRun", RunID: runID, Err: store.ErrNotFound}
	}
	if err != nil {
		return nil, &store.StoreError{Op: "GetRun", RunID: runID, Err: err}
	}

	run.Status = qa.RunStatus(status)
	return &run, nil
}

// ListRuns returns runs ordered newest-first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]qa.TestRun, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, target, scenario, status, created_at, updated_at
		 FROM test_runs
		 ORDER BY created_at DESC, run_id DESC
		 LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, &store.StoreError{Op: "ListRuns", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var runs []qa.TestRun
	for rows.Next() {
		var run qa.TestRun
		var status string
		if err := rows.Scan(&run.RunID, &run.Target, &run.Scenario, &status,
			&run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, &store.StoreError{Op: "ListRuns", Err: fmt.Errorf("scan run: %w", err)}
		}
		run.Status = qa.RunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.StoreError{Op: "ListRuns", Err: err}
	}
	return runs, nil
}

// UpdateRunStatus sets the run status and refreshes updated_at.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status qa.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_runs SET status = ?, updated_at = ? WHERE run_id = ?`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return &store.StoreError{Op: "UpdateRunStatus", RunID: runID, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &store.StoreError{Op: "UpdateRunStatus", RunID: runID, Err: store.ErrNotFound}
	}
	return nil
}
