package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scenariolabs/verdict/pkg/qa"
	"github.com/scenariolabs/verdict/pkg/store"
)

// AppendLog appends one timestamped line to the run's log.
func (s *Store) AppendLog(ctx context.Context, runID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_logs (run_id, message, timestamp) VALUES (?, ?, ?)`,
		runID, message, time.Now().UTC())
	if err != nil {
		return &store.StoreError{Op: "AppendLog", RunID: runID, Err: err}
	}
	return nil
}

// ListLogs returns the run's log lines in append order.
func (s *Store) ListLogs(ctx context.Context, runID string) ([]qa.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message, timestamp FROM test_logs WHERE run_id = ? ORDER BY id ASC`,
		runID)
	if err != nil {
		return nil, &store.StoreError{Op: "ListLogs", RunID: runID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var entries []qa.LogEntry
	for rows.Next() {
		var e qa.LogEntry
		if err := rows.Scan(&e.Message, &e.Timestamp); err != nil {
			return nil, &store.StoreError{Op: "ListLogs", RunID: runID, Err: fmt.Errorf("scan log: %w", err)}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.StoreError{Op: "ListLogs", RunID: runID, Err: err}
	}
	return entries, nil
}

// SaveReport persists the final report artifact for a run, replacing
// any earlier copy.
func (s *Store) SaveReport(ctx context.Context, runID string, report *qa.Report) error {
	b, err := json.Marshal(report)
	if err != nil {
		return &store.StoreError{Op: "SaveReport", RunID: runID, Err: fmt.Errorf("marshal report: %w", err)}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO test_reports (run_id, report_json, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET report_json = excluded.report_json,
		                                   created_at = excluded.created_at`,
		runID, string(b), time.Now().UTC())
	if err != nil {
		return &store.StoreError{Op: "SaveReport", RunID: runID, Err: err}
	}
	return nil
}

// GetReport returns the stored report for a run.
func (s *Store) GetReport(ctx context.Context, runID string) (*qa.Report, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT report_json FROM test_reports WHERE run_id = ?`,
		runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &store.StoreError{Op: "GetReport", RunID: runID, Err: store.ErrNotFound}
	}
	if err != nil {
		return nil, &store.StoreError{Op: "GetReport", RunID: runID, Err: err}
	}

	var report qa.Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, &store.StoreError{Op: "GetReport", RunID: runID, Err: fmt.Errorf("parse report: %w", err)}
	}
	return &report, nil
}
