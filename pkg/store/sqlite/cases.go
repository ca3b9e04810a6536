package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scenariolabs/verdict/pkg/qa"
	"github.com/scenariolabs/verdict/pkg/store"
)

// CreatePlan persists the plan document and one row per case in plan
// order. The rows are written sequentially without a transaction; the
// engine tolerates partial state after a crash.
func (s *Store) CreatePlan(ctx context.Context, runID string, plan *qa.TestPlan) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return &store.StoreError{Op: "CreatePlan", RunID: runID, Err: fmt.Errorf("marshal plan: %w", err)}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO test_plans (run_id, plan_json, generated_at) VALUES (?, ?, ?)`,
		runID, string(planJSON), time.Now().UTC())
	if err != nil {
		return &store.StoreError{Op: "CreatePlan", RunID: runID, Err: err}
	}

	for i, tc := range plan.Cases {
		stepsJSON, err := json.Marshal(tc.Steps)
		if err != nil {
			return &store.StoreError{Op: "CreatePlan", RunID: runID, Err: fmt.Errorf("marshal steps for %s: %w", tc.ID, err)}
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO test_cases
			 (run_id, tc_id, position, description, steps_json, expected_result, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, tc.ID, i, tc.Description, string(stepsJSON),
			tc.ExpectedResult, string(qa.CaseStatusPending))
		if err != nil {
			return &store.StoreError{Op: "CreatePlan", RunID: runID, Err: fmt.Errorf("insert case %s: %w", tc.ID, err)}
		}
	}
	return nil
}

// UpdateCaseResult records the outcome of one case by tc_id.
func (s *Store) UpdateCaseResult(ctx context.Context, runID, tcID string, actual string, status qa.CaseStatus, notes string, executedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_cases
		 SET actual_result = ?, status = ?, notes = ?, executed_at = ?
		 WHERE run_id = ? AND tc_id = ?`,
		actual, string(status), notes, executedAt.UTC(), runID, tcID)
	if err != nil {
		return &store.StoreError{Op: "UpdateCaseResult", RunID: runID, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &store.StoreError{Op: "UpdateCaseResult", RunID: runID, Err: fmt.Errorf("case %s: %w", tcID, store.ErrNotFound)}
	}
	return nil
}

// ListCases returns the run's cases in plan order.
func (s *Store) ListCases(ctx context.Context, runID string) ([]qa.TestCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tc_id, description, steps_json, expected_result,
		        actual_result, status, notes, executed_at
		 FROM test_cases
		 WHERE run_id = ?
		 ORDER BY position ASC`,
		runID)
	if err != nil {
		return nil, &store.StoreError{Op: "ListCases", RunID: runID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var cases []qa.TestCase
	for rows.Next() {
		var tc qa.TestCase
		var stepsJSON, status string
		var actual, notes sql.NullString
		var executedAt sql.NullTime

		if err := rows.Scan(&tc.ID, &tc.Description, &stepsJSON, &tc.ExpectedResult,
			&actual, &status, &notes, &executedAt); err != nil {
			return nil, &store.StoreError{Op: "ListCases", RunID: runID, Err: fmt.Errorf("scan case: %w", err)}
		}

		if err := json.Unmarshal([]byte(stepsJSON), &tc.Steps); err != nil {
			return nil, &store.StoreError{Op: "ListCases", RunID: runID, Err: fmt.Errorf("parse steps for %s: %w", tc.ID, err)}
		}
		tc.Status = qa.CaseStatus(status)
		if actual.Valid {
			tc.ActualResult = actual.String
		}
		if notes.Valid {
			tc.Notes = notes.String
		}
		if executedAt.Valid {
			t := executedAt.Time
			tc.ExecutedAt = &t
		}

		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.StoreError{Op: "ListCases", RunID: runID, Err: err}
	}
	return cases, nil
}
