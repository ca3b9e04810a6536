// Package store defines the persistence surface consumed by the
// test-run orchestration engine.
//
// The engine is the sole writer for a run and never reads its own
// working set back mid-run; implementations therefore only need
// synchronous, best-effort CRUD. Multi-step sequences (such as creating
// a plan's cases) are intentionally not transactional - a crash
// mid-sequence can leave partial durable state, and the engine accepts
// that.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scenariolabs/verdict/pkg/qa"
)

// ErrNotFound indicates the requested run, case, or report does not
// exist.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError wraps storage errors with operation context.
type StoreError struct {
	// Op is the operation that failed (e.g., "CreateRun").
	Op string

	// RunID is the externally addressable run id, if applicable.
	RunID string

	// Err is the underlying error.
	Err error
}

func (e *StoreError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("store %s: %s: %v", e.Op, e.RunID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store is the durable side of a test run.
//
// Implementations must be safe for concurrent use: many runs proceed at
// once, each writing only its own records.
type Store interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, run *qa.TestRun) error

	// GetRun returns a run by its external id.
	// Returns ErrNotFound if no such run exists.
	GetRun(ctx context.Context, runID string) (*qa.TestRun, error)

	// ListRuns returns runs ordered newest-first.
	ListRuns(ctx context.Context, limit, offset int) ([]qa.TestRun, error)

	// UpdateRunStatus sets the run status and refreshes its updated_at.
	UpdateRunStatus(ctx context.Context, runID string, status qa.RunStatus) error

	// CreatePlan persists the generated plan and its case
	// specifications, preserving plan order.
	CreatePlan(ctx context.Context, runID string, plan *qa.TestPlan) error

	// UpdateCaseResult records the outcome of one case, addressed by its
	// tc_id within the run.
	UpdateCaseResult(ctx context.Context, runID, tcID string, actual string, status qa.CaseStatus, notes string, executedAt time.Time) error

	// ListCases returns the run's cases in plan order.
	ListCases(ctx context.Context, runID string) ([]qa.TestCase, error)

	// AppendLog appends one timestamped line to the run's log.
	AppendLog(ctx context.Context, runID, message string) error

	// ListLogs returns the run's log lines in append order.
	ListLogs(ctx context.Context, runID string) ([]qa.LogEntry, error)

	// SaveReport persists the final report artifact for a terminal run.
	SaveReport(ctx context.Context, runID string, report *qa.Report) error

	// GetReport returns the stored report.
	// Returns ErrNotFound until the run has produced one.
	GetReport(ctx context.Context, runID string) (*qa.Report, error)

	// Close releases underlying resources.
	Close() error
}
