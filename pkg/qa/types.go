// Package qa defines the domain model for automated test runs: the run
// lifecycle, the generated plan and its cases, phase timing, and the
// final report artifact.
package qa

import "time"

// RunStatus is the lifecycle state of a TestRun.
//
// Transitions are monotonic and forward-only:
// PENDING -> GENERATING_PLAN -> EXECUTING_TESTS -> {COMPLETED | FAILED}.
// COMPLETED and FAILED are terminal.
type RunStatus string

const (
	RunStatusPending        RunStatus = "PENDING"
	RunStatusGeneratingPlan RunStatus = "GENERATING_PLAN"
	RunStatusExecutingTests RunStatus = "EXECUTING_TESTS"
	RunStatusCompleted      RunStatus = "COMPLETED"
	RunStatusFailed         RunStatus = "FAILED"
)

// Terminal reports whether s is a terminal run status.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CaseStatus is the outcome of a single test case.
//
// A case starts PENDING and transitions exactly once to PASS, FAIL, or
// ERROR when its execution phase completes. The engine never re-executes
// a case.
type CaseStatus string

const (
	CaseStatusPending CaseStatus = "PENDING"
	CaseStatusPass    CaseStatus = "PASS"
	CaseStatusFail    CaseStatus = "FAIL"
	CaseStatusError   CaseStatus = "ERROR"
)

// TestRun is one end-to-end job instance for a target and scenario.
// RunID is the externally addressable identity, distinct from any
// storage key.
type TestRun struct {
	RunID     string    `json:"id"`
	Target    string    `json:"url"`
	Scenario  string    `json:"scenario"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TestCase is one planned check. The specification fields (ID through
// ExpectedResult) come from the plan; the result fields are populated
// after execution.
type TestCase struct {
	ID             string     `json:"id"`
	Description    string     `json:"description"`
	Steps          []string   `json:"steps"`
	ExpectedResult string     `json:"expected_result"`
	ActualResult   string     `json:"actual_result,omitempty"`
	Status         CaseStatus `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
}

// TestPlan is the ordered set of test cases produced for a run. Case
// order is the plan's authored order and is significant for execution
// and reporting.
type TestPlan struct {
	Target   string     `json:"url"`
	Scenario string     `json:"scenario"`
	Cases    []TestCase `json:"test_cases"`
}

// LogEntry is one timestamped free-text line in a run's append-only log.
type LogEntry struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
