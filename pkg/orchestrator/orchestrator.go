// Package orchestrator drives the full lifecycle of automated test
// runs: plan generation, sequential case execution, persistence,
// progress fan-out, and the final report.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scenariolabs/verdict/pkg/agent"
	"github.com/scenariolabs/verdict/pkg/artifact"
	"github.com/scenariolabs/verdict/pkg/eventbus"
	"github.com/scenariolabs/verdict/pkg/extract"
	"github.com/scenariolabs/verdict/pkg/qa"
	"github.com/scenariolabs/verdict/pkg/store"
)

// Extraction specs for the two record shapes the agent produces.
var (
	planSpec = extract.Spec{
		RequiredKeys: []string{"test_cases"},
		ItemKey:      "id",
		ListKey:      "test_cases",
	}
	caseResultSpec = extract.Spec{
		RequiredKeys: []string{"actual_result", "status"},
	}
)

// Deps are the collaborators one run needs.
type Deps struct {
	Store    store.Store
	Agent    agent.Runner
	Bus      *eventbus.Bus
	Logger   *zap.Logger
	Archiver artifact.Archiver // optional; reports are archived best-effort

	// AgentTimeout bounds each agent invocation. Zero disables the
	// bound. Expiry is treated like any other agent error: fatal for
	// planning, ERROR-and-continue for a case.
	AgentTimeout time.Duration

	// Limiter, when set, paces agent invocations across all concurrent
	// runs sharing it.
	Limiter *rate.Limiter

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Orchestrator runs the lifecycle of exactly one TestRun from PENDING
// to a terminal status. It owns the run's in-memory working set and is
// its sole writer; it is not safe for concurrent use and must not be
// reused across runs.
type Orchestrator struct {
	run    *qa.TestRun
	deps   Deps
	timing *qa.PhaseTiming
	now    func() time.Time
	logger *zap.Logger
}

// New creates an orchestrator for one run. The run must already be
// persisted with status PENDING.
func New(run *qa.TestRun, deps Deps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		run:    run,
		deps:   deps,
		timing: qa.NewPhaseTiming(),
		now:    now,
		logger: logger.With(zap.String("run_id", run.RunID)),
	}
}

// Timing returns the run's timing record. It is read-only once the run
// reaches a terminal state.
func (o *Orchestrator) Timing() *qa.PhaseTiming {
	return o.timing
}

// Execute drives the run to a terminal status.
//
// Planning failure is fatal. A single case's failure is recorded as
// ERROR on that case and execution continues. Everything else -
// persistence errors, cancellation, panics - lands in the catch-all
// path: the run is marked FAILED, observers get a final status event
// carrying the error description, and not-yet-processed cases keep
// their prior state.
func (o *Orchestrator) Execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			o.fail(ctx, err)
		}
	}()
	return o.execute(ctx)
}

func (o *Orchestrator) execute(ctx context.Context) error {
	start := o.now()
	o.timing.Total.MarkStart(start)
	o.timing.Planning.MarkStart(start)

	if err := o.setStatus(ctx, qa.RunStatusGeneratingPlan, "Generating test plan...", nil); err != nil {
		return err
	}
	if err := o.logLine(ctx, fmt.Sprintf("Creating test plan for %s", o.run.Target)); err != nil {
		return err
	}

	plan, err := o.generatePlan(ctx)
	if err != nil {
		return fmt.Errorf("generate plan: %w", err)
	}

	if err := o.deps.Store.CreatePlan(ctx, o.run.RunID, plan); err != nil {
		return err
	}
	if err := o.logLine(ctx, fmt.Sprintf("Test plan created with %d test cases", len(plan.Cases))); err != nil {
		return err
	}

	if err := o.setStatus(ctx, qa.RunStatusExecutingTests, "Executing test cases...", nil); err != nil {
		return err
	}
	o.timing.Execution.MarkStart(o.now())

	results := make([]qa.TestCase, 0, len(plan.Cases))
	for i, tc := range plan.Cases {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled before case %s: %w", tc.ID, err)
		}

		o.publishCaseRunning(tc.ID, i+1, len(plan.Cases))
		if err := o.logLine(ctx, fmt.Sprintf("Executing test case %s (%d/%d): %s",
			tc.ID, i+1, len(plan.Cases), tc.Description)); err != nil {
			return err
		}

		done, err := o.executeCase(ctx, tc)
		if err != nil {
			return err
		}

		if err := o.deps.Store.UpdateCaseResult(ctx, o.run.RunID, done.ID,
			done.ActualResult, done.Status, done.Notes, *done.ExecutedAt); err != nil {
			return err
		}
		if err := o.logLine(ctx, fmt.Sprintf("Test case %s completed with status: %s",
			done.ID, done.Status)); err != nil {
			return err
		}
		o.publishCaseResult(done)

		results = append(results, done)
	}

	o.timing.Execution.MarkEnd(o.now())
	o.timing.FinishTotal(o.now())

	if err := o.logLine(ctx, "Generating test report..."); err != nil {
		return err
	}
	report := qa.BuildReport(o.run, results, o.timing)
	if err := o.deps.Store.SaveReport(ctx, o.run.RunID, report); err != nil {
		return err
	}
	o.archiveReport(ctx, report)

	if err := o.setStatus(ctx, qa.RunStatusCompleted, "Test run completed", report.Summary); err != nil {
		return err
	}
	return o.logLine(ctx, fmt.Sprintf("Test run completed. %d/%d tests passed.",
		report.Summary.Passed, report.Summary.TotalTests))
}

// generatePlan invokes the agent with the planning task and extracts
// the structured plan. Any failure here is fatal to the run.
func (o *Orchestrator) generatePlan(ctx context.Context) (*qa.TestPlan, error) {
	raw, err := o.invokeAgent(ctx, agent.PlanningTask(o.run.Target, o.run.Scenario), "planning")
	o.timing.Planning.MarkEnd(o.now())
	if err != nil {
		return nil, err
	}

	m, err := extract.Extract(raw, planSpec)
	if err != nil {
		return nil, err
	}

	var plan qa.TestPlan
	if err := extract.Decode(m, &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(plan.Cases) == 0 {
		return nil, fmt.Errorf("plan contains no test cases")
	}

	plan.Target = o.run.Target
	plan.Scenario = o.run.Scenario
	seen := make(map[string]bool, len(plan.Cases))
	for i := range plan.Cases {
		tc := &plan.Cases[i]
		if tc.ID == "" || seen[tc.ID] {
			tc.ID = fmt.Sprintf("TC%03d", i+1)
		}
		seen[tc.ID] = true
		tc.Status = qa.CaseStatusPending
		tc.ActualResult = ""
		tc.Notes = ""
		tc.ExecutedAt = nil
	}
	return &plan, nil
}

// executeCase runs one case through the agent and maps the outcome.
// Per-case failures (agent error, extraction failure, unusable status)
// produce a terminal ERROR with a diagnostic note and a nil error; only
// cancellation is returned as fatal.
func (o *Orchestrator) executeCase(ctx context.Context, tc qa.TestCase) (qa.TestCase, error) {
	span := o.timing.CaseSpan(tc.ID)
	span.MarkStart(o.now())

	raw, invokeErr := o.invokeAgent(ctx, agent.ExecutionTask(o.run.Target, tc), "execution")

	finished := o.now()
	span.MarkEnd(finished)
	executedAt := finished.UTC()
	tc.ExecutedAt = &executedAt

	if invokeErr != nil {
		if ctx.Err() != nil {
			return tc, fmt.Errorf("run cancelled during case %s: %w", tc.ID, ctx.Err())
		}
		tc.Status = qa.CaseStatusError
		tc.Notes = fmt.Sprintf("Error executing test case: %v", invokeErr)
		return tc, nil
	}

	m, err := extract.Extract(raw, caseResultSpec)
	if err != nil {
		tc.Status = qa.CaseStatusError
		tc.Notes = fmt.Sprintf("Error processing execution result: %v", err)
		return tc, nil
	}

	var result struct {
		ActualResult string `json:"actual_result"`
		Status       string `json:"status"`
		Notes        string `json:"notes"`
	}
	if err := extract.Decode(m, &result); err != nil {
		tc.Status = qa.CaseStatusError
		tc.Notes = fmt.Sprintf("Error processing execution result: %v", err)
		return tc, nil
	}

	tc.ActualResult = result.ActualResult
	tc.Notes = result.Notes
	tc.Status = normalizeCaseStatus(result.Status, &tc)
	return tc, nil
}

// normalizeCaseStatus maps the agent's reported status onto the closed
// status set. Anything unrecognized becomes ERROR with a note.
func normalizeCaseStatus(reported string, tc *qa.TestCase) qa.CaseStatus {
	switch qa.CaseStatus(strings.ToUpper(strings.TrimSpace(reported))) {
	case qa.CaseStatusPass:
		return qa.CaseStatusPass
	case qa.CaseStatusFail:
		return qa.CaseStatusFail
	case qa.CaseStatusError:
		return qa.CaseStatusError
	}
	if tc.Notes != "" {
		tc.Notes += "; "
	}
	tc.Notes += fmt.Sprintf("unexpected status %q from agent", reported)
	return qa.CaseStatusError
}

// invokeAgent runs one task through the shared rate limiter and the
// per-invocation timeout.
func (o *Orchestrator) invokeAgent(ctx context.Context, task, phase string) (string, error) {
	if o.deps.Limiter != nil {
		if err := o.deps.Limiter.Wait(ctx); err != nil {
			return "", &agent.InvocationError{Phase: phase, Err: err}
		}
	}

	if o.deps.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.AgentTimeout)
		defer cancel()
	}

	raw, err := o.deps.Agent.Run(ctx, task)
	if err != nil {
		return "", &agent.InvocationError{Phase: phase, Err: err}
	}
	return raw, nil
}

// setStatus advances the run status, persists it, and publishes a
// status_update event. Terminal states are never left.
func (o *Orchestrator) setStatus(ctx context.Context, status qa.RunStatus, message string, summary any) error {
	if o.run.Status.Terminal() {
		return nil
	}
	if err := o.deps.Store.UpdateRunStatus(ctx, o.run.RunID, status); err != nil {
		return err
	}
	o.run.Status = status
	o.run.UpdatedAt = o.now().UTC()

	data := map[string]any{
		"status":  string(status),
		"message": message,
	}
	if summary != nil {
		data["summary"] = summary
	}
	o.deps.Bus.Publish(o.run.RunID, eventbus.Event{Type: eventbus.TypeStatusUpdate, Data: data})
	return nil
}

// fail is the catch-all fatal path: record FAILED and give observers a
// best-effort final status event carrying the error description.
func (o *Orchestrator) fail(ctx context.Context, cause error) {
	if o.run.Status.Terminal() {
		return
	}
	o.logger.Error("Test run failed", zap.Error(cause))

	// The final writes must survive the cancellation that may have
	// caused the failure.
	ctx = context.WithoutCancel(ctx)

	if err := o.deps.Store.UpdateRunStatus(ctx, o.run.RunID, qa.RunStatusFailed); err != nil {
		o.logger.Error("Failed to record FAILED status", zap.Error(err))
	} else {
		o.run.Status = qa.RunStatusFailed
		o.run.UpdatedAt = o.now().UTC()
	}
	if err := o.deps.Store.AppendLog(ctx, o.run.RunID, fmt.Sprintf("Error: %v", cause)); err != nil {
		o.logger.Warn("Failed to append failure log", zap.Error(err))
	}

	o.deps.Bus.Publish(o.run.RunID, eventbus.Event{
		Type: eventbus.TypeStatusUpdate,
		Data: map[string]any{
			"status":  string(qa.RunStatusFailed),
			"message": fmt.Sprintf("Error: %v", cause),
		},
	})
}

// logLine appends to the run's durable log and mirrors the line to
// observers as a log event.
func (o *Orchestrator) logLine(ctx context.Context, message string) error {
	if err := o.deps.Store.AppendLog(ctx, o.run.RunID, message); err != nil {
		return err
	}
	o.deps.Bus.Publish(o.run.RunID, eventbus.Event{
		Type: eventbus.TypeLog,
		Data: map[string]any{
			"message":   message,
			"timestamp": o.now().UTC().Format(time.RFC3339Nano),
		},
	})
	return nil
}

func (o *Orchestrator) publishCaseRunning(tcID string, current, total int) {
	o.deps.Bus.Publish(o.run.RunID, eventbus.Event{
		Type: eventbus.TypeTestCaseUpdate,
		Data: map[string]any{
			"tc_id":   tcID,
			"status":  "RUNNING",
			"current": current,
			"total":   total,
		},
	})
}

func (o *Orchestrator) publishCaseResult(tc qa.TestCase) {
	o.deps.Bus.Publish(o.run.RunID, eventbus.Event{
		Type: eventbus.TypeTestCaseUpdate,
		Data: map[string]any{
			"tc_id":         tc.ID,
			"status":        string(tc.Status),
			"actual_result": tc.ActualResult,
			"notes":         tc.Notes,
		},
	})
}

// archiveReport ships the report to the configured archive.
// Best-effort: failures are logged and do not affect the run.
func (o *Orchestrator) archiveReport(ctx context.Context, report *qa.Report) {
	if o.deps.Archiver == nil {
		return
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		o.logger.Warn("Failed to marshal report for archive", zap.Error(err))
		return
	}
	loc, err := o.deps.Archiver.Store(ctx, o.run.RunID, b)
	if err != nil {
		o.logger.Warn("Failed to archive report", zap.Error(err))
		return
	}
	o.logger.Info("Archived report", zap.String("location", loc))
}
