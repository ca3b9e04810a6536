package qa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassRate(t *testing.T) {
	tests := []struct {
		name   string
		passed int
		total  int
		want   string
	}{
		{"zero total", 0, 0, "0%"},
		{"two of three", 2, 3, "66.67%"},
		{"all passed", 4, 4, "100.00%"},
		{"none passed", 0, 5, "0.00%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PassRate(tt.passed, tt.total))
		})
	}
}

func TestBuildReport(t *testing.T) {
	run := &TestRun{
		RunID:    "run-abc123",
		Target:   "https://shop.example.com",
		Scenario: "checkout flow",
	}
	results := []TestCase{
		{ID: "TC001", Status: CaseStatusPass},
		{ID: "TC002", Status: CaseStatusFail},
		{ID: "TC003", Status: CaseStatusPass},
		{ID: "TC004", Status: CaseStatusError},
	}

	timing := NewPhaseTiming()
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	timing.Planning.MarkStart(base)
	timing.Planning.MarkEnd(base.Add(12500 * time.Millisecond))
	timing.Execution.MarkStart(base.Add(13 * time.Second))
	timing.Execution.MarkEnd(base.Add(43 * time.Second))
	timing.Total.MarkStart(base)
	timing.FinishTotal(base.Add(43 * time.Second))

	report := BuildReport(run, results, timing)

	assert.Equal(t, "https://shop.example.com", report.Summary.URL)
	assert.Equal(t, "checkout flow", report.Summary.Scenario)
	assert.Equal(t, 4, report.Summary.TotalTests)
	assert.Equal(t, 2, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Errors)
	assert.Equal(t, "50.00%", report.Summary.PassRate)

	assert.Equal(t, 12.5, report.Summary.Timing.PlanningSeconds)
	assert.Equal(t, 30.0, report.Summary.Timing.ExecutionSeconds)
	assert.Equal(t, 42.5, report.Summary.Timing.TotalSeconds)

	require.Len(t, report.TestResults, 4)
	assert.Equal(t, "TC001", report.TestResults[0].ID)
}

func TestBuildReport_EmptyRun(t *testing.T) {
	run := &TestRun{RunID: "run-empty", Target: "https://example.com"}

	report := BuildReport(run, nil, NewPhaseTiming())

	assert.Equal(t, 0, report.Summary.TotalTests)
	assert.Equal(t, "0%", report.Summary.PassRate)
	assert.Empty(t, report.TestResults)
}

func TestPhaseTiming_CaseSpans(t *testing.T) {
	timing := NewPhaseTiming()
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	span := timing.CaseSpan("TC001")
	span.MarkStart(base)
	span.MarkEnd(base.Add(3210 * time.Millisecond))

	// Same span is returned on re-lookup.
	assert.Same(t, span, timing.CaseSpan("TC001"))
	assert.Equal(t, 3.21, timing.Execution.Tests["TC001"].Duration)
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.False(t, RunStatusPending.Terminal())
	assert.False(t, RunStatusGeneratingPlan.Terminal())
	assert.False(t, RunStatusExecutingTests.Terminal())
}
