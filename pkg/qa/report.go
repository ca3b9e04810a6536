package qa

import "fmt"

// Report is the final artifact produced once a run reaches a terminal
// state.
type Report struct {
	Summary     Summary      `json:"summary"`
	TestResults []TestCase   `json:"test_results"`
	Timing      *PhaseTiming `json:"timing"`
}

// Summary aggregates case outcomes for a run.
type Summary struct {
	URL        string        `json:"url"`
	Scenario   string        `json:"scenario"`
	TotalTests int           `json:"total_tests"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Errors     int           `json:"errors"`
	PassRate   string        `json:"pass_rate"`
	Timing     SummaryTiming `json:"timing"`
}

// SummaryTiming carries the per-phase durations in seconds.
type SummaryTiming struct {
	PlanningSeconds  float64 `json:"planning_seconds"`
	ExecutionSeconds float64 `json:"execution_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
}

// BuildReport assembles the report for a run from its executed cases
// and timing record.
func BuildReport(run *TestRun, results []TestCase, timing *PhaseTiming) *Report {
	var passed, failed, errored int
	for _, tc := range results {
		switch tc.Status {
		case CaseStatusPass:
			passed++
		case CaseStatusFail:
			failed++
		case CaseStatusError:
			errored++
		}
	}

	summary := Summary{
		URL:        run.Target,
		Scenario:   run.Scenario,
		TotalTests: len(results),
		Passed:     passed,
		Failed:     failed,
		Errors:     errored,
		PassRate:   PassRate(passed, len(results)),
	}
	if timing != nil {
		summary.Timing = SummaryTiming{
			PlanningSeconds:  timing.Planning.Duration,
			ExecutionSeconds: timing.Execution.Duration,
			TotalSeconds:     timing.Total.Duration,
		}
	}

	return &Report{
		Summary:     summary,
		TestResults: results,
		Timing:      timing,
	}
}

// PassRate formats passed/total as a percentage with two decimal
// places. Zero total yields the literal "0%".
func PassRate(passed, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(passed)/float64(total)*100)
}
