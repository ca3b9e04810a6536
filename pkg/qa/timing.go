package qa

import (
	"math"
	"time"
)

// Span records the start, end, and rounded duration of one phase.
type Span struct {
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
	Duration float64    `json:"duration"`
}

// MarkStart records the beginning of the span.
func (s *Span) MarkStart(t time.Time) {
	utc := t.UTC()
	s.Start = &utc
}

// MarkEnd records the end of the span and computes its duration in
// seconds, rounded to two decimal places.
func (s *Span) MarkEnd(t time.Time) {
	utc := t.UTC()
	s.End = &utc
	if s.Start != nil {
		s.Duration = roundSeconds(utc.Sub(*s.Start))
	}
}

// ExecutionSpan is the execution phase span plus a per-case breakdown
// keyed by test case id.
type ExecutionSpan struct {
	Span
	Tests map[string]*Span `json:"tests"`
}

// PhaseTiming is the per-run timing record. It is owned by the
// orchestrator driving the run and is read-only once the run reaches a
// terminal state.
type PhaseTiming struct {
	Planning  Span          `json:"planning"`
	Execution ExecutionSpan `json:"execution"`
	Total     Span          `json:"total"`
}

// NewPhaseTiming returns a timing record ready for per-case spans.
func NewPhaseTiming() *PhaseTiming {
	return &PhaseTiming{
		Execution: ExecutionSpan{Tests: make(map[string]*Span)},
	}
}

// CaseSpan returns the span for tcID, creating it if needed.
func (t *PhaseTiming) CaseSpan(tcID string) *Span {
	if t.Execution.Tests == nil {
		t.Execution.Tests = make(map[string]*Span)
	}
	s, ok := t.Execution.Tests[tcID]
	if !ok {
		s = &Span{}
		t.Execution.Tests[tcID] = s
	}
	return s
}

// FinishTotal closes the total span. The total duration is the sum of
// the planning and execution durations, matching the summary the report
// exposes.
func (t *PhaseTiming) FinishTotal(now time.Time) {
	t.Total.MarkEnd(now)
	t.Total.Duration = math.Round((t.Planning.Duration+t.Execution.Duration)*100) / 100
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
