// Package agent defines the upstream automation agent consumed by the
// orchestration engine.
//
// The agent is an opaque collaborator: it takes a natural-language task
// description, performs the actual browsing/reasoning work elsewhere,
// and returns its final answer as raw text. The engine treats one
// invocation as an atomic unit of work and never inspects the agent's
// internal steps.
package agent

import (
	"context"
	"fmt"
)

// Runner executes one agent task and returns the agent's final answer.
//
// The returned text is ideally a single JSON value but is not
// guaranteed to be; callers must run it through the extraction cascade.
// Implementations must honor ctx cancellation.
type Runner interface {
	Run(ctx context.Context, task string) (string, error)
}

// InvocationError wraps a failed agent invocation.
type InvocationError struct {
	// Phase is the task kind that failed ("planning" or "execution").
	Phase string

	// Err is the underlying error.
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent %s invocation: %v", e.Phase, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
