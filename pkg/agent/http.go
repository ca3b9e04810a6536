package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPConfig configures the HTTP bridge to an agent service.
type HTTPConfig struct {
	// Endpoint is the URL of the agent service's task endpoint
	// (required).
	Endpoint string

	// Model optionally names the model the service should drive.
	Model string

	// Timeout bounds one invocation end to end. On expiry the engine
	// treats the invocation like any other agent error. Zero disables
	// the client-side bound (the caller's ctx still applies).
	Timeout time.Duration

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// HTTPRunner invokes an agent service over HTTP.
//
// The service contract is one POST per task:
//
//	-> {"task": "...", "model": "..."}
//	<- 200 {"output": "raw final answer text"}
//
// Any non-200 response or transport failure is an invocation error.
type HTTPRunner struct {
	endpoint string
	model    string
	client   *http.Client
}

var _ Runner = (*HTTPRunner)(nil)

// NewHTTPRunner creates an HTTP-backed runner.
func NewHTTPRunner(cfg HTTPConfig) (*HTTPRunner, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("agent endpoint is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPRunner{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		client:   client,
	}, nil
}

type taskRequest struct {
	Task  string `json:"task"`
	Model string `json:"model,omitempty"`
}

type taskResponse struct {
	Output string `json:"output"`
}

// Run submits the task and returns the agent's final answer text.
func (r *HTTPRunner) Run(ctx context.Context, task string) (string, error) {
	body, err := json.Marshal(taskRequest{Task: task, Model: r.model})
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call agent service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read agent response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent service returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed taskResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse agent response: %w", err)
	}
	return parsed.Output, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
