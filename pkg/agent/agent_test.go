package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenariolabs/verdict/pkg/qa"
)

func TestPlanningTask(t *testing.T) {
	task := PlanningTask("https://shop.example.com", "checkout flow")

	assert.Contains(t, task, "Website: https://shop.example.com")
	assert.Contains(t, task, "Scenario: checkout flow")
	assert.Contains(t, task, `"test_cases"`)
	assert.Contains(t, task, "ONLY the JSON test plan")
}

func TestExecutionTask(t *testing.T) {
	tc := qa.TestCase{
		ID:             "TC002",
		Description:    "empty cart checkout",
		Steps:          []string{"Open the cart", "Click checkout"},
		ExpectedResult: "Checkout button stays disabled",
	}

	task := ExecutionTask("https://shop.example.com", tc)

	assert.Contains(t, task, "Test Case ID: TC002")
	assert.Contains(t, task, "- Open the cart\n- Click checkout")
	assert.Contains(t, task, "Expected Result: Checkout button stays disabled")
	assert.Contains(t, task, `"actual_result"`)
}

func TestHTTPRunner_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req taskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Task, "do the thing")
		assert.Equal(t, "browser-large", req.Model)

		_ = json.NewEncoder(w).Encode(taskResponse{Output: `{"status":"PASS"}`})
	}))
	defer srv.Close()

	runner, err := NewHTTPRunner(HTTPConfig{Endpoint: srv.URL, Model: "browser-large"})
	require.NoError(t, err)

	out, err := runner.Run(context.Background(), "please do the thing")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"PASS"}`, out)
}

func TestHTTPRunner_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	runner, err := NewHTTPRunner(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), "task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPRunner_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	runner, err := NewHTTPRunner(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.Run(ctx, "task")
	require.Error(t, err)
}

func TestNewHTTPRunner_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPRunner(HTTPConfig{})
	require.Error(t, err)
}

func TestInvocationError(t *testing.T) {
	inner := assert.AnError
	err := &InvocationError{Phase: "planning", Err: inner}

	assert.Contains(t, err.Error(), "planning")
	assert.ErrorIs(t, err, inner)
}
