package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/scenariolabs/verdict/internal/errors"
	"github.com/scenariolabs/verdict/pkg/eventbus"
	"github.com/scenariolabs/verdict/pkg/orchestrator"
	"github.com/scenariolabs/verdict/pkg/qa"
	"github.com/scenariolabs/verdict/pkg/store"
	"github.com/scenariolabs/verdict/pkg/store/sqlite"
)

// stubAgent completes every run with a one-case plan that passes.
type stubAgent struct{}

func (stubAgent) Run(ctx context.Context, task string) (string, error) {
	if strings.Contains(task, "Test Case ID:") {
		return `{"actual_result": "ok", "status": "PASS", "notes": ""}`, nil
	}
	return `{"test_cases": [{"id": "TC001", "description": "d", "steps": ["s"], "expected_result": "ok"}]}`, nil
}

type fixture struct {
	store   store.Store
	bus     *eventbus.Bus
	manager *orchestrator.Manager
	runs    *TestRuns
	router  chi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.Open(context.Background(), sqlite.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New()
	m, err := orchestrator.NewManager(orchestrator.ManagerConfig{MaxConcurrentRuns: 2},
		orchestrator.ManagerDeps{Store: st, Agent: stubAgent{}, Bus: bus})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	runs := NewTestRuns(m, st, bus, nil)
	r := chi.NewRouter()
	r.Post("/api/test-runs", runs.Create)
	r.Get("/api/test-runs", runs.List)
	r.Get("/api/test-runs/{runID}", runs.Get)
	r.Get("/api/test-runs/{runID}/cases", runs.Cases)
	r.Get("/api/test-runs/{runID}/logs", runs.Logs)
	r.Get("/api/test-runs/{runID}/report", runs.Report)
	r.Get("/api/test-runs/{runID}/events", runs.Events)

	return &fixture{store: st, bus: bus, manager: m, runs: runs, router: r}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createRun(t *testing.T) qa.TestRun {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/test-runs",
		`{"url": "https://app.example.com", "scenario": "login flow"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var run qa.TestRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	return run
}

func (f *fixture) waitTerminal(t *testing.T, runID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		run, err := f.store.GetRun(context.Background(), runID)
		return err == nil && run.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCreate_ReturnsPendingRun(t *testing.T) {
	f := newFixture(t)

	run := f.createRun(t)
	assert.Regexp(t, `^run-[0-9a-f]{8}$`, run.RunID)
	assert.Equal(t, qa.RunStatusPending, run.Status)
	assert.Equal(t, "https://app.example.com", run.Target)

	f.waitTerminal(t, run.RunID)
}

func TestCreate_RejectsBadBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/test-runs", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.CodeBadRequest, resp.Error.Code)
}

func TestCreate_RejectsMissingFields(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/test-runs", `{"url": "", "scenario": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/test-runs/run-ffffffff", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.CodeNotFound, resp.Error.Code)
}

func TestRunResources_AfterCompletion(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	f.waitTerminal(t, run.RunID)

	rec := f.do(t, http.MethodGet, "/api/test-runs/"+run.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got qa.TestRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, qa.RunStatusCompleted, got.Status)

	rec = f.do(t, http.MethodGet, "/api/test-runs/"+run.RunID+"/cases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cases struct {
		TestCases []qa.TestCase `json:"test_cases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cases))
	require.Len(t, cases.TestCases, 1)
	assert.Equal(t, qa.CaseStatusPass, cases.TestCases[0].Status)

	rec = f.do(t, http.MethodGet, "/api/test-runs/"+run.RunID+"/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var logs struct {
		Logs []qa.LogEntry `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	assert.NotEmpty(t, logs.Logs)

	rec = f.do(t, http.MethodGet, "/api/test-runs/"+run.RunID+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report qa.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "100.00%", report.Summary.PassRate)
}

func TestReport_NotFoundBeforeCompletion(t *testing.T) {
	f := newFixture(t)

	now := time.Now().UTC()
	run := &qa.TestRun{
		RunID: "run-11112222", Target: "https://x.example.com", Scenario: "s",
		Status: qa.RunStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateRun(context.Background(), run))

	rec := f.do(t, http.MethodGet, "/api/test-runs/run-11112222/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList_ReturnsRuns(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	f.waitTerminal(t, run.RunID)

	rec := f.do(t, http.MethodGet, "/api/test-runs?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TestRuns []qa.TestRun `json:"test_runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.TestRuns, 1)
	assert.Equal(t, run.RunID, resp.TestRuns[0].RunID)
}

func TestEvents_SendsSnapshotAndStream(t *testing.T) {
	f := newFixture(t)

	now := time.Now().UTC()
	run := &qa.TestRun{
		RunID: "run-aaaa1111", Target: "https://x.example.com", Scenario: "s",
		Status: qa.RunStatusExecutingTests, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateRun(context.Background(), run))

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/test-runs/run-aaaa1111/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)

	// First frame is the status snapshot.
	var snapshot string
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			snapshot = line
			break
		}
	}
	require.True(t, strings.HasPrefix(snapshot, "data: "))
	assert.Contains(t, snapshot, `"status_update"`)
	assert.Contains(t, snapshot, `"EXECUTING_TESTS"`)

	// The subscriber is registered, so published events flow through.
	require.Eventually(t, func() bool {
		return f.bus.SubscriberCount("run-aaaa1111") == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.bus.Publish("run-aaaa1111", eventbus.Event{
		Type: eventbus.TypeLog,
		Data: map[string]any{"message": "hello"},
	})

	var frame string
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			frame = line
			break
		}
	}
	assert.Contains(t, frame, `"log"`)
	assert.Contains(t, frame, "hello")

	cancel()
	require.Eventually(t, func() bool {
		return f.bus.SubscriberCount("run-aaaa1111") == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEvents_UnknownRun(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/test-runs/run-ffffffff/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
