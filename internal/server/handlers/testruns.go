package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/scenariolabs/verdict/internal/errors"
	"github.com/scenariolabs/verdict/internal/server/middleware"
	"github.com/scenariolabs/verdict/pkg/eventbus"
	"github.com/scenariolabs/verdict/pkg/orchestrator"
	"github.com/scenariolabs/verdict/pkg/store"
)

// TestRuns serves the /api/test-runs resource.
type TestRuns struct {
	manager *orchestrator.Manager
	store   store.Store
	bus     *eventbus.Bus
	logger  *zap.Logger
}

// NewTestRuns creates the test-run handler set.
func NewTestRuns(manager *orchestrator.Manager, st store.Store, bus *eventbus.Bus, logger *zap.Logger) *TestRuns {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestRuns{manager: manager, store: st, bus: bus, logger: logger}
}

// CreateRequest is the body of POST /api/test-runs.
type CreateRequest struct {
	URL      string `json:"url"`
	Scenario string `json:"scenario"`
}

// Create accepts a new test run and schedules it.
func (h *TestRuns) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, apperrors.CodeBadRequest,
			"invalid JSON body: "+err.Error())
		return
	}

	run, err := h.manager.StartRun(r.Context(), req.URL, req.Scenario)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrTargetNotAllowed):
			h.respondError(w, r, http.StatusForbidden, apperrors.CodeTargetNotAllowed, err.Error())
		case errors.Is(err, orchestrator.ErrManagerClosed):
			h.respondError(w, r, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable, err.Error())
		default:
			var storeErr *store.StoreError
			if errors.As(err, &storeErr) {
				h.logger.Error("Failed to persist test run", zap.Error(err))
				h.respondError(w, r, http.StatusInternalServerError, apperrors.CodeInternalError,
					"failed to create test run")
				return
			}
			h.respondError(w, r, http.StatusBadRequest, apperrors.CodeBadRequest, err.Error())
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, run)
}

// List returns runs newest-first. Supports limit and offset query
// parameters.
func (h *TestRuns) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	runs, err := h.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list test runs", zap.Error(err))
		h.respondError(w, r, http.StatusInternalServerError, apperrors.CodeInternalError,
			"failed to list test runs")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"test_runs": runs})
}

// Get returns one run by id.
func (h *TestRuns) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		h.respondStoreError(w, r, runID, err)
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

// Cases returns the run's test cases in plan order.
func (h *TestRuns) Cases(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		h.respondStoreError(w, r, runID, err)
		return
	}
	cases, err := h.store.ListCases(r.Context(), runID)
	if err != nil {
		h.respondStoreError(w, r, runID, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"test_cases": cases})
}

// Logs returns the run's log lines in append order.
func (h *TestRuns) Logs(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		h.respondStoreError(w, r, runID, err)
		return
	}
	logs, err := h.store.ListLogs(r.Context(), runID)
	if err != nil {
		h.respondStoreError(w, r, runID, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// Report returns the final report. 404 until the run has produced one.
func (h *TestRuns) Report(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	report, err := h.store.GetReport(r.Context(), runID)
	if err != nil {
		h.respondStoreError(w, r, runID, err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// Events streams the run's live events as server-sent events. The
// stream opens with a status snapshot so late subscribers know where
// the run stands, then relays bus events until the client disconnects.
func (h *TestRuns) Events(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		h.respondStoreError(w, r, runID, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, r, http.StatusInternalServerError, apperrors.CodeInternalError,
			"streaming not supported")
		return
	}

	// A slow client loses history instead of stalling the run.
	sink := eventbus.NewBufferedSink(64)
	h.bus.Subscribe(runID, sink)
	defer func() {
		h.bus.Unsubscribe(runID, sink)
		sink.Close()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSE(w, eventbus.Event{
		Type: eventbus.TypeStatusUpdate,
		Data: map[string]any{"status": string(run.Status), "message": "connected"},
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sink.Events():
			if !ok {
				return
			}
			writeSSE(w, e)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e eventbus.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n\n"))
}

func (h *TestRuns) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *TestRuns) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	apperrors.Respond(w, status, code, message, middleware.GetRequestID(r.Context()), nil)
}

func (h *TestRuns) respondStoreError(w http.ResponseWriter, r *http.Request, runID string, err error) {
	if store.IsNotFound(err) {
		h.respondError(w, r, http.StatusNotFound, apperrors.CodeNotFound,
			"test run "+runID+" not found")
		return
	}
	h.logger.Error("Store error", zap.String("run_id", runID), zap.Error(err))
	h.respondError(w, r, http.StatusInternalServerError, apperrors.CodeInternalError,
		"storage failure")
}

func queryInt(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
