// Package handlers implements the HTTP endpoints of the verdict API
// server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/scenariolabs/verdict/internal/errors"
	"github.com/scenariolabs/verdict/internal/server/middleware"
)

// Checker probes one dependency for the health endpoint.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// HealthResponse is the body of a healthy /health response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

const checkTimeout = 5 * time.Second

// HealthManager aggregates dependency checks into liveness, readiness,
// and full health endpoints.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHealthManager creates a manager reporting the given version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker adds a named dependency check.
func (m *HealthManager) RegisterChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

// HealthHandler runs every registered check. Healthy and degraded give
// 200; any unhealthy check gives 503 with per-check detail.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		details := map[string]any{"checks": checks}
		apperrors.Respond(w, http.StatusServiceUnavailable,
			apperrors.CodeServiceUnavailable, "one or more health checks failed",
			middleware.GetRequestID(r.Context()), details)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:  status,
		Version: m.version,
		Checks:  checks,
	})
}

// LivenessHandler reports process liveness without touching
// dependencies.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler reports whether dependencies are reachable.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	if m.determineOverallStatus(checks) == "unhealthy" {
		apperrors.Respond(w, http.StatusServiceUnavailable,
			apperrors.CodeServiceUnavailable, "not ready",
			middleware.GetRequestID(r.Context()), map[string]any{"checks": checks})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// StartupHandler reports startup completion, for kubelet startup
// probes. Registration of the manager implies startup is done.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	for name, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.CheckHealth(cctx)
		cancel()
		switch {
		case err == nil:
			results[name] = "healthy"
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus folds per-check results: any unhealthy check
// makes the whole service unhealthy, timeouts only degrade it.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}
