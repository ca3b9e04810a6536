// Package server assembles the verdict HTTP API: test-run CRUD, live
// event streaming, and operational endpoints.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/scenariolabs/verdict/internal/errors"
	"github.com/scenariolabs/verdict/internal/server/handlers"
	"github.com/scenariolabs/verdict/internal/server/middleware"
	"github.com/scenariolabs/verdict/pkg/eventbus"
	"github.com/scenariolabs/verdict/pkg/orchestrator"
	"github.com/scenariolabs/verdict/pkg/store"
)

// Config holds the HTTP listener settings.
type Config struct {
	Host        string
	Port        int
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// Deps are the collaborators the API serves.
type Deps struct {
	Manager *orchestrator.Manager
	Store   store.Store
	Bus     *eventbus.Bus
	Logger  *zap.Logger
	Health  *handlers.HealthManager
}

// Server is the verdict API server.
type Server struct {
	cfg    Config
	logger *zap.Logger
	router chi.Router
	http   *http.Server
}

// New builds the server and its route table.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{cfg: cfg, logger: logger}
	s.router = s.buildRouter(deps)

	// WriteTimeout stays zero: it would sever long-lived event streams.
	s.http = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:     s.router,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.cfg.Port
}

// Start listens and serves until the listener is closed by Shutdown.
func (s *Server) Start() error {
	s.logger.Info("API server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) buildRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.Respond(w, http.StatusNotFound, apperrors.CodeNotFound,
			"resource not found", middleware.GetRequestID(req.Context()), nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.Respond(w, http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed,
			"method not allowed", middleware.GetRequestID(req.Context()), nil)
	})

	health := deps.Health
	if health == nil {
		health = handlers.NewHealthManager("dev")
	}
	r.Get("/health", health.HealthHandler)
	r.Get("/health/live", health.LivenessHandler)
	r.Get("/health/ready", health.ReadinessHandler)
	r.Get("/health/startup", health.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	runs := handlers.NewTestRuns(deps.Manager, deps.Store, deps.Bus, s.logger)
	r.Route("/api/test-runs", func(r chi.Router) {
		r.Post("/", runs.Create)
		r.Get("/", runs.List)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", runs.Get)
			r.Get("/cases", runs.Cases)
			r.Get("/logs", runs.Logs)
			r.Get("/report", runs.Report)
			r.Get("/events", runs.Events)
		})
	})

	return r
}
