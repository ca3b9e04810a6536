package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scenariolabs/verdict/pkg/agent"
	"github.com/scenariolabs/verdict/pkg/artifact"
	"github.com/scenariolabs/verdict/pkg/eventbus"
	"github.com/scenariolabs/verdict/pkg/qa"
	"github.com/scenariolabs/verdict/pkg/scope"
	"github.com/scenariolabs/verdict/pkg/store"
)

// ErrTargetNotAllowed indicates the requested target URL falls outside
// the configured scope.
var ErrTargetNotAllowed = errors.New("target is not allowed by scope configuration")

// ErrManagerClosed indicates the manager is shutting down and no longer
// accepts runs.
var ErrManagerClosed = errors.New("run manager is shut down")

// ManagerConfig tunes run admission and agent pacing.
type ManagerConfig struct {
	// MaxConcurrentRuns bounds how many runs execute at once. Runs
	// admitted beyond the bound stay PENDING until a slot frees up.
	// Zero or negative means 4.
	MaxConcurrentRuns int

	// AgentTimeout bounds each agent invocation. Zero disables it.
	AgentTimeout time.Duration

	// AgentRequestsPerSecond paces agent invocations across all runs.
	// Zero disables pacing.
	AgentRequestsPerSecond float64
}

// Manager admits test runs and executes each on its own goroutine,
// sharing the store, agent, event bus, and rate limit between them.
type Manager struct {
	cfg      ManagerConfig
	store    store.Store
	agent    agent.Runner
	bus      *eventbus.Bus
	logger   *zap.Logger
	archiver artifact.Archiver
	scope    *scope.Scope
	limiter  *rate.Limiter

	baseCtx context.Context
	cancel  context.CancelFunc

	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool

	now func() time.Time
}

// ManagerDeps are the collaborators shared by every run. Store, Agent,
// and Bus are required; Scope and Archiver are optional.
type ManagerDeps struct {
	Store    store.Store
	Agent    agent.Runner
	Bus      *eventbus.Bus
	Logger   *zap.Logger
	Scope    *scope.Scope
	Archiver artifact.Archiver
	Now      func() time.Time
}

// NewManager creates a run manager. Call Shutdown to stop it.
func NewManager(cfg ManagerConfig, deps ManagerDeps) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("manager requires a store")
	}
	if deps.Agent == nil {
		return nil, errors.New("manager requires an agent runner")
	}
	if deps.Bus == nil {
		return nil, errors.New("manager requires an event bus")
	}

	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 4
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	var limiter *rate.Limiter
	if cfg.AgentRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AgentRequestsPerSecond), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		store:    deps.Store,
		agent:    deps.Agent,
		bus:      deps.Bus,
		logger:   logger,
		archiver: deps.Archiver,
		scope:    deps.Scope,
		limiter:  limiter,
		baseCtx:  ctx,
		cancel:   cancel,
		slots:    make(chan struct{}, cfg.MaxConcurrentRuns),
		now:      now,
	}, nil
}

// StartRun validates the target, persists a PENDING run, and schedules
// its execution. It returns as soon as the run is durable; execution
// proceeds in the background, decoupled from the caller's context.
func (m *Manager) StartRun(ctx context.Context, target, scenario string) (*qa.TestRun, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target url is required")
	}
	if scenario = strings.TrimSpace(scenario); scenario == "" {
		return nil, errors.New("scenario is required")
	}
	if m.scope != nil && !m.scope.Allows(target) {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotAllowed, target)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	created := m.now().UTC()
	run := &qa.TestRun{
		RunID:     NewRunID(),
		Target:    target,
		Scenario:  scenario,
		Status:    qa.RunStatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := m.store.CreateRun(ctx, run); err != nil {
		m.wg.Done()
		return nil, err
	}
	m.logger.Info("Test run accepted",
		zap.String("run_id", run.RunID),
		zap.String("target", target))

	go m.execute(run)
	return run, nil
}

func (m *Manager) execute(run *qa.TestRun) {
	defer m.wg.Done()

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-m.baseCtx.Done():
		return
	}

	o := New(run, Deps{
		Store:        m.store,
		Agent:        m.agent,
		Bus:          m.bus,
		Logger:       m.logger,
		Archiver:     m.archiver,
		AgentTimeout: m.cfg.AgentTimeout,
		Limiter:      m.limiter,
		Now:          m.now,
	})
	if err := o.Execute(m.baseCtx); err != nil {
		m.logger.Warn("Test run finished with failure",
			zap.String("run_id", run.RunID),
			zap.Error(err))
		return
	}
	m.logger.Info("Test run finished",
		zap.String("run_id", run.RunID),
		zap.String("status", string(run.Status)))
}

// Shutdown stops admitting runs and waits for in-flight runs to finish.
// If ctx expires first, remaining runs are cancelled (they record
// FAILED through the orchestrator's catch-all path) and ctx's error is
// returned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}

// NewRunID returns a fresh externally addressable run id of the form
// run-<8 hex chars>.
func NewRunID() string {
	return "run-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
