package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scenariolabs/verdict/internal/server"
	"github.com/scenariolabs/verdict/internal/server/handlers"
	"github.com/scenariolabs/verdict/internal/version"
	"github.com/scenariolabs/verdict/pkg/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verdict API server",
	Long: `Run the verdict API server.

The server accepts test runs over HTTP, executes them against the
configured agent service, and streams progress to subscribers.

Example:
  verdict serve
  verdict serve --config verdict.yaml
  VERDICT_SERVER_PORT=9000 verdict serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, appConfig, appLogger)
	if err != nil {
		appLogger.Error("Failed to build runtime", zap.Error(err))
		return err
	}
	defer deps.close()

	manager, err := orchestrator.NewManager(orchestrator.ManagerConfig{
		MaxConcurrentRuns:      appConfig.Orchestrator.MaxConcurrentRuns,
		AgentTimeout:           appConfig.Agent.Timeout,
		AgentRequestsPerSecond: appConfig.Orchestrator.AgentRequestsPerSecond,
	}, orchestrator.ManagerDeps{
		Store:    deps.store,
		Agent:    deps.agent,
		Bus:      deps.bus,
		Logger:   appLogger,
		Scope:    deps.scope,
		Archiver: deps.archiver,
	})
	if err != nil {
		return err
	}

	health := handlers.NewHealthManager(version.Version)
	health.RegisterChecker("store", handlers.CheckerFunc(deps.store.Ping))

	srv := server.New(server.Config{
		Host:        appConfig.Server.Host,
		Port:        appConfig.Server.Port,
		ReadTimeout: appConfig.Server.ReadTimeout,
		IdleTimeout: appConfig.Server.IdleTimeout,
	}, server.Deps{
		Manager: manager,
		Store:   deps.store,
		Bus:     deps.bus,
		Logger:  appLogger,
		Health:  health,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down",
		zap.Duration("timeout", appConfig.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Run manager shutdown incomplete", zap.Error(err))
	}
	return nil
}
