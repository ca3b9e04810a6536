package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scenariolabs/verdict/internal/config"
	"github.com/scenariolabs/verdict/pkg/agent"
	"github.com/scenariolabs/verdict/pkg/artifact"
	"github.com/scenariolabs/verdict/pkg/eventbus"
	"github.com/scenariolabs/verdict/pkg/scope"
	"github.com/scenariolabs/verdict/pkg/store/sqlite"
)

// runtimeDeps bundles the collaborators both the server and the
// one-shot runner need.
type runtimeDeps struct {
	store    *sqlite.Store
	agent    agent.Runner
	bus      *eventbus.Bus
	scope    *scope.Scope
	archiver artifact.Archiver
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runtimeDeps, error) {
	if cfg.Agent.Endpoint == "" {
		return nil, errors.New("agent.endpoint is required (set VERDICT_AGENT_ENDPOINT or the config file)")
	}

	st, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	sc, err := scope.New(scope.Config{Allow: cfg.Scope.Allow, Deny: cfg.Scope.Deny})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("compile scope: %w", err)
	}

	var archiver artifact.Archiver
	switch cfg.Artifact.Backend {
	case "", "none":
	case "dir":
		archiver, err = artifact.NewDirArchiver(cfg.Artifact.Dir)
	case "s3":
		archiver, err = artifact.NewS3Archiver(ctx, artifact.S3Config{
			Bucket:          cfg.Artifact.S3.Bucket,
			Prefix:          cfg.Artifact.S3.Prefix,
			Region:          cfg.Artifact.S3.Region,
			Endpoint:        cfg.Artifact.S3.Endpoint,
			Profile:         cfg.Artifact.S3.Profile,
			AccessKeyID:     cfg.Artifact.S3.AccessKeyID,
			SecretAccessKey: cfg.Artifact.S3.SecretAccessKey,
			ForcePathStyle:  cfg.Artifact.S3.ForcePathStyle,
		})
	}
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("configure report archive: %w", err)
	}

	runner, err := agent.NewHTTPRunner(agent.HTTPConfig{
		Endpoint: cfg.Agent.Endpoint,
		Model:    cfg.Agent.Model,
		Timeout:  cfg.Agent.Timeout,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("configure agent: %w", err)
	}

	logger.Info("Runtime configured",
		zap.String("store", cfg.Store.Path),
		zap.String("agent_endpoint", cfg.Agent.Endpoint),
		zap.String("artifact_backend", cfg.Artifact.Backend))

	return &runtimeDeps{
		store:    st,
		agent:    runner,
		bus:      eventbus.New(),
		scope:    sc,
		archiver: archiver,
	}, nil
}

func (d *runtimeDeps) close() {
	_ = d.store.Close()
}
