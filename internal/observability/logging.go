// Package observability builds the service loggers.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects log verbosity and output shape.
type Config struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string

	// Profile is STRUCTURED for JSON output or CONSOLE for
	// human-readable output.
	Profile string
}

// NewLogger builds the process logger.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch cfg.Profile {
	case "", "STRUCTURED":
		zc = zap.NewProductionConfig()
	case "CONSOLE":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown logging profile %q", cfg.Profile)
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
