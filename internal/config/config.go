// Package config loads the verdict service configuration from
// defaults, an optional YAML file, and VERDICT_* environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Store        StoreConfig        `mapstructure:"store"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Scope        ScopeConfig        `mapstructure:"scope"`
	Artifact     ArtifactConfig     `mapstructure:"artifact"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logger settings. Profile is STRUCTURED (JSON) or
// CONSOLE.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// StoreConfig holds run store settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// AgentConfig holds upstream agent settings.
type AgentConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// OrchestratorConfig tunes run concurrency and agent pacing.
type OrchestratorConfig struct {
	MaxConcurrentRuns      int     `mapstructure:"max_concurrent_runs"`
	AgentRequestsPerSecond float64 `mapstructure:"agent_requests_per_second"`
}

// ScopeConfig holds the target URL allowlist.
type ScopeConfig struct {
	Allow []string `mapstructure:"allow"`
	Deny  []string `mapstructure:"deny"`
}

// ArtifactConfig selects the report archive backend: "none", "dir", or
// "s3".
type ArtifactConfig struct {
	Backend string     `mapstructure:"backend"`
	Dir     string     `mapstructure:"dir"`
	S3      S3Artifact `mapstructure:"s3"`
}

// S3Artifact holds S3 archive settings.
type S3Artifact struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// Load reads configuration. path may name a YAML config file; empty
// loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("store.path", "verdict.db")

	v.SetDefault("agent.endpoint", "")
	v.SetDefault("agent.model", "gpt-4o")
	v.SetDefault("agent.timeout", 10*time.Minute)

	v.SetDefault("orchestrator.max_concurrent_runs", 4)
	v.SetDefault("orchestrator.agent_requests_per_second", 1.0)

	v.SetDefault("artifact.backend", "none")

	v.SetEnvPrefix("VERDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Orchestrator.MaxConcurrentRuns < 0 {
		return errors.New("orchestrator max_concurrent_runs must not be negative")
	}
	if c.Orchestrator.AgentRequestsPerSecond < 0 {
		return errors.New("orchestrator agent_requests_per_second must not be negative")
	}
	switch c.Artifact.Backend {
	case "", "none", "dir", "s3":
	default:
		return fmt.Errorf("unknown artifact backend %q", c.Artifact.Backend)
	}
	if c.Artifact.Backend == "dir" && c.Artifact.Dir == "" {
		return errors.New("artifact.dir is required for the dir backend")
	}
	if c.Artifact.Backend == "s3" && c.Artifact.S3.Bucket == "" {
		return errors.New("artifact.s3.bucket is required for the s3 backend")
	}
	return nil
}
