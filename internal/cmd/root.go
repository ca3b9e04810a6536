// Package cmd implements the verdict command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scenariolabs/verdict/internal/config"
	"github.com/scenariolabs/verdict/internal/observability"
)

var (
	cfgPath string

	appConfig *config.Config
	appLogger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Agent-driven web QA test-run orchestration",
	Long: `verdict plans and executes automated QA test runs against web
applications. An upstream browsing agent explores the target, produces a
structured test plan, executes each case, and verdict turns the raw
answers into persisted runs, live progress events, and a final report.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		logger, err := observability.NewLogger(observability.Config{
			Level:   cfg.Logging.Level,
			Profile: cfg.Logging.Profile,
		})
		if err != nil {
			return err
		}
		appConfig = cfg
		appLogger = logger
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLogger != nil {
			_ = appLogger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Path to YAML config file (defaults plus VERDICT_* env when omitted)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
