package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/scenariolabs/verdict/pkg/eventbus"
	"github.com/scenariolabs/verdict/pkg/orchestrator"
	"github.com/scenariolabs/verdict/pkg/qa"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one test run from a job manifest",
	Long: `Execute a single test run synchronously and print the final report.

The job manifest is a YAML file naming the target and scenario:

  url: https://shop.example.com
  scenario: "checkout with an empty cart"
  report: checkout-report.json   # optional, defaults to stdout only

Example:
  verdict run --job checkout.yaml
  verdict run --job checkout.yaml --quiet`,
	RunE: runJob,
}

var (
	runJobPath string
	runQuiet   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runJobPath, "job", "j", "", "Path to job manifest (required)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress run log lines")

	_ = runCmd.MarkFlagRequired("job")
}

// jobManifest is the YAML shape of a one-shot run job.
type jobManifest struct {
	URL      string `yaml:"url"`
	Scenario string `yaml:"scenario"`
	Report   string `yaml:"report"`
}

func loadJobManifest(path string) (*jobManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job manifest: %w", err)
	}
	var job jobManifest
	if err := yaml.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("parse job manifest %s: %w", path, err)
	}
	if strings.TrimSpace(job.URL) == "" {
		return nil, fmt.Errorf("job manifest %s: url is required", path)
	}
	if strings.TrimSpace(job.Scenario) == "" {
		return nil, fmt.Errorf("job manifest %s: scenario is required", path)
	}
	return &job, nil
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, err := loadJobManifest(runJobPath)
	if err != nil {
		return err
	}

	deps, err := buildDeps(ctx, appConfig, appLogger)
	if err != nil {
		return err
	}
	defer deps.close()

	if !deps.scope.Allows(job.URL) {
		return fmt.Errorf("%w: %s", orchestrator.ErrTargetNotAllowed, job.URL)
	}

	now := time.Now().UTC()
	run := &qa.TestRun{
		RunID:     orchestrator.NewRunID(),
		Target:    job.URL,
		Scenario:  job.Scenario,
		Status:    qa.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := deps.store.CreateRun(ctx, run); err != nil {
		return err
	}

	if !runQuiet {
		deps.bus.Subscribe(run.RunID, stderrSink{})
	}

	appLogger.Info("Starting test run",
		zap.String("run_id", run.RunID),
		zap.String("target", job.URL))

	o := orchestrator.New(run, orchestrator.Deps{
		Store:        deps.store,
		Agent:        deps.agent,
		Bus:          deps.bus,
		Logger:       appLogger,
		Archiver:     deps.archiver,
		AgentTimeout: appConfig.Agent.Timeout,
	})
	if execErr := o.Execute(ctx); execErr != nil {
		return fmt.Errorf("test run %s failed: %w", run.RunID, execErr)
	}

	report, err := deps.store.GetReport(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("load report for %s: %w", run.RunID, err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if job.Report != "" {
		if err := os.WriteFile(job.Report, append(out, '\n'), 0o644); err != nil {
			return fmt.Errorf("write report file: %w", err)
		}
		appLogger.Info("Report written", zap.String("path", job.Report))
	}
	return nil
}

// stderrSink mirrors run log events to stderr for interactive use.
type stderrSink struct{}

func (stderrSink) Send(e eventbus.Event) error {
	if e.Type != eventbus.TypeLog {
		return nil
	}
	if msg, ok := e.Data["message"].(string); ok {
		fmt.Fprintln(os.Stderr, msg)
	}
	return nil
}
