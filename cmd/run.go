package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yqhp/knime-bridge/internal/config"
	"yqhp/knime-bridge/pkg/logger"
	"yqhp/knime-bridge/pkg/table"
	"yqhp/knime-bridge/pkg/workflow"
)

var runFlags struct {
	workflowRef  string
	inputs       []string
	outputDir    string
	executable   string
	serverURL    string
	user         string
	password     string
	timeout      time.Duration
	pollInterval time.Duration
	reset        bool
	remote       bool
	liveOutput   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a workflow with the given input tables",
	Example: `  knime-bridge run --workflow ./my-workflow --input table.json
  knime-bridge run --workflow /Users/alice/flow --server https://knime.example.org \
      --user alice --password secret --input a.json --input b.json`,
	RunE: runWorkflow,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.workflowRef, "workflow", "w", "", "workflow bundle path or server workflow path")
	f.StringArrayVarP(&runFlags.inputs, "input", "i", nil, "wire-format input table file (repeatable, in slot order)")
	f.StringVarP(&runFlags.outputDir, "output-dir", "o", "", "directory for output tables (default: stdout)")
	f.StringVar(&runFlags.executable, "executable", "", "engine executable (default: $KNIME_EXEC)")
	f.StringVar(&runFlags.serverURL, "server", "", "server URL root (default: $KNIME_SERVER_URLROOT)")
	f.StringVar(&runFlags.user, "user", "", "server user (default: $KNIME_SERVER_USER)")
	f.StringVar(&runFlags.password, "password", "", "server password (default: $KNIME_SERVER_PASS)")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "execution timeout (default 60s)")
	f.DurationVar(&runFlags.pollInterval, "poll-interval", 0, "remote status polling interval")
	f.BoolVar(&runFlags.reset, "reset", false, "reset the workflow on the server before executing")
	f.BoolVar(&runFlags.remote, "remote", false, "force the remote transport")
	f.BoolVar(&runFlags.liveOutput, "live-output", false, "stream the local engine's output")
	_ = runCmd.MarkFlagRequired("workflow")

	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if !debug && !quiet {
		logger.SetLevelFromString(cfg.Logging.Level)
	}

	opts := []workflow.Option{workflow.WithConfig(cfg)}
	if runFlags.executable != "" {
		opts = append(opts, workflow.WithExecutable(runFlags.executable))
	}
	if runFlags.serverURL != "" {
		opts = append(opts, workflow.WithServer(runFlags.serverURL, runFlags.user, runFlags.password))
	}
	if runFlags.timeout > 0 {
		opts = append(opts, workflow.WithTimeout(runFlags.timeout))
	}
	if runFlags.pollInterval > 0 {
		opts = append(opts, workflow.WithPollInterval(runFlags.pollInterval))
	}
	if runFlags.reset {
		opts = append(opts, workflow.WithReset())
	}
	if runFlags.remote {
		opts = append(opts, workflow.WithRemote())
	}
	if runFlags.liveOutput {
		opts = append(opts, workflow.WithLiveOutput())
	}

	h, err := workflow.New(runFlags.workflowRef, opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	for i, path := range runFlags.inputs {
		buf, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading input table %s: %w", path, err)
		}
		dt, err := table.UnmarshalWire(buf)
		if err != nil {
			return fmt.Errorf("input table %s: %w", path, err)
		}
		if err := h.SetInput(i, dt); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("executing workflow %s", h.Ref())
	if err := h.Execute(ctx); err != nil {
		return err
	}

	result, err := h.Result()
	if err != nil {
		return err
	}
	logger.Info("execution finished in %v with %d output table(s)", result.Duration, len(result.Outputs))

	for i := range result.Outputs {
		dt, err := h.RawOutput(i)
		if err != nil {
			return err
		}
		buf, err := table.MarshalWire(dt)
		if err != nil {
			return err
		}
		if runFlags.outputDir == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(buf))
			continue
		}
		path := filepath.Join(runFlags.outputDir, fmt.Sprintf("output_%d.json", i))
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			return fmt.Errorf("writing output table %s: %w", path, err)
		}
		logger.Info("wrote %s", path)
	}
	return nil
}
