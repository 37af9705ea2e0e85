package cli

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/animus-coder/contractfix/internal/agent"
	"github.com/animus-coder/contractfix/internal/artifacts"
	"github.com/animus-coder/contractfix/internal/collect"
	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/llm/configbuilder"
	"github.com/animus-coder/contractfix/internal/logging"
	"github.com/animus-coder/contractfix/internal/observability"
	"github.com/animus-coder/contractfix/internal/tools"
)

// NewRunCmd runs the contract tests once and asks the model for fixes.
func NewRunCmd(opts *Options) *cobra.Command {
	var proposePatches bool
	var fast bool
	var requireDiffs bool
	var stream bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run contract tests, analyse failures and optionally propose patches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]interface{}{}
			if cmd.Flags().Changed("fast") {
				overrides["agent.fast"] = fast
			}
			if cmd.Flags().Changed("require-diffs") {
				overrides["agent.require_diffs"] = requireDiffs
			}
			if cmd.Flags().Changed("stream") {
				overrides["agent.stream"] = stream
			}
			cfg, err := loadConfig(opts, overrides)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Agent.Verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			runner, err := buildRunner(cmd, cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, runErr := runner.RunOnce(ctx, proposePatches)
			if runErr != nil && !errors.Is(runErr, agent.ErrNoDiffs) {
				return runErr
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&proposePatches, "propose-patches", false, "Ask for unified diffs and write them to the patches directory")
	cmd.Flags().BoolVar(&fast, "fast", false, "Trim prompts to the fast-mode limits")
	cmd.Flags().BoolVar(&requireDiffs, "require-diffs", false, "Fail when no unified diff is produced after the retry")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream completions without raising the log level")
	return cmd
}

func buildRunner(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*agent.Runner, error) {
	reg, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	metrics := observability.NewMetrics()
	errOut := cmd.ErrOrStderr()

	orch, err := agent.NewOrchestrator(reg, cfg,
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
		agent.WithProgress(errOut),
	)
	if err != nil {
		return nil, err
	}

	fsys, err := tools.NewFilesystem(cfg.Project.RepoRoot, false)
	if err != nil {
		return nil, err
	}
	fsys.SkipDirs(cfg.Artifacts.OutputDir, cfg.Apply.LedgerDir)
	col, err := collect.New(fsys, cfg.Limits.CacheEntries, logger)
	if err != nil {
		return nil, err
	}

	runID := agent.NewRunID()
	wopts := []artifacts.Option{artifacts.WithLogger(logger)}
	if cfg.Artifacts.S3.Enabled {
		mirror, err := artifacts.NewS3Mirror(cfg.Artifacts.S3)
		if err != nil {
			return nil, err
		}
		wopts = append(wopts, artifacts.WithMirror(mirror))
	}
	writer, err := artifacts.NewWriter(cfg.OutputPath(), runID, wopts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("run prepared",
		zap.String("run_id", runID),
		zap.String("repo", cfg.Project.RepoRoot),
		zap.String("output", writer.Dir()),
	)

	return agent.NewRunner(cfg, agent.RunnerDeps{
		Orchestrator: orch,
		Tests:        &tools.Terminal{WorkingDir: cfg.Project.RepoRoot, Timeout: cfg.TestTimeout()},
		Collector:    col,
		Writer:       writer,
		Logger:       logger,
		Metrics:      metrics,
		Reporter:     newStageReporter(errOut),
	})
}
