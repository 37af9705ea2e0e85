package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/animus-coder/contractfix/internal/apply"
	"github.com/animus-coder/contractfix/internal/artifacts"
	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/logging"
	"github.com/animus-coder/contractfix/internal/observability"
	"github.com/animus-coder/contractfix/internal/tools"
)

type applyFlags struct {
	repo   string
	branch string
	check  bool
}

// NewApplyCmd applies a directory of diffs onto a fresh branch and commits them.
func NewApplyCmd(opts *Options) *cobra.Command {
	flags := &applyFlags{}

	cmd := &cobra.Command{
		Use:   "apply [patch-dir]",
		Short: "Apply extracted diffs on a new branch and commit them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Agent.Verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			patchDir := filepath.Join(cfg.OutputPath(), artifacts.PatchesDir)
			if len(args) == 1 {
				patchDir = args[0]
			}
			branch := flags.branch
			if branch == "" {
				branch = cfg.Apply.Branch
			}
			repo, err := targetRepo(cfg, flags.repo)
			if err != nil {
				return err
			}

			ledger, err := tools.OpenLedger(ledgerDir(cfg, repo))
			if err != nil {
				return err
			}
			metrics := observability.NewMetrics()
			applier := apply.New(repo, ledger,
				apply.WithLogger(logger),
				apply.WithMetrics(metrics),
				apply.WithExcludes(repoRelative(repo, cfg.OutputPath(), ledgerDir(cfg, repo))...),
			)

			rep, err := applier.Apply(cmd.Context(), patchDir, apply.Options{
				Branch:        branch,
				CommitMessage: cfg.Apply.CommitMessage,
				Check:         flags.check,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rep.String())
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d applied, %d failed\n", statusLabel(cmd.ErrOrStderr(), rep.Failed() == 0), rep.Applied(), rep.Failed())

			if path := cfg.Artifacts.MetricsFile; path != "" {
				if err := metrics.WriteTextfile(cfg.RepoPath(path)); err != nil {
					logger.Warn("metrics export failed", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.repo, "repo", "", "Target repository (default: project.repo_root)")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "Branch to create (default: apply.branch)")
	cmd.Flags().BoolVar(&flags.check, "check", false, "Only check that each diff applies; change nothing")
	return cmd
}

// NewRollbackCmd reverse-applies a previously applied diff from the ledger.
func NewRollbackCmd(opts *Options) *cobra.Command {
	var repoFlag string

	cmd := &cobra.Command{
		Use:   "rollback [id|file]",
		Short: "Reverse the latest (or named) applied diff",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Agent.Verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			repo, err := targetRepo(cfg, repoFlag)
			if err != nil {
				return err
			}
			ledger, err := tools.OpenLedger(ledgerDir(cfg, repo))
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			entry, err := apply.New(repo, ledger, apply.WithLogger(logger)).Rollback(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reverted %s (%s); the reversal is staged.\n", entry.ID, filepath.Base(entry.Source))
			return nil
		},
	}

	cmd.Flags().StringVar(&repoFlag, "repo", "", "Target repository (default: project.repo_root)")
	return cmd
}

func targetRepo(cfg *config.Config, flag string) (string, error) {
	if flag == "" {
		return cfg.Project.RepoRoot, nil
	}
	return filepath.Abs(flag)
}

// ledgerDir resolves apply.ledger_dir against the target repository.
func ledgerDir(cfg *config.Config, repo string) string {
	if filepath.IsAbs(cfg.Apply.LedgerDir) {
		return cfg.Apply.LedgerDir
	}
	return filepath.Join(repo, cfg.Apply.LedgerDir)
}

// repoRelative maps absolute tool directories to paths relative to repo.
// Directories outside repo are dropped.
func repoRelative(repo string, dirs ...string) []string {
	var out []string
	for _, d := range dirs {
		rel, err := filepath.Rel(repo, d)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, rel)
	}
	return out
}
