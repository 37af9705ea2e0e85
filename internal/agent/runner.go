package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/animus-coder/contractfix/internal/artifacts"
	"github.com/animus-coder/contractfix/internal/collect"
	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/logging"
	"github.com/animus-coder/contractfix/internal/observability"
	"github.com/animus-coder/contractfix/internal/report"
	"github.com/animus-coder/contractfix/internal/tools"
)

// TestRunner executes the configured test command.
type TestRunner interface {
	Run(ctx context.Context, argv []string) tools.ExecResult
}

// Reporter receives human-facing stage lines.
type Reporter interface {
	Stage(msg string)
	Warn(msg string)
}

type nopReporter struct{}

func (nopReporter) Stage(string) {}
func (nopReporter) Warn(string)  {}

// Runner wires the stages of one repair run.
type Runner struct {
	cfg       *config.Config
	orch      *Orchestrator
	tests     TestRunner
	collector *collect.Collector
	writer    *artifacts.Writer
	logger    *zap.Logger
	metrics   *observability.Metrics
	reporter  Reporter
}

// RunnerDeps groups the collaborators a Runner needs.
type RunnerDeps struct {
	Orchestrator *Orchestrator
	Tests        TestRunner
	Collector    *collect.Collector
	Writer       *artifacts.Writer
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Reporter     Reporter
}

// NewRunner validates deps and builds a Runner.
func NewRunner(cfg *config.Config, deps RunnerDeps) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Orchestrator == nil || deps.Tests == nil || deps.Collector == nil || deps.Writer == nil {
		return nil, errors.New("orchestrator, test runner, collector and writer are required")
	}
	r := &Runner{
		cfg:       cfg,
		orch:      deps.Orchestrator,
		tests:     deps.Tests,
		collector: deps.Collector,
		writer:    deps.Writer,
		logger:    logging.OrNop(deps.Logger),
		metrics:   deps.Metrics,
		reporter:  deps.Reporter,
	}
	if r.reporter == nil {
		r.reporter = nopReporter{}
	}
	return r, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RunOnce executes tests, parses reports, collects context, asks every role
// and optionally extracts diffs. The returned error is non-nil only for
// conditions that make the run meaningless: a failed role call, an artifact
// I/O fault, or zero diffs when diffs are required.
func (r *Runner) RunOnce(ctx context.Context, proposePatches bool) (Result, error) {
	res := Result{RunID: r.writer.RunID(), FastMode: r.cfg.Agent.Fast}
	if err := r.writer.Prepare(); err != nil {
		return res, err
	}

	r.reporter.Stage("Running contract tests...")
	testOut := r.tests.Run(ctx, r.cfg.Test.Command)
	res.TestExitCode = testOut.ExitCode
	res.TestsPassed = testOut.ExitCode == 0
	r.metrics.RecordTestRun(testOutcome(testOut))
	r.logger.Info("tests finished", zap.Int("exit_code", testOut.ExitCode))
	if err := r.writer.WriteText(artifacts.TestStdoutFile, testOut.Stdout); err != nil {
		return res, err
	}
	if err := r.writer.WriteText(artifacts.TestStderrFile, testOut.Stderr); err != nil {
		return res, err
	}

	r.reporter.Stage("Parsing test reports...")
	rep := report.Parse(r.cfg.SurefirePath(), r.cfg.SpecmaticLogPath())
	res.ParseSummary = rep.String()
	r.logger.Debug("reports parsed", zap.Int("suites", len(rep.Suites)), zap.Int("failures", rep.FailureCount()), zap.Strings("failing", rep.FailingTests()))
	if err := r.writer.WriteText(artifacts.ParsedFile, res.ParseSummary); err != nil {
		return res, err
	}

	r.reporter.Stage("Collecting context...")
	input := r.collectContext(res.ParseSummary)
	full := BuildPrompts(input)
	prompts := full
	if r.cfg.Agent.Fast {
		prompts = full.Trimmed(r.fastLimits())
	}

	steps := []struct {
		stage string
		role  string
		file  string
		dst   *string
	}{
		{"Summarizing failures...", config.RoleSummary, artifacts.SummaryFile, &res.LLMSummary},
		{"Suggesting API changes...", config.RoleAPI, artifacts.APISuggestionsFile, &res.APISuggestions},
		{"Suggesting Spec changes...", config.RoleSpec, artifacts.SpecSuggestionsFile, &res.SpecSuggestions},
		{"Suggesting Specmatic config...", config.RoleSpecmatic, artifacts.SpecmaticSuggestionsFile, &res.SpecmaticSuggestions},
	}
	for _, step := range steps {
		r.reporter.Stage(step.stage)
		prompt, err := prompts.Get(step.role)
		if err != nil {
			return res, err
		}
		out, err := r.orch.Complete(ctx, step.role, prompt)
		if err != nil {
			return res, err
		}
		*step.dst = out.Text
		if err := r.writer.WriteText(step.file, out.Text); err != nil {
			return res, err
		}
	}

	var diffErr error
	if proposePatches {
		r.reporter.Stage("Asking for unified diffs...")
		outcome, err := r.orch.CompleteDiffs(ctx, full.Diffs)
		if err != nil && !errors.Is(err, ErrNoDiffs) {
			return res, err
		}
		diffErr = err
		if err := r.persistDiffs(&res, outcome); err != nil {
			return res, err
		}
	}

	if err := r.writer.WriteJSON(artifacts.ResultFile, res); err != nil {
		return res, err
	}
	r.finish(ctx)
	if diffErr != nil {
		return res, fmt.Errorf("diffs required: %w", diffErr)
	}
	return res, nil
}

func (r *Runner) persistDiffs(res *Result, outcome DiffOutcome) error {
	res.DiffRetried = outcome.Retried
	if err := r.writer.WriteText(artifacts.RawDiffsFile, outcome.Result.Text); err != nil {
		return err
	}
	written, err := r.writer.WritePatches(outcome.Patches)
	if err != nil {
		return err
	}
	res.ProposedPatchCount = len(written)
	files, err := r.writer.WriteFullFiles(outcome.FullFiles)
	if err != nil {
		return err
	}
	res.ProposedFullFileCount = len(files)
	dir := r.writer.PatchesDir()
	res.PatchesDir = &dir

	r.logger.Info("diffs extracted",
		zap.Int("patches", len(written)),
		zap.Int("full_files", len(files)),
		zap.Bool("retried", outcome.Retried),
	)
	if len(written) == 0 {
		r.reporter.Warn(fmt.Sprintf("No unified diffs detected. Check %s/%s for code blocks or messages.", r.writer.Dir(), artifacts.RawDiffsFile))
	}
	return nil
}

// collectContext never fails: unreadable or missing inputs degrade to markers or empty sections.
func (r *Runner) collectContext(failures string) PromptInput {
	budget := collect.Budget{MaxFiles: r.cfg.Limits.FilesPerSection, MaxChars: r.cfg.Limits.MaxContextChars}
	roots := append(append([]string(nil), r.cfg.Project.CodeRoots...), r.cfg.Project.SpecmaticConfig)

	code := r.collector.Paths(roots, budget)
	specs := r.collector.Keyword(r.cfg.Project.SpecKeyword, budget)
	conf := r.collector.Single(r.cfg.Project.SpecmaticConfig, r.cfg.Limits.ConfigChars)
	r.logger.Debug("context collected",
		zap.Int("code_files", len(code.Chunks)), zap.Int("code_chars", code.Used),
		zap.Int("spec_files", len(specs.Chunks)), zap.Int("spec_chars", specs.Used),
		zap.Int("config_chars", conf.Used),
	)

	var index string
	if r.cfg.Limits.IndexFiles > 0 {
		entries, err := collect.NewIndex(r.collector, 0, 0).Build(failures, r.cfg.Limits.IndexFiles)
		if err != nil {
			r.logger.Warn("file index unavailable", zap.Error(err))
		}
		index = collect.RenderIndex(entries)
	}

	return PromptInput{
		Failures:  failures,
		Code:      code.String(),
		Specs:     specs.String(),
		Config:    conf.String(),
		FileIndex: index,
	}
}

func (r *Runner) fastLimits() map[string]int {
	out := make(map[string]int, len(config.Roles))
	for _, role := range config.Roles {
		out[role] = r.cfg.FastLimit(role)
	}
	return out
}

func testOutcome(res tools.ExecResult) string {
	switch {
	case res.OK():
		return "passed"
	case strings.HasPrefix(res.Stderr, "SHELL_ERROR"):
		return "launch_error"
	default:
		return "failed"
	}
}

// finish exports metrics and mirrors artifacts; both are best-effort.
func (r *Runner) finish(ctx context.Context) {
	if path := r.cfg.Artifacts.MetricsFile; path != "" {
		if err := r.metrics.WriteTextfile(r.cfg.RepoPath(path)); err != nil {
			r.logger.Warn("metrics export failed", zap.String("path", path), zap.Error(err))
		}
	}
	r.logger.Info("artifacts written", zap.String("dir", r.writer.Dir()), zap.Strings("files", r.writer.Written()))
	if err := r.writer.Mirror(ctx); err != nil {
		r.logger.Warn("artifact mirror incomplete", zap.Error(err))
	}
}
