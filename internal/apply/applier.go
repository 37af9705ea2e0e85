// Package apply lands a directory of extracted diffs onto a git working tree.
package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/animus-coder/contractfix/internal/observability"
	"github.com/animus-coder/contractfix/internal/tools"
)

// ErrNotRepository is returned when the target is not a git working tree.
var ErrNotRepository = errors.New("target is not a git working tree")

// Options control one apply batch.
type Options struct {
	Branch        string
	CommitMessage string
	// Check only dry-runs every diff; no branch, ledger entry or commit is made.
	Check bool
}

// FileOutcome is the result of one diff file.
type FileOutcome struct {
	File     string
	OK       bool
	Output   string
	LedgerID string
}

// Report summarises an apply batch.
type Report struct {
	Repo          string
	Branch        string
	BranchCreated bool
	BranchOutput  string
	CheckOnly     bool
	// Dirty lists paths that had local changes before the batch started.
	Dirty  []string
	Files  []FileOutcome
	Commit tools.ExecResult
}

// Applied counts the diffs that applied (or checked) cleanly.
func (r Report) Applied() int {
	n := 0
	for _, f := range r.Files {
		if f.OK {
			n++
		}
	}
	return n
}

// Failed counts the diffs that did not apply.
func (r Report) Failed() int {
	return len(r.Files) - r.Applied()
}

// Committed reports whether the bundling commit succeeded.
func (r Report) Committed() bool {
	return !r.CheckOnly && r.Commit.OK()
}

// String renders the per-file report printed by the apply command.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", r.Repo)
	if r.CheckOnly {
		b.WriteString("Mode: check only\n")
	} else {
		status := "created"
		if !r.BranchCreated {
			status = "not created: " + firstLine(r.BranchOutput)
		}
		fmt.Fprintf(&b, "Branch: %s (%s)\n", r.Branch, status)
	}
	if len(r.Dirty) > 0 {
		fmt.Fprintf(&b, "Warning: %d path(s) already modified before apply\n", len(r.Dirty))
	}
	if len(r.Files) == 0 {
		b.WriteString("No .diff files found.\n")
	}
	for _, f := range r.Files {
		if f.OK {
			fmt.Fprintf(&b, "  OK    %s\n", f.File)
			continue
		}
		fmt.Fprintf(&b, "  FAIL  %s: %s\n", f.File, firstLine(f.Output))
	}
	if !r.CheckOnly {
		if r.Committed() {
			fmt.Fprintf(&b, "Commit: %s\n", firstLine(r.Commit.Stdout))
		} else {
			fmt.Fprintf(&b, "Commit: nothing committed (%s)\n", firstLine(r.Commit.Output()))
		}
	}
	fmt.Fprintf(&b, "Applied %d of %d.\n", r.Applied(), len(r.Files))
	return b.String()
}

// Applier applies diff files through git and records each success in a ledger.
type Applier struct {
	git      *tools.GitTool
	ledger   *tools.Ledger
	logger   *zap.Logger
	metrics  *observability.Metrics
	excludes []string
}

// Option customises an Applier.
type Option func(*Applier)

// WithLogger sets the applier logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Applier) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics records per-file outcomes into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Applier) { a.metrics = m }
}

// WithExcludes lists repository-relative directories the tool writes into
// (artifacts, ledger). They are added to the repository's info/exclude file
// before the working tree is inspected.
func WithExcludes(dirs ...string) Option {
	return func(a *Applier) { a.excludes = append(a.excludes, dirs...) }
}

// New returns an Applier for the working tree at repo. ledger may be nil.
func New(repo string, ledger *tools.Ledger, opts ...Option) *Applier {
	a := &Applier{
		git:    &tools.GitTool{WorkingDir: repo},
		ledger: ledger,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply applies every *.diff in patchDir in filename order. A file that fails
// to apply is reported and the batch continues; the commit step always runs
// outside check mode. Only a non-repository target or an unreadable patch
// directory is an error.
func (a *Applier) Apply(ctx context.Context, patchDir string, opts Options) (Report, error) {
	rep := Report{Repo: a.git.WorkingDir, Branch: opts.Branch, CheckOnly: opts.Check}
	if res := a.git.IsRepo(ctx); !res.OK() {
		return rep, fmt.Errorf("%w: %s", ErrNotRepository, res.Output())
	}

	files, err := diffFiles(patchDir)
	if err != nil {
		return rep, err
	}

	if err := a.git.Exclude(ctx, excludePatterns(a.excludes)...); err != nil {
		a.logger.Warn("tool directories not excluded", zap.Error(err))
	}
	if st := a.git.Status(ctx); st.OK() {
		for _, line := range strings.Split(strings.TrimSpace(st.Stdout), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				rep.Dirty = append(rep.Dirty, line)
			}
		}
		if len(rep.Dirty) > 0 {
			a.logger.Warn("working tree has local changes", zap.Int("paths", len(rep.Dirty)))
		}
	}

	if !opts.Check {
		res := a.git.CreateBranch(ctx, opts.Branch)
		rep.BranchCreated = res.OK()
		rep.BranchOutput = res.Output()
		if !res.OK() {
			a.logger.Warn("branch not created, applying on current branch",
				zap.String("branch", opts.Branch),
				zap.String("error", res.Output()),
			)
		}
	}

	for _, path := range files {
		rep.Files = append(rep.Files, a.applyOne(ctx, path, opts))
	}

	if !opts.Check {
		msg := opts.CommitMessage
		if msg == "" {
			msg = "Apply agentic patches"
		}
		rep.Commit = a.git.Commit(ctx, msg)
		a.logger.Info("apply batch finished",
			zap.Int("applied", rep.Applied()),
			zap.Int("failed", rep.Failed()),
			zap.Bool("committed", rep.Committed()),
		)
	}
	return rep, nil
}

func (a *Applier) applyOne(ctx context.Context, path string, opts Options) FileOutcome {
	out := FileOutcome{File: filepath.Base(path)}
	var res tools.ExecResult
	if opts.Check {
		res = a.git.CheckApply(ctx, path)
	} else {
		res = a.git.ApplyIndex(ctx, path)
	}
	out.OK = res.OK()
	out.Output = res.Output()

	switch {
	case !out.OK:
		a.metrics.RecordPatchApply("failed")
		a.logger.Warn("patch did not apply", zap.String("path", path), zap.String("error", out.Output))
		return out
	case opts.Check:
		a.metrics.RecordPatchApply("checked")
		return out
	}
	a.metrics.RecordPatchApply("applied")

	if a.ledger != nil {
		data, err := os.ReadFile(path)
		if err == nil {
			var entry tools.PatchEntry
			entry, err = a.ledger.Record(path, data, opts.Branch)
			out.LedgerID = entry.ID
		}
		if err != nil {
			a.logger.Warn("applied patch not recorded", zap.String("path", path), zap.Error(err))
		}
	}
	return out
}

// Rollback reverse-applies the ledger entry matching name (the latest when
// empty) and drops it from the ledger. The reversal is staged, not committed.
func (a *Applier) Rollback(ctx context.Context, name string) (tools.PatchEntry, error) {
	if a.ledger == nil {
		return tools.PatchEntry{}, tools.ErrLedgerEmpty
	}
	if res := a.git.IsRepo(ctx); !res.OK() {
		return tools.PatchEntry{}, fmt.Errorf("%w: %s", ErrNotRepository, res.Output())
	}
	entry, data, err := a.ledger.Lookup(name)
	if err != nil {
		return tools.PatchEntry{}, err
	}
	if res := a.git.ReverseApply(ctx, string(data)); !res.OK() {
		return entry, fmt.Errorf("reverse %s: %s", entry.ID, res.Output())
	}
	if err := a.ledger.Remove(entry.ID); err != nil {
		return entry, fmt.Errorf("update ledger: %w", err)
	}
	a.logger.Info("patch rolled back", zap.String("id", entry.ID), zap.String("source", entry.Source))
	return entry, nil
}

// diffFiles lists absolute *.diff paths in patchDir, sorted by name.
func diffFiles(patchDir string) ([]string, error) {
	abs, err := filepath.Abs(patchDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read patch dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".diff") {
			continue
		}
		out = append(out, filepath.Join(abs, e.Name()))
	}
	return out, nil
}

// excludePatterns anchors each directory at the repository root.
func excludePatterns(dirs []string) []string {
	var out []string
	for _, d := range dirs {
		d = strings.Trim(filepath.ToSlash(filepath.Clean(d)), "/")
		if d == "" || d == "." || d == ".." || strings.HasPrefix(d, "../") {
			continue
		}
		out = append(out, "/"+d+"/")
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
