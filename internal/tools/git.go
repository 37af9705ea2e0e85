package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitTool is the version-control adapter used by the patch applier.
// Every operation reports {exit code, stdout, stderr}; launch failures become
// a synthetic non-zero result instead of an error.
type GitTool struct {
	WorkingDir string
	// Binary defaults to "git".
	Binary string
}

// IsRepo runs `git rev-parse --is-inside-work-tree`.
func (g *GitTool) IsRepo(ctx context.Context) ExecResult {
	res := g.run(ctx, nil, "rev-parse", "--is-inside-work-tree")
	if res.OK() && strings.TrimSpace(res.Stdout) != "true" {
		res.ExitCode = 1
	}
	return res
}

// CreateBranch creates name and switches to it.
func (g *GitTool) CreateBranch(ctx context.Context, name string) ExecResult {
	return g.run(ctx, nil, "checkout", "-b", name)
}

// CheckApply dry-runs a patch file against the index.
func (g *GitTool) CheckApply(ctx context.Context, patchPath string) ExecResult {
	return g.run(ctx, nil, "apply", "--check", "--index", patchPath)
}

// ApplyIndex applies a patch file to the working tree and stages it.
func (g *GitTool) ApplyIndex(ctx context.Context, patchPath string) ExecResult {
	return g.run(ctx, nil, "apply", "--index", patchPath)
}

// ReverseApply undoes a previously applied patch, read from patch text.
func (g *GitTool) ReverseApply(ctx context.Context, patch string) ExecResult {
	return g.run(ctx, strings.NewReader(patch), "apply", "-R", "--index", "-")
}

// Commit records every staged change.
func (g *GitTool) Commit(ctx context.Context, message string) ExecResult {
	return g.run(ctx, nil, "commit", "-m", message)
}

// Status returns git status --short.
func (g *GitTool) Status(ctx context.Context) ExecResult {
	return g.run(ctx, nil, "status", "--short")
}

// Exclude appends the patterns missing from the repository's info/exclude
// file, so tool-owned directories never show up as untracked.
func (g *GitTool) Exclude(ctx context.Context, patterns ...string) error {
	if len(patterns) == 0 {
		return nil
	}
	res := g.run(ctx, nil, "rev-parse", "--git-path", "info/exclude")
	if !res.OK() {
		return fmt.Errorf("locate info/exclude: %s", res.Output())
	}
	path := strings.TrimSpace(res.Stdout)
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.WorkingDir, path)
	}

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	have := make(map[string]struct{})
	for _, line := range strings.Split(string(existing), "\n") {
		have[strings.TrimSpace(line)] = struct{}{}
	}
	var add strings.Builder
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		add.WriteString("\n")
	}
	for _, p := range patterns {
		if _, ok := have[p]; ok || p == "" {
			continue
		}
		have[p] = struct{}{}
		add.WriteString(p + "\n")
	}
	if strings.TrimSpace(add.String()) == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(add.String()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (g *GitTool) run(ctx context.Context, stdin io.Reader, args ...string) ExecResult {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	res, err := runCommand(ctx, g.WorkingDir, stdin, bin, args...)
	if err == nil {
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res
	}
	return shellError(err)
}
