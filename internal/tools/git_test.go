package tools

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		c := exec.Command("git", args...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v, out=%s", args, err, string(out))
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	run("add", "f.txt")
	run("commit", "-m", "init")
	return dir
}

const addTwo = "diff --git a/f.txt b/f.txt\n--- a/f.txt\n+++ b/f.txt\n@@ -1 +1,2 @@\n one\n+two\n"

func TestGitApplyCommitAndReverse(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()
	g := &GitTool{WorkingDir: dir}

	if res := g.IsRepo(ctx); !res.OK() {
		t.Fatalf("expected repo, got %+v", res)
	}
	if res := g.CreateBranch(ctx, "agentic-patches"); !res.OK() {
		t.Fatalf("branch failed: %+v", res)
	}

	patchPath := filepath.Join(t.TempDir(), "patch_01.diff")
	if err := os.WriteFile(patchPath, []byte(addTwo), 0o644); err != nil {
		t.Fatalf("write patch: %v", err)
	}
	if res := g.CheckApply(ctx, patchPath); !res.OK() {
		t.Fatalf("check failed: %+v", res)
	}
	if res := g.ApplyIndex(ctx, patchPath); !res.OK() {
		t.Fatalf("apply failed: %+v", res)
	}
	if st := g.Status(ctx); strings.TrimSpace(st.Stdout) != "M  f.txt" {
		t.Fatalf("expected staged change, got %q", st.Stdout)
	}
	if res := g.Commit(ctx, "Apply agentic patches"); !res.OK() {
		t.Fatalf("commit failed: %+v", res)
	}

	if res := g.ReverseApply(ctx, addTwo); !res.OK() {
		t.Fatalf("reverse failed: %+v", res)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	if string(data) != "one\n" {
		t.Fatalf("expected reverted content, got %q", data)
	}
}

func TestGitIsRepoOutsideRepository(t *testing.T) {
	g := &GitTool{WorkingDir: t.TempDir()}
	if res := g.IsRepo(context.Background()); res.OK() {
		t.Fatalf("expected failure outside a repository")
	}
}

func TestGitMissingBinary(t *testing.T) {
	g := &GitTool{WorkingDir: t.TempDir(), Binary: "git-does-not-exist"}
	res := g.Status(context.Background())
	if res.OK() || !strings.HasPrefix(res.Stderr, "SHELL_ERROR") {
		t.Fatalf("expected SHELL_ERROR result, got %+v", res)
	}
}

func TestGitExcludeHidesToolDirs(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()
	g := &GitTool{WorkingDir: dir}

	if err := os.MkdirAll(filepath.Join(dir, ".agentic", "ledger"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".agentic", "ledger", "stack.json"), []byte("[]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if out := strings.TrimSpace(g.Status(ctx).Stdout); out != "?? .agentic/" {
		t.Fatalf("expected untracked output dir, got %q", out)
	}

	requireNoError(t, g.Exclude(ctx, "/.agentic/"))
	requireNoError(t, g.Exclude(ctx, "/.agentic/"))
	if out := strings.TrimSpace(g.Status(ctx).Stdout); out != "" {
		t.Fatalf("expected clean status, got %q", out)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".git", "info", "exclude"))
	requireNoError(t, err)
	if n := strings.Count(string(data), "/.agentic/\n"); n != 1 {
		t.Fatalf("expected one exclude line, got %d in %q", n, data)
	}
}

func TestLedgerRecordLookupRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "applied")
	l, err := OpenLedger(dir)
	requireNoError(t, err)

	if _, _, err := l.Lookup(""); !errors.Is(err, ErrLedgerEmpty) {
		t.Fatalf("expected empty ledger, got %v", err)
	}

	first, err := l.Record("patches/patch_01.diff", []byte("one"), "b")
	requireNoError(t, err)
	second, err := l.Record("patches/patch_02.diff", []byte("two"), "b")
	requireNoError(t, err)
	if second.ParentID != first.ID {
		t.Fatalf("expected lineage %s, got %s", first.ID, second.ParentID)
	}

	reopened, err := OpenLedger(dir)
	requireNoError(t, err)
	entry, data, err := reopened.Lookup("")
	requireNoError(t, err)
	if entry.ID != second.ID || string(data) != "two" {
		t.Fatalf("unexpected latest: %+v %q", entry, data)
	}
	entry, data, err = reopened.Lookup("patch_01.diff")
	requireNoError(t, err)
	if entry.ID != first.ID || string(data) != "one" {
		t.Fatalf("unexpected lookup by source: %+v %q", entry, data)
	}

	requireNoError(t, reopened.Remove(second.ID))
	if got := reopened.Entries(); len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("unexpected entries after remove: %+v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, second.FileName)); !os.IsNotExist(err) {
		t.Fatalf("expected stored copy removed, got %v", err)
	}
}
