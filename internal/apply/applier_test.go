package apply

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/animus-coder/contractfix/internal/observability"
	"github.com/animus-coder/contractfix/internal/tools"
)

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	c := exec.Command("git", args...)
	c.Dir = dir
	out, err := c.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	git(t, dir, "init")
	git(t, dir, "config", "user.email", "test@example.com")
	git(t, dir, "config", "user.name", "Test User")
	for name, content := range map[string]string{"a.txt": "one\n", "b.txt": "alpha\n"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-m", "init")
	return dir
}

func writePatches(t *testing.T, patches map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range patches {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

const (
	patchA    = "--- a/a.txt\n+++ b/a.txt\n@@ -1 +1,2 @@\n one\n+two\n"
	patchB    = "--- a/b.txt\n+++ b/b.txt\n@@ -1 +1,2 @@\n alpha\n+beta\n"
	malformed = "--- a/a.txt\n+++ b/a.txt\n@@ -7 +7 @@\n-missing line\n+nope\n"
)

func TestApplyBatchToleratesFailure(t *testing.T) {
	repo := initRepo(t)
	patchDir := writePatches(t, map[string]string{
		"patch_01.diff": patchA,
		"patch_02.diff": malformed,
		"patch_03.diff": patchB,
		"notes.txt":     "ignored",
	})
	ledger, err := tools.OpenLedger(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	a := New(repo, ledger, WithMetrics(metrics))

	rep, err := a.Apply(context.Background(), patchDir, Options{Branch: "agentic-patches", CommitMessage: "Apply agentic patches"})
	require.NoError(t, err)

	require.True(t, rep.BranchCreated)
	require.Len(t, rep.Files, 3)
	require.Equal(t, []string{"patch_01.diff", "patch_02.diff", "patch_03.diff"},
		[]string{rep.Files[0].File, rep.Files[1].File, rep.Files[2].File})
	require.True(t, rep.Files[0].OK)
	require.False(t, rep.Files[1].OK)
	require.NotEmpty(t, rep.Files[1].Output)
	require.True(t, rep.Files[2].OK)
	require.Equal(t, 1, rep.Failed())
	require.True(t, rep.Committed())

	require.Equal(t, "agentic-patches\n", git(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
	require.Equal(t, "one\ntwo\n", git(t, repo, "show", "HEAD:a.txt"))
	require.Equal(t, "alpha\nbeta\n", git(t, repo, "show", "HEAD:b.txt"))
	require.Equal(t, "Apply agentic patches\n", git(t, repo, "log", "-1", "--format=%s"))

	require.Len(t, ledger.Entries(), 2)
	require.Equal(t, rep.Files[2].LedgerID, ledger.Entries()[1].ID)
	require.Equal(t, float64(2), testutil.ToFloat64(metrics.PatchApplies.WithLabelValues("applied")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.PatchApplies.WithLabelValues("failed")))

	out := rep.String()
	require.Contains(t, out, "  OK    patch_01.diff")
	require.Contains(t, out, "  FAIL  patch_02.diff: ")
	require.Contains(t, out, "Applied 2 of 3.")
}

func TestApplyCommitsNothingWhenAllFail(t *testing.T) {
	repo := initRepo(t)
	patchDir := writePatches(t, map[string]string{"patch_01.diff": malformed})

	rep, err := New(repo, nil).Apply(context.Background(), patchDir, Options{Branch: "fix"})
	require.NoError(t, err)
	require.Equal(t, 0, rep.Applied())
	require.False(t, rep.Committed())
	require.Contains(t, rep.String(), "Commit: nothing committed")
	require.Equal(t, "init\n", git(t, repo, "log", "-1", "--format=%s"))
}

func TestApplyCheckOnlyLeavesTreeUntouched(t *testing.T) {
	repo := initRepo(t)
	patchDir := writePatches(t, map[string]string{"patch_01.diff": patchA, "patch_02.diff": malformed})

	rep, err := New(repo, nil).Apply(context.Background(), patchDir, Options{Branch: "fix", Check: true})
	require.NoError(t, err)
	require.True(t, rep.CheckOnly)
	require.Equal(t, 1, rep.Applied())
	require.Equal(t, "", strings.TrimSpace(git(t, repo, "status", "--short")))
	require.NotEqual(t, "fix\n", git(t, repo, "rev-parse", "--abbrev-ref", "HEAD"))
}

func TestApplyReportsDirtyTree(t *testing.T) {
	repo := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "c.txt"), []byte("local\n"), 0o644))
	patchDir := writePatches(t, map[string]string{"patch_01.diff": patchA})

	rep, err := New(repo, nil).Apply(context.Background(), patchDir, Options{Branch: "fix", Check: true})
	require.NoError(t, err)
	require.Equal(t, []string{"?? c.txt"}, rep.Dirty)
	require.Contains(t, rep.String(), "Warning: 1 path(s) already modified before apply")
}

func TestApplyExcludesToolDirs(t *testing.T) {
	repo := initRepo(t)
	ledger, err := tools.OpenLedger(filepath.Join(repo, ".agentic", "ledger"))
	require.NoError(t, err)
	patchDir := filepath.Join(repo, ".agentic", "patches")
	require.NoError(t, os.MkdirAll(patchDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(patchDir, "patch_01.diff"), []byte(patchA), 0o644))
	a := New(repo, ledger, WithExcludes(".agentic", "../outside", "./.agentic/ledger"))

	rep, err := a.Apply(context.Background(), patchDir, Options{Branch: "fix"})
	require.NoError(t, err)
	require.Empty(t, rep.Dirty)
	require.True(t, rep.Committed())

	rep, err = a.Apply(context.Background(), patchDir, Options{Branch: "fix-2", Check: true})
	require.NoError(t, err)
	require.Empty(t, rep.Dirty)
	require.Equal(t, "", strings.TrimSpace(git(t, repo, "status", "--short")))
}

func TestApplyRejectsNonRepository(t *testing.T) {
	patchDir := writePatches(t, map[string]string{"patch_01.diff": patchA})
	_, err := New(t.TempDir(), nil).Apply(context.Background(), patchDir, Options{Branch: "fix"})
	require.ErrorIs(t, err, ErrNotRepository)
}

func TestApplyMissingPatchDir(t *testing.T) {
	repo := initRepo(t)
	_, err := New(repo, nil).Apply(context.Background(), filepath.Join(repo, "nope"), Options{Branch: "fix"})
	require.ErrorContains(t, err, "read patch dir")
}

func TestRollbackReversesLatest(t *testing.T) {
	repo := initRepo(t)
	patchDir := writePatches(t, map[string]string{"patch_01.diff": patchA, "patch_02.diff": patchB})
	ledger, err := tools.OpenLedger(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	a := New(repo, ledger)

	_, err = a.Apply(context.Background(), patchDir, Options{Branch: "fix"})
	require.NoError(t, err)

	entry, err := a.Rollback(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "patch_02.diff", filepath.Base(entry.Source))
	data, err := os.ReadFile(filepath.Join(repo, "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "alpha\n", string(data))

	entry, err = a.Rollback(context.Background(), "patch_01.diff")
	require.NoError(t, err)
	require.Equal(t, "patch_01.diff", filepath.Base(entry.Source))
	require.Empty(t, ledger.Entries())

	_, err = a.Rollback(context.Background(), "")
	require.ErrorIs(t, err, tools.ErrLedgerEmpty)
}
