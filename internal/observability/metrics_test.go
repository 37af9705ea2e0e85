package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := NewMetrics()
	m.RecordRoleCall("diffs", "coder", "batch", 2*time.Second)
	m.RecordRoleCall("diffs", "coder", "batch", time.Second)
	m.RecordRoleFailure("api", "")
	m.RecordStreamFallback("summary")
	m.RecordDiffRetry()
	m.SetPatchesExtracted(3)
	m.RecordPatchApply("failed")

	require.Equal(t, 2.0, testutil.ToFloat64(m.RoleCalls.WithLabelValues("diffs", "coder", "batch")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RoleFailures.WithLabelValues("api", "unknown")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StreamFallback.WithLabelValues("summary")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DiffRetries))
	require.Equal(t, 3.0, testutil.ToFloat64(m.PatchesFound))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PatchApplies.WithLabelValues("failed")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRoleCall("summary", "m", "batch", time.Second)
	m.RecordDiffRetry()
	require.NoError(t, m.WriteTextfile("ignored.prom"))
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordTestRun("failed")

	path := filepath.Join(t.TempDir(), "metrics", "run.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `contractfix_test_runs_total{outcome="failed"} 1`)
}
