package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one repair run.
type Metrics struct {
	registry       *prometheus.Registry
	RoleCalls      *prometheus.CounterVec
	RoleDuration   *prometheus.HistogramVec
	RoleFailures   *prometheus.CounterVec
	StreamFallback *prometheus.CounterVec
	DiffRetries    prometheus.Counter
	PatchesFound   prometheus.Gauge
	PatchApplies   *prometheus.CounterVec
	TestRuns       *prometheus.CounterVec
}

// NewMetrics constructs a private registry with the run collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contractfix_role_calls_total",
		Help: "Completion requests by role, model and delivery source",
	}, []string{"role", "model", "source"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contractfix_role_duration_seconds",
		Help:    "Completion latency by role",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"role"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contractfix_role_failures_total",
		Help: "Failed completion requests by role and model",
	}, []string{"role", "model"})

	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contractfix_stream_fallbacks_total",
		Help: "Streams that failed mid-flight and were retried in batch mode",
	}, []string{"role"})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contractfix_diff_retries_total",
		Help: "Stricter diff re-requests after an empty extraction",
	})

	found := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "contractfix_patches_extracted",
		Help: "Unified diffs extracted in the last run",
	})

	applies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contractfix_patch_apply_total",
		Help: "Patch apply attempts by outcome",
	}, []string{"outcome"})

	tests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contractfix_test_runs_total",
		Help: "Contract test executions by outcome",
	}, []string{"outcome"})

	reg.MustRegister(calls, durs, failures, fallbacks, retries, found, applies, tests)

	return &Metrics{
		registry:       reg,
		RoleCalls:      calls,
		RoleDuration:   durs,
		RoleFailures:   failures,
		StreamFallback: fallbacks,
		DiffRetries:    retries,
		PatchesFound:   found,
		PatchApplies:   applies,
		TestRuns:       tests,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRoleCall records a completed completion request.
func (m *Metrics) RecordRoleCall(role, model, source string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RoleCalls.WithLabelValues(orUnknown(role), orUnknown(model), orUnknown(source)).Inc()
	m.RoleDuration.WithLabelValues(orUnknown(role)).Observe(elapsed.Seconds())
}

// RecordRoleFailure increments the failure counter for a role/model pair.
func (m *Metrics) RecordRoleFailure(role, model string) {
	if m == nil {
		return
	}
	m.RoleFailures.WithLabelValues(orUnknown(role), orUnknown(model)).Inc()
}

// RecordStreamFallback counts a streaming failure that fell back to batch.
func (m *Metrics) RecordStreamFallback(role string) {
	if m == nil {
		return
	}
	m.StreamFallback.WithLabelValues(orUnknown(role)).Inc()
}

// RecordDiffRetry counts the stricter diff re-request.
func (m *Metrics) RecordDiffRetry() {
	if m == nil {
		return
	}
	m.DiffRetries.Inc()
}

// SetPatchesExtracted records how many diffs the run produced.
func (m *Metrics) SetPatchesExtracted(n int) {
	if m == nil {
		return
	}
	m.PatchesFound.Set(float64(n))
}

// RecordPatchApply records one patch apply outcome ("applied", "failed", "checked").
func (m *Metrics) RecordPatchApply(outcome string) {
	if m == nil {
		return
	}
	m.PatchApplies.WithLabelValues(orUnknown(outcome)).Inc()
}

// RecordTestRun records a test execution outcome ("passed", "failed", "launch_error").
func (m *Metrics) RecordTestRun(outcome string) {
	if m == nil {
		return
	}
	m.TestRuns.WithLabelValues(orUnknown(outcome)).Inc()
}

// WriteTextfile exports the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
