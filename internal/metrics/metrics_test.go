package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.ObserveStage("research", 0.4, false)
	rec.ObserveStage("gap_analysis", 1.2, true)
	rec.ObserveRun("completed", 12.5)
	rec.ObserveRun("aborted", 0.8)
	rec.RecordGate("blog", true)
	rec.RecordGate("twitter", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runsTotal.WithLabelValues("aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.stageFailures.WithLabelValues("gap_analysis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.gateDecisions.WithLabelValues("blog", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.gateDecisions.WithLabelValues("twitter", "false")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"contentd_runs_total",
		"contentd_run_duration_seconds",
		"contentd_stage_duration_seconds",
		"contentd_stage_failures_total",
		"contentd_gate_decisions_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestRecorder_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}
