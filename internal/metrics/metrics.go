// Package metrics exposes Prometheus instrumentation for pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentd"

// Recorder implements the pipeline's observer and records gate outcomes.
type Recorder struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	gateDecisions *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status.",
		}, []string{"status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end run duration.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Per-stage execution duration.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stage executions that returned an error.",
		}, []string{"stage"}),
		gateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Quality gate decisions by asset and outcome.",
		}, []string{"asset", "passed"}),
	}
}

// ObserveStage records one stage execution.
func (r *Recorder) ObserveStage(stage string, seconds float64, failed bool) {
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
	if failed {
		r.stageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveRun records one terminated run.
func (r *Recorder) ObserveRun(status string, seconds float64) {
	r.runsTotal.WithLabelValues(status).Inc()
	r.runDuration.WithLabelValues(status).Observe(seconds)
}

// RecordGate records one quality gate decision.
func (r *Recorder) RecordGate(asset string, passed bool) {
	outcome := "false"
	if passed {
		outcome = "true"
	}
	r.gateDecisions.WithLabelValues(asset, outcome).Inc()
}
