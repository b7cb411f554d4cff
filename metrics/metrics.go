// Package metrics exposes Prometheus instrumentation for the protocol engine:
// run outcomes, per-stage latency, convergence iteration counts, and violation
// volumes. All metrics are observational; nothing here gates a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lnaes"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so instrumentation stays optional.
type Metrics struct {
	RunsTotal              *prometheus.CounterVec
	StageDurationSeconds   *prometheus.HistogramVec
	ConvergenceIterations  prometheus.Histogram
	ViolationsTotal        *prometheus.CounterVec
	ProviderRetriesTotal   prometheus.Counter
}

// New registers the engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		StageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Operator stage latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		ConvergenceIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "convergence_iterations",
			Help:      "Rewrite iterations per run.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 13},
		}),
		ViolationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Violations reported by VERIFY, by severity.",
		}, []string{"severity"}),
		ProviderRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Retries of provider-classified failures.",
		}),
	}
}

// RunCompleted records a run outcome.
func (m *Metrics) RunCompleted(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records one stage execution's latency.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
}

// ObserveIterations records a run's rewrite iteration count.
func (m *Metrics) ObserveIterations(n int) {
	if m == nil {
		return
	}
	m.ConvergenceIterations.Observe(float64(n))
}

// CountViolations records violations by severity.
func (m *Metrics) CountViolations(severity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ViolationsTotal.WithLabelValues(severity).Add(float64(n))
}

// CountRetry records one provider retry.
func (m *Metrics) CountRetry() {
	if m == nil {
		return
	}
	m.ProviderRetriesTotal.Inc()
}
