// Package telemetry holds the Prometheus metrics and OpenTelemetry tracing
// used by the decision workflow.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are namespaced "fincil_". All methods are safe on a nil receiver so
// callers can run without metrics.
type Metrics struct {
	evaluations *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fincil",
			Name:      "evaluations_total",
			Help:      "Council evaluations by kind (query or appeal), verdict and outcome.",
		}, []string{"kind", "verdict", "outcome"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fincil",
			Name:      "decisions_total",
			Help:      "Terminal user decisions (bought or saved).",
		}, []string{"decision"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fincil",
			Name:      "workflow_failures_total",
			Help:      "Workflow operations that returned an error.",
		}, []string{"operation", "reason"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fincil",
			Name:      "workflow_duration_ms",
			Help:      "Workflow operation latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveEvaluation(kind, verdict, outcome string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(kind, verdict, outcome).Inc()
}

func (m *Metrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveFailure(operation, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) ObserveLatency(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(operation).Observe(float64(d.Microseconds()) / 1000)
}
