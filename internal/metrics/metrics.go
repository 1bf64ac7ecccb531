// Package metrics exposes Prometheus instrumentation for the progress-control
// core. All methods are safe on a nil *Metrics so components can treat
// metrics as optional.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the gantry collectors.
type Metrics struct {
	GuardrailResults   *prometheus.CounterVec
	ShortCircuits      *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	Transitions        *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	CompletionRejected *prometheus.CounterVec
	Iterations         prometheus.Counter
}

// New returns the process-wide collectors, registering them on first use.
//
// Metrics:
//   - gantry_guardrail_results_total{guardrail,outcome}
//   - gantry_guardrail_short_circuits_total{guardrail}
//   - gantry_pipeline_evaluation_seconds
//   - gantry_node_transitions_total{kind,to}
//   - gantry_verifications_total{scope,result}
//   - gantry_completion_rejections_total{scope}
//   - gantry_loop_iterations_total
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			GuardrailResults: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gantry_guardrail_results_total",
					Help: "Guardrail evaluations by outcome",
				},
				[]string{"guardrail", "outcome"},
			),
			ShortCircuits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gantry_guardrail_short_circuits_total",
					Help: "Pipeline evaluations stopped early by a blocking guardrail",
				},
				[]string{"guardrail"},
			),
			EvaluationDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "gantry_pipeline_evaluation_seconds",
					Help:    "Duration of a full pipeline evaluation",
					Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
				},
			),
			Transitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gantry_node_transitions_total",
					Help: "Work node state transitions",
				},
				[]string{"kind", "to"},
			),
			Verifications: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gantry_verifications_total",
					Help: "Recorded verification verdicts",
				},
				[]string{"scope", "result"},
			),
			CompletionRejected: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gantry_completion_rejections_total",
					Help: "Completion requests refused for lack of a passing verification",
				},
				[]string{"scope"},
			),
			Iterations: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "gantry_loop_iterations_total",
					Help: "Agent loop iterations started",
				},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) RecordGuardrail(name, outcome string) {
	if m == nil {
		return
	}
	m.GuardrailResults.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) RecordShortCircuit(name string) {
	if m == nil {
		return
	}
	m.ShortCircuits.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveEvaluation(seconds float64) {
	if m == nil {
		return
	}
	m.EvaluationDuration.Observe(seconds)
}

func (m *Metrics) RecordTransition(kind, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind, to).Inc()
}

// RecordVerification counts a verdict as "passed" or "failed".
func (m *Metrics) RecordVerification(scope string, passed bool) {
	if m == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.Verifications.WithLabelValues(scope, result).Inc()
}

func (m *Metrics) RecordRejection(scope string) {
	if m == nil {
		return
	}
	m.CompletionRejected.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordIteration() {
	if m == nil {
		return
	}
	m.Iterations.Inc()
}
