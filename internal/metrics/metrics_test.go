package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewIsSingleton(t *testing.T) {
	assert.Same(t, New(), New())
}

func TestRecorders(t *testing.T) {
	m := New()

	before := testutil.ToFloat64(m.GuardrailResults.WithLabelValues("churn", "block"))
	m.RecordGuardrail("churn", "block")
	assert.Equal(t, before+1, testutil.ToFloat64(m.GuardrailResults.WithLabelValues("churn", "block")))

	before = testutil.ToFloat64(m.Verifications.WithLabelValues("task", "passed"))
	m.RecordVerification("task", true)
	assert.Equal(t, before+1, testutil.ToFloat64(m.Verifications.WithLabelValues("task", "passed")))

	before = testutil.ToFloat64(m.Iterations)
	m.RecordIteration()
	assert.Equal(t, before+1, testutil.ToFloat64(m.Iterations))
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGuardrail("x", "pass")
		m.RecordShortCircuit("x")
		m.ObserveEvaluation(0.1)
		m.RecordTransition("task", "complete")
		m.RecordVerification("task", false)
		m.RecordRejection("task")
		m.RecordIteration()
	})
}
