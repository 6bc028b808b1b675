package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun("primary", "computed", 2*time.Millisecond)
	m.ObserveRun("primary", "computed", time.Millisecond)
	m.ObserveRun("flat", "not_applicable", time.Millisecond)
	m.ObserveFailure("segmented", "domain_computation")
	m.ObserveIntegrity(true)
	m.ObserveIntegrity(false)
	m.ObserveActivation("primary")
	m.ObserveOverrideDecision("approved")
	m.ObserveOverrideDecision("applied")
	m.ObserveConsolidation(true)
	m.ObserveConsolidation(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs.WithLabelValues("primary", "computed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("flat", "not_applicable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("segmented", "domain_computation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntegrityChecks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntegrityChecks.WithLabelValues("mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Activations.WithLabelValues("primary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Overrides.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Consolidations.WithLabelValues("failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Duration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("primary", "computed", time.Second)
		m.ObserveFailure("primary", "validation")
		m.ObserveIntegrity(false)
		m.ObserveActivation("flat")
		m.ObserveOverrideDecision("revoked")
		m.ObserveConsolidation(true)
	})
}
