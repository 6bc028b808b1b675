// Package metrics exposes prometheus collectors for calculations, lineage
// integrity checks, parameter activations and supervisor overrides. A nil
// *Metrics is a no-op.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's collectors
type Metrics struct {
	Runs            *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	IntegrityChecks *prometheus.CounterVec
	Activations     *prometheus.CounterVec
	Overrides       *prometheus.CounterVec
	Consolidations  *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opcap",
			Name:      "calculation_runs_total",
			Help:      "Completed capital calculations by method and gate state",
		}, []string{"method", "gate_state"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opcap",
			Name:      "calculation_failures_total",
			Help:      "Failed capital calculations by method and error kind",
		}, []string{"method", "kind"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opcap",
			Name:      "calculation_duration_seconds",
			Help:      "Wall time of a calculation including the lineage write",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"method"}),
		IntegrityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opcap",
			Name:      "lineage_integrity_checks_total",
			Help:      "Lineage verifications by result",
		}, []string{"result"}),
		Activations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opcap",
			Name:      "parameter_activations_total",
			Help:      "Parameter set activations by model",
		}, []string{"model"}),
		Overrides: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opcap",
			Name:      "supervisor_override_events_total",
			Help:      "Supervisor override decisions and applications by event",
		}, []string{"event"}),
		Consolidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opcap",
			Name:      "group_consolidations_total",
			Help:      "Group capital consolidations by result",
		}, []string{"result"}),
	}
}

// ObserveRun records a successful calculation
func (m *Metrics) ObserveRun(method, gateState string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(method, gateState).Inc()
	m.Duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveFailure records a failed calculation
func (m *Metrics) ObserveFailure(method, kind string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(method, kind).Inc()
}

// ObserveIntegrity records the result of a lineage verification
func (m *Metrics) ObserveIntegrity(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "mismatch"
	}
	m.IntegrityChecks.WithLabelValues(result).Inc()
}

// ObserveActivation records a parameter set becoming active
func (m *Metrics) ObserveActivation(model string) {
	if m == nil {
		return
	}
	m.Activations.WithLabelValues(model).Inc()
}

// ObserveOverrideDecision records a supervisor override lifecycle event
func (m *Metrics) ObserveOverrideDecision(event string) {
	if m == nil {
		return
	}
	m.Overrides.WithLabelValues(event).Inc()
}

// ObserveConsolidation records a group consolidation
func (m *Metrics) ObserveConsolidation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Consolidations.WithLabelValues(result).Inc()
}
