// Package metrics exposes Prometheus counters for allergy operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	warnings   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allergy",
			Name:      "operations_total",
			Help:      "Allergy operations by name and outcome.",
		}, []string{"op", "outcome"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allergy",
			Name:      "interaction_warnings_total",
			Help:      "Drug-allergy interaction warnings returned.",
		}),
	}
	m.registry.MustRegister(m.operations, m.warnings)
	return m
}

// Observe counts one call of op.
func (m *Metrics) Observe(op string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// Warnings counts n interaction warnings.
func (m *Metrics) Warnings(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.warnings.Add(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
