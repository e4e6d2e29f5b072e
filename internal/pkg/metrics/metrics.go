// Package metrics exposes Prometheus instrumentation for safety analysis.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors recorded by the gate service. A nil *Metrics
// is valid and records nothing, so callers never have to branch on whether
// instrumentation is enabled.
type Metrics struct {
	queriesTotal     *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	providerFailures *prometheus.CounterVec
	restartsTotal    prometheus.Counter
}

// New registers the toolgate collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate",
			Name:      "queries_total",
			Help:      "Safety queries issued, by provider kind and outcome.",
		}, []string{"provider", "outcome"}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate",
			Name:      "decisions_total",
			Help:      "Gate decisions emitted, by decision.",
		}, []string{"decision"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "toolgate",
			Name:      "query_duration_seconds",
			Help:      "Wall-clock duration of judge queries.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate",
			Name:      "provider_failures_total",
			Help:      "Judge failures, by provider kind.",
		}, []string{"provider"}),
		restartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toolgate",
			Name:      "persistent_restarts_total",
			Help:      "Restarts of the persistent judge subprocess.",
		}),
	}
	reg.MustRegister(m.queriesTotal, m.decisionsTotal, m.queryDuration, m.providerFailures, m.restartsTotal)
	return m
}

func (m *Metrics) ObserveQuery(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(provider, outcome).Inc()
	m.queryDuration.Observe(seconds)
}

func (m *Metrics) CountDecision(decision string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) CountProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) CountRestart() {
	if m == nil {
		return
	}
	m.restartsTotal.Inc()
}
