package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "launch_advisor"

// Metrics holds the Prometheus counters and histograms for the advisor.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec // labels: verdict
	DecisionDuration prometheus.Histogram
	RuleOutcomes     *prometheus.CounterVec // labels: rule, status

	// Feed client metrics.
	FeedFetches  *prometheus.CounterVec   // labels: feed, outcome={success,error}
	FeedDuration *prometheus.HistogramVec // labels: feed
	FeedRetries  *prometheus.CounterVec   // labels: feed
	FeedCache    *prometheus.CounterVec   // labels: feed, result={hit,miss}

	// Audit sink metrics.
	AuditRecords *prometheus.CounterVec // labels: sink, outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Launch decisions computed, by verdict.",
		}, []string{"verdict"}),
		DecisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time to compute one decision including feed fan-out.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		RuleOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_outcomes_total",
			Help:      "Rule evaluations by rule id and status.",
		}, []string{"rule", "status"}),
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Feed fetches by feed and outcome, after retries.",
		}, []string{"feed", "outcome"}),
		FeedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_fetch_duration_seconds",
			Help:      "Feed fetch duration in seconds, retries included.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"feed"}),
		FeedRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_retries_total",
			Help:      "Retried feed attempts after a transient failure.",
		}, []string{"feed"}),
		FeedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_cache_total",
			Help:      "Feed response cache lookups by feed and result.",
		}, []string{"feed", "result"}),
		AuditRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_total",
			Help:      "Decision audit writes by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DecisionsTotal,
		m.DecisionDuration,
		m.RuleOutcomes,
		m.FeedFetches,
		m.FeedDuration,
		m.FeedRetries,
		m.FeedCache,
		m.AuditRecords,
	}
}
