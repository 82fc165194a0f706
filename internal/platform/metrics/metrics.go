package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification engine.
type Metrics struct {
	VerificationsSubmitted *prometheus.CounterVec
	RequestTransitions     *prometheus.CounterVec
	QuotaDenials           prometheus.Counter
	AnalyzerLatency        prometheus.Histogram
	AnalyzerRetries        prometheus.Counter
	HTTPLatency            *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics with reg. Pass
// prometheus.DefaultRegisterer in main; tests pass a fresh registry so
// suites do not collide on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_verifications_submitted_total",
			Help: "Verification submissions by admission outcome",
		}, []string{"outcome"}),
		RequestTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_request_transitions_total",
			Help: "Verification request state transitions by edge",
		}, []string{"from", "to"}),
		QuotaDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_quota_denials_total",
			Help: "Submissions denied by the entitlement gate",
		}),
		AnalyzerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_analyzer_latency_seconds",
			Help:    "Wall time of external analyzer calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		AnalyzerRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_analyzer_retries_total",
			Help: "Analyzer calls retried after a transient failure",
		}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveTransition records one state machine edge.
func (m *Metrics) ObserveTransition(from, to string) {
	m.RequestTransitions.WithLabelValues(from, to).Inc()
}

// ObserveAnalyzer records one analyzer call duration.
func (m *Metrics) ObserveAnalyzer(d time.Duration) {
	m.AnalyzerLatency.Observe(d.Seconds())
}
