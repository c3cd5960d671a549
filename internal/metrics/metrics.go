// Package metrics exposes Prometheus metrics for estimation runs and the
// HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "smallarea"

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	CacheHits          prometheus.Counter
	DomainsEstimated   *prometheus.CounterVec
	EstimationWarnings *prometheus.CounterVec
	SurveysImported    prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. A nil reg registers
// with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimation_runs_total",
			Help:      "Estimation runs by scenario and outcome",
		}, []string{"scenario", "outcome"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimation_run_duration_seconds",
			Help:      "Wall time of estimation runs",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"scenario"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimation_cache_hits_total",
			Help:      "Runs answered from a stored run with identical inputs",
		}),
		DomainsEstimated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domains_estimated_total",
			Help:      "Domain estimates produced, by scenario",
		}, []string{"scenario"}),
		EstimationWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimation_warnings_total",
			Help:      "Non-fatal estimation warnings by kind",
		}, []string{"kind"}),
		SurveysImported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surveys_imported_total",
			Help:      "Surveys created or replaced",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code",
		}, []string{"method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// ObserveRun records a finished run
func (m *Metrics) ObserveRun(scenario, outcome string, d time.Duration, domains int) {
	m.RunsTotal.WithLabelValues(scenario, outcome).Inc()
	m.RunDuration.WithLabelValues(scenario).Observe(d.Seconds())
	if domains > 0 {
		m.DomainsEstimated.WithLabelValues(scenario).Add(float64(domains))
	}
}

// IncrementCacheHits counts a run served from storage
func (m *Metrics) IncrementCacheHits() {
	m.CacheHits.Inc()
}

// IncrementWarnings counts a non-fatal estimation warning
func (m *Metrics) IncrementWarnings(kind string) {
	m.EstimationWarnings.WithLabelValues(kind).Inc()
}

// IncrementSurveysImported counts an imported survey
func (m *Metrics) IncrementSurveysImported() {
	m.SurveysImported.Inc()
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, statusLabel(code)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
