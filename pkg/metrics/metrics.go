package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request counts and latency per route/status.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// DomainMetrics counts the business events worth alerting on.
type DomainMetrics struct {
	MatchesFormed prometheus.Counter
	TeamsCreated  prometheus.Counter
	TeamsDisbands prometheus.Counter
}

// NewHTTPMetrics registers the HTTP collectors on the given registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dormmate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dormmate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Observe records one completed request.
func (m *HTTPMetrics) Observe(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, status).Inc()
	m.duration.WithLabelValues(method, route).Observe(seconds)
}

// NewDomainMetrics registers the business counters.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	m := &DomainMetrics{
		MatchesFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dormmate",
			Name:      "matches_formed_total",
			Help:      "Mutual matches formed.",
		}),
		TeamsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dormmate",
			Name:      "teams_created_total",
			Help:      "Teams created.",
		}),
		TeamsDisbands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dormmate",
			Name:      "teams_disbanded_total",
			Help:      "Teams disbanded.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.MatchesFormed, m.TeamsCreated, m.TeamsDisbands)
	}
	return m
}
