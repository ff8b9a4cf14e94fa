// Package metrics exposes request and cache counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LookupCounter reports cumulative cache lookup results.
type LookupCounter interface {
	Hits() int64
	Misses() int64
}

// Metrics owns a private registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_requests_total",
			Help: "Requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docqa_request_duration_seconds",
			Help:    "Request latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// WatchLookups exports the hit and miss counts of c.
func (m *Metrics) WatchLookups(c LookupCounter) {
	f := promauto.With(m.registry)
	f.NewCounterFunc(prometheus.CounterOpts{
		Name:        "docqa_cache_lookups_total",
		Help:        "Cache lookups by result.",
		ConstLabels: prometheus.Labels{"result": "hit"},
	}, func() float64 { return float64(c.Hits()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name:        "docqa_cache_lookups_total",
		Help:        "Cache lookups by result.",
		ConstLabels: prometheus.Labels{"result": "miss"},
	}, func() float64 { return float64(c.Misses()) })
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(operation, outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
