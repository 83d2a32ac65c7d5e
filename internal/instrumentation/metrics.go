package instrumentation

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	directoryCallDuration *prometheus.HistogramVec
	directoryCallErrors   *prometheus.CounterVec
	resolverCacheLookups  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		directoryCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orgctl_directory_call_duration_seconds",
			Help:    "Duration of management API calls by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		directoryCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orgctl_directory_call_errors_total",
			Help: "Failed management API calls by operation.",
		}, []string{"operation"}),
		resolverCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orgctl_resolver_cache_lookups_total",
			Help: "Ecosystem resolver cache lookups by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.directoryCallDuration, m.directoryCallErrors, m.resolverCacheLookups)
	return m
}

// DirectoryCallback adapts the metrics to the directory client's
// instrumentation hook.
func (m *Metrics) DirectoryCallback(operation string, durationSeconds float64, err error) {
	m.directoryCallDuration.WithLabelValues(operation).Observe(durationSeconds)
	if err != nil {
		m.directoryCallErrors.WithLabelValues(operation).Inc()
	}
}

// CacheCallback adapts the metrics to the resolver's cache hook.
func (m *Metrics) CacheCallback(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.resolverCacheLookups.WithLabelValues(outcome).Inc()
}

// Handler serves the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
