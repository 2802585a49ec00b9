package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sp3dr4/webcache/config"
)

// PrometheusRegistry implements the Registry interface using Prometheus metrics
type PrometheusRegistry struct {
	registry *prometheus.Registry
	config   config.MetricsConfig

	// HTTP Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business Metrics
	pageRequestsTotal     *prometheus.CounterVec
	upstreamFetchDuration *prometheus.HistogramVec
	storeErrorsTotal      *prometheus.CounterVec
}

// NewPrometheusRegistry creates a new Prometheus metrics registry
func NewPrometheusRegistry(cfg config.MetricsConfig) (Registry, error) {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatusCode},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath, LabelStatusCode},
	)

	httpRequestsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	pageRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "page_requests_total",
			Help:      "Total number of page fetch requests by cache outcome",
		},
		[]string{LabelCacheStatus},
	)

	upstreamFetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "upstream_fetch_duration_seconds",
			Help:      "Duration of upstream page retrievals in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelStatus},
	)

	storeErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "store_errors_total",
			Help:      "Total number of key-value store failures by operation",
		},
		[]string{LabelOperation},
	)

	metricsCollectors := []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestsInFlight,
		pageRequestsTotal,
		upstreamFetchDuration,
		storeErrorsTotal,
	}

	for _, collector := range metricsCollectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	if cfg.CollectRuntime {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &PrometheusRegistry{
		registry:              registry,
		config:                cfg,
		httpRequestsTotal:     httpRequestsTotal,
		httpRequestDuration:   httpRequestDuration,
		httpRequestsInFlight:  httpRequestsInFlight,
		pageRequestsTotal:     pageRequestsTotal,
		upstreamFetchDuration: upstreamFetchDuration,
		storeErrorsTotal:      storeErrorsTotal,
	}, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration
func (p *PrometheusRegistry) RecordHTTPRequest(method, path, statusCode string, duration float64) {
	labels := prometheus.Labels{
		LabelMethod:     method,
		LabelPath:       path,
		LabelStatusCode: statusCode,
	}
	p.httpRequestsTotal.With(labels).Inc()
	p.httpRequestDuration.With(labels).Observe(duration)
}

// IncHTTPRequestsInFlight increments the in-flight HTTP requests counter
func (p *PrometheusRegistry) IncHTTPRequestsInFlight() {
	p.httpRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight HTTP requests counter
func (p *PrometheusRegistry) DecHTTPRequestsInFlight() {
	p.httpRequestsInFlight.Dec()
}

// RecordPageRequest counts a page request by its cache outcome
func (p *PrometheusRegistry) RecordPageRequest(cacheStatus string) {
	p.pageRequestsTotal.WithLabelValues(cacheStatus).Inc()
}

// ObserveUpstreamFetch records how long an upstream retrieval took
func (p *PrometheusRegistry) ObserveUpstreamFetch(status string, duration float64) {
	p.upstreamFetchDuration.WithLabelValues(status).Observe(duration)
}

// IncStoreErrors counts a failed store operation
func (p *PrometheusRegistry) IncStoreErrors(operation string) {
	p.storeErrorsTotal.WithLabelValues(operation).Inc()
}

// GetRegistry returns the underlying Prometheus registry
func (p *PrometheusRegistry) GetRegistry() *prometheus.Registry {
	return p.registry
}

// GetHandler returns an HTTP handler for the metrics endpoint
func (p *PrometheusRegistry) GetHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
