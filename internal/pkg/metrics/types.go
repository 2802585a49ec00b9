package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry defines the interface for metrics collection
type Registry interface {
	// HTTP Metrics
	RecordHTTPRequest(method, path, statusCode string, duration float64)
	IncHTTPRequestsInFlight()
	DecHTTPRequestsInFlight()

	// Business Metrics
	RecordPageRequest(cacheStatus string)
	ObserveUpstreamFetch(status string, duration float64)
	IncStoreErrors(operation string)

	// Prometheus-specific methods
	GetRegistry() *prometheus.Registry
	GetHandler() http.Handler
}

// NoOpRegistry provides a no-op implementation for when metrics are disabled
type NoOpRegistry struct{}

func NewNoOpRegistry() Registry {
	return &NoOpRegistry{}
}

func (n *NoOpRegistry) RecordHTTPRequest(method, path, statusCode string, duration float64) {}
func (n *NoOpRegistry) IncHTTPRequestsInFlight()                                            {}
func (n *NoOpRegistry) DecHTTPRequestsInFlight()                                            {}
func (n *NoOpRegistry) RecordPageRequest(cacheStatus string)                                {}
func (n *NoOpRegistry) ObserveUpstreamFetch(status string, duration float64)                {}
func (n *NoOpRegistry) IncStoreErrors(operation string)                                     {}
func (n *NoOpRegistry) GetRegistry() *prometheus.Registry                                   { return nil }
func (n *NoOpRegistry) GetHandler() http.Handler                                            { return nil }

// Common label names as constants
const (
	LabelMethod      = "method"
	LabelPath        = "path"
	LabelStatusCode  = "status_code"
	LabelOperation   = "operation"
	LabelStatus      = "status"
	LabelCacheStatus = "cache_status"
)

// Label values for cache_status and status
const (
	CacheStatusHit   = "hit"
	CacheStatusMiss  = "miss"
	CacheStatusError = "error"

	StatusSuccess = "success"
	StatusFailure = "failure"
)
