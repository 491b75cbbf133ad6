package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// NRT Metrics
	SearcherVersion       *prometheus.GaugeVec
	NRTPointsTotal        *prometheus.CounterVec
	MergeCopyStartedTotal *prometheus.CounterVec
	MergeCopyDoneTotal    *prometheus.CounterVec
	MergeCopyDuration     *prometheus.HistogramVec
	ConnectedReplicas     *prometheus.GaugeVec
	ReplicasEvictedTotal  *prometheus.CounterVec

	// Upload Metrics
	UploadsTotal     *prometheus.CounterVec
	UploadDuration   *prometheus.HistogramVec
	UploadQueueDepth prometheus.Gauge
	UploadRetryTotal prometheus.Counter

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initNRTMetrics()
	r.initUploadMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
