package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initUploadMetrics() {
	r.UploadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrt_uploads_total",
			Help: "Total number of durable copy-state uploads",
		},
		[]string{"status"}, // success, failure
	)

	r.UploadDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nrt_upload_seconds",
			Help:    "Duration of durable copy-state uploads",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"status"},
	)

	r.UploadQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "nrt_upload_queue_depth",
			Help: "Number of copy states waiting in the upload queue",
		},
	)

	r.UploadRetryTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "nrt_upload_retries_total",
			Help: "Total number of retried upload attempts",
		},
	)
}
