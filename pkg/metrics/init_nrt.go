package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initNRTMetrics() {
	r.SearcherVersion = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nrt_searcher_version",
			Help: "Latest searcher version broadcast by the primary",
		},
		[]string{"index"},
	)

	r.NRTPointsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrt_primary_points_total",
			Help: "Total number of NRT points broadcast to replicas",
		},
		[]string{"index"},
	)

	r.MergeCopyStartedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrt_merge_precopy_started_total",
			Help: "Total number of merge pre-copies started",
		},
		[]string{"index"},
	)

	r.MergeCopyDoneTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrt_merge_precopy_done_total",
			Help: "Total number of merge pre-copies completed or abandoned",
		},
		[]string{"index"},
	)

	r.MergeCopyDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nrt_merge_precopy_seconds",
			Help:    "Wall time of merge pre-copies to all replicas",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"index"},
	)

	r.ConnectedReplicas = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nrt_connected_replicas",
			Help: "Number of replicas currently registered with the primary",
		},
		[]string{"index"},
	)

	r.ReplicasEvictedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrt_replicas_evicted_total",
			Help: "Replicas evicted from the registry after a fatal broadcast status",
		},
		[]string{"index", "code"},
	)
}
