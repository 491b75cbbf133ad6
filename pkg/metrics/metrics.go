package metrics

import (
	"time"
)

// RecordNRTPoint records a broadcast NRT point for an index
func (r *Registry) RecordNRTPoint(index string, version int64) {
	r.SearcherVersion.WithLabelValues(index).Set(float64(version))
	r.NRTPointsTotal.WithLabelValues(index).Inc()
}

// RecordMergeCopyStart records the start of a merge pre-copy
func (r *Registry) RecordMergeCopyStart(index string) {
	r.MergeCopyStartedTotal.WithLabelValues(index).Inc()
}

// RecordMergeCopyDone records a finished or abandoned merge pre-copy
func (r *Registry) RecordMergeCopyDone(index string, elapsed time.Duration) {
	r.MergeCopyDoneTotal.WithLabelValues(index).Inc()
	r.MergeCopyDuration.WithLabelValues(index).Observe(elapsed.Seconds())
}

// SetConnectedReplicas updates the registered replica count for an index
func (r *Registry) SetConnectedReplicas(index string, n int) {
	r.ConnectedReplicas.WithLabelValues(index).Set(float64(n))
}

// RecordReplicaEvicted records a replica dropped after a fatal broadcast status
func (r *Registry) RecordReplicaEvicted(index, code string) {
	r.ReplicasEvictedTotal.WithLabelValues(index, code).Inc()
}

// RecordUpload records a durable upload attempt outcome
func (r *Registry) RecordUpload(status string, duration time.Duration) {
	r.UploadsTotal.WithLabelValues(status).Inc()
	r.UploadDuration.WithLabelValues(status).Observe(duration.Seconds())
}
