package nrt

import (
	"time"
)

// StatusStream is a server-streaming sequence of TransferStatus items for one
// in-flight file transfer. Recv returns io.EOF when the remote transfer ends;
// any other error terminates the stream.
type StatusStream interface {
	Recv() (TransferStatus, error)
}

// ReplicaClient is the outbound RPC capability the coordinator holds for one
// replica. Implementations are expected to surface *StatusError for RPC
// failures so the coordinator can apply its eviction policy.
type ReplicaClient interface {
	// NewNRTPoint notifies the replica of a new searcher version to converge to.
	NewNRTPoint(indexName, indexID string, primaryGen, version int64) error

	// CopyFiles starts a file transfer on the replica and returns the status
	// stream for it. A non-zero deadline bounds the whole transfer; expiry
	// terminates the stream with a deadline-exceeded status.
	CopyFiles(indexName, indexID string, primaryGen int64, files FilesMetadata, deadline time.Time) (StatusStream, error)

	// Host returns the replica's replication host name.
	Host() string

	// Port returns the replica's replication port.
	Port() int

	// Close terminates the underlying channel.
	Close() error
}

// UploadQueue is the durable-upload contract consumed by the refresh path.
// The implementation must eventually complete every watcher exactly once.
type UploadQueue interface {
	// EnqueueUpload schedules a copy state for durable upload. Non-blocking;
	// returns an error only if the queue is closed or full.
	EnqueueUpload(state *CopyState, watchers []*RefreshUploadFuture) error

	// Close drains pending uploads and stops the queue. Enqueues after Close
	// are rejected.
	Close() error
}
