// Package upload implements the durable-upload side of the NRT coordinator:
// a queue that ships refresh copy states to a remote blob store and resolves
// the futures of callers waiting on durability.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/fidato13/nrtsearch/pkg/logging"
	"github.com/fidato13/nrtsearch/pkg/metrics"
	"github.com/fidato13/nrtsearch/pkg/nrt"
	"github.com/fidato13/nrtsearch/pkg/validation"
)

// ErrQueueClosed is returned by EnqueueUpload after Close.
var ErrQueueClosed = errors.New("upload queue is closed")

// ErrQueueFull is returned when the queue buffer has no room.
var ErrQueueFull = errors.New("upload queue is full")

type uploadTask struct {
	state    *nrt.CopyState
	watchers []*nrt.RefreshUploadFuture
}

// QueueConfig configures an upload queue.
type QueueConfig struct {
	IndexID string

	BufferSize    int
	MaxAttempts   int
	RetryInterval time.Duration
	BackoffCoeff  int
	UploadTimeout time.Duration

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig(indexID string) QueueConfig {
	return QueueConfig{
		IndexID:       indexID,
		BufferSize:    64,
		MaxAttempts:   3,
		RetryInterval: 500 * time.Millisecond,
		BackoffCoeff:  2,
		UploadTimeout: 30 * time.Second,
	}
}

// Validate validates the queue configuration.
func (c *QueueConfig) Validate() error {
	v := validation.NewConfigValidator("QueueConfig")
	v.Required("IndexID", c.IndexID).
		RangeInt("BufferSize", c.BufferSize, 1, 100000).
		MinInt("MaxAttempts", c.MaxAttempts, 1).
		MinDuration("UploadTimeout", c.UploadTimeout, time.Millisecond)
	return v.Validate()
}

// Queue ships copy states to a BlobStore from a single background worker and
// completes each watcher future exactly once with the upload outcome.
type Queue struct {
	store  BlobStore
	config QueueConfig
	retry  *Retryer

	mu     sync.Mutex
	closed bool
	tasks  chan uploadTask
	done   chan struct{}

	logger  logging.Logger
	metrics *metrics.Registry
}

// NewQueue creates and starts an upload queue writing to store.
func NewQueue(store BlobStore, config QueueConfig) (*Queue, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	reg := config.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}

	q := &Queue{
		store:   store,
		config:  config,
		retry:   NewRetryer(config.MaxAttempts, config.RetryInterval, config.BackoffCoeff),
		tasks:   make(chan uploadTask, config.BufferSize),
		done:    make(chan struct{}),
		logger:  logger.With(logging.Component("upload_queue")),
		metrics: reg,
	}
	go q.worker()
	return q, nil
}

// EnqueueUpload schedules a copy state for durable upload. Non-blocking: the
// watchers are completed later by the worker, or an error is returned here
// and the caller keeps ownership of them.
func (q *Queue) EnqueueUpload(state *nrt.CopyState, watchers []*nrt.RefreshUploadFuture) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- uploadTask{state: state, watchers: watchers}:
		q.metrics.UploadQueueDepth.Set(float64(len(q.tasks)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains pending uploads and stops the worker. Idempotent. Enqueues
// after Close are rejected.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	<-q.done
	return nil
}

func (q *Queue) worker() {
	defer close(q.done)
	for task := range q.tasks {
		q.metrics.UploadQueueDepth.Set(float64(len(q.tasks)))
		q.process(task)
	}
}

func (q *Queue) process(task uploadTask) {
	start := time.Now()
	err := q.retry.Run(
		func() error { return q.uploadPoint(task.state) },
		func(attempt int, cause error) {
			q.metrics.UploadRetryTotal.Inc()
			q.logger.Warn("retrying copy state upload",
				logging.Version(task.state.Version),
				logging.Int("attempt", attempt),
				logging.Error(cause))
		},
	)
	elapsed := time.Since(start)

	if err != nil {
		q.metrics.RecordUpload("failure", elapsed)
		q.logger.Error("copy state upload failed",
			logging.Version(task.state.Version),
			logging.PrimaryGen(task.state.PrimaryGen),
			logging.Error(err))
	} else {
		q.metrics.RecordUpload("success", elapsed)
		q.logger.Info("copy state upload durable",
			logging.Version(task.state.Version),
			logging.PrimaryGen(task.state.PrimaryGen),
			logging.Latency(elapsed))
	}

	for _, w := range task.watchers {
		w.SetDone(err)
	}
}

// uploadPoint writes the snappy-compressed point manifest for the copy
// state.
func (q *Queue) uploadPoint(state *nrt.CopyState) error {
	manifest, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode point manifest: %w", err)
	}
	compressed := snappy.Encode(nil, manifest)

	key := fmt.Sprintf("%s/%d/point-%d.mf.sz", q.config.IndexID, state.PrimaryGen, state.Version)

	ctx, cancel := context.WithTimeout(context.Background(), q.config.UploadTimeout)
	defer cancel()
	return q.store.Put(ctx, key, compressed)
}

var _ nrt.UploadQueue = (*Queue)(nil)
