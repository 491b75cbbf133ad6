package nrt

import (
	"fmt"
	"sync"

	"github.com/fidato13/nrtsearch/pkg/logging"
)

// PrimaryRefreshManager is the searcher-reference manager for the primary.
// It serializes refreshes, hands out ref-counted readers, and on each
// successful refresh broadcasts the new NRT point and queues durable uploads
// for any registered watchers.
type PrimaryRefreshManager struct {
	primary *PrimaryNode

	// refreshMu serializes refreshIfNeeded; at most one refresh is in
	// progress at a time.
	refreshMu sync.Mutex

	// mu guards current and nextRefreshWatchers.
	mu                  sync.Mutex
	current             Reader
	nextRefreshWatchers []*RefreshUploadFuture

	logger logging.Logger
}

// NewPrimaryRefreshManager creates a refresh manager bound to the primary's
// current searcher.
func NewPrimaryRefreshManager(primary *PrimaryNode) (*PrimaryRefreshManager, error) {
	current, err := primary.writer.Acquire()
	if err != nil {
		return nil, fmt.Errorf("acquire initial searcher: %w", err)
	}
	return &PrimaryRefreshManager{
		primary: primary,
		current: current,
		logger:  primary.logger.With(logging.Component("refresh_manager")),
	}, nil
}

// Acquire returns the current searcher with a reference owned by the caller.
// The caller must Release it.
func (m *PrimaryRefreshManager) Acquire() (Reader, error) {
	for {
		m.mu.Lock()
		current := m.current
		m.mu.Unlock()
		if current == nil {
			return nil, fmt.Errorf("refresh manager is closed")
		}
		if current.TryIncRef() {
			return current, nil
		}
		// The reader was swapped out and fully released between the read and
		// the incRef; retry against the new current.
	}
}

// Release drops the caller's reference on a searcher obtained from Acquire.
func (m *PrimaryRefreshManager) Release(r Reader) error {
	return r.DecRef()
}

// NextRefreshDurable returns a future completed when the next refresh's
// output is durable in the remote backend.
func (m *PrimaryRefreshManager) NextRefreshDurable() *RefreshUploadFuture {
	m.mu.Lock()
	defer m.mu.Unlock()
	future := NewRefreshUploadFuture()
	m.nextRefreshWatchers = append(m.nextRefreshWatchers, future)
	return future
}

// MaybeRefresh runs one refresh cycle, reporting whether a new searcher
// became current. Drive this periodically.
func (m *PrimaryRefreshManager) MaybeRefresh() (bool, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	newReader, err := m.refreshIfNeeded()
	if err != nil {
		return false, err
	}
	if newReader == nil {
		return false, nil
	}

	m.mu.Lock()
	old := m.current
	m.current = newReader
	m.mu.Unlock()

	if old != nil {
		if err := old.DecRef(); err != nil {
			m.logger.Warn("error releasing previous searcher", logging.Error(err))
		}
	}
	return true, nil
}

// refreshIfNeeded flushes and refreshes the index. When something new became
// visible it queues the durable upload for captured watchers, broadcasts the
// NRT point, and returns a reader on the new searcher; a no-op refresh still
// queues the upload so durability holds, and returns nil.
//
// Replicas are notified only after the flush completes locally. The upload
// for watchers is queued before the broadcast, so a watcher may be resolved
// by the upload queue before replicas have been notified.
func (m *PrimaryRefreshManager) refreshIfNeeded() (Reader, error) {
	// Claim the watchers waiting for a durable refresh. The swap guarantees a
	// watcher lands in exactly one cycle's batch.
	m.mu.Lock()
	watchers := m.nextRefreshWatchers
	m.nextRefreshWatchers = nil
	m.mu.Unlock()

	uploadQueued := false
	failWatchers := func(cause error) {
		// Once the upload task owns the watchers, completing them here would
		// double-resolve.
		if uploadQueued {
			return
		}
		for _, w := range watchers {
			w.SetDone(cause)
		}
	}

	refreshed, err := m.primary.FlushAndRefresh()
	if err != nil {
		failWatchers(err)
		return nil, err
	}

	if !refreshed {
		if len(watchers) > 0 {
			// Even if the flush was a noop we still need the data uploaded.
			if err := m.queueIndexUpload(watchers); err != nil {
				failWatchers(err)
				return nil, err
			}
			uploadQueued = true
		}
		return nil, nil
	}

	if len(watchers) > 0 {
		if err := m.queueIndexUpload(watchers); err != nil {
			failWatchers(err)
			return nil, err
		}
		uploadQueued = true
	}

	m.primary.SendNewNRTPointToReplicas()

	newReader, err := m.primary.writer.Acquire()
	if err != nil {
		failWatchers(err)
		return nil, err
	}
	return newReader, nil
}

func (m *PrimaryRefreshManager) queueIndexUpload(watchers []*RefreshUploadFuture) error {
	state, err := m.primary.CopyState()
	if err != nil {
		return err
	}
	return m.primary.uploads.EnqueueUpload(state, watchers)
}

// Close releases the manager's reference on the current searcher. Callers
// holding acquired readers keep their references.
func (m *PrimaryRefreshManager) Close() error {
	m.mu.Lock()
	current := m.current
	m.current = nil
	m.mu.Unlock()
	if current == nil {
		return nil
	}
	return current.DecRef()
}
