package nrt

import (
	"sync"
)

// RefreshUploadFuture is a one-shot completion cell resolved when the refresh
// it watches has been durably uploaded, or failed before that. It is
// completed exactly once: either by the upload queue, or by the refresh
// driver on a failure before the upload was enqueued.
type RefreshUploadFuture struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewRefreshUploadFuture creates a pending future.
func NewRefreshUploadFuture() *RefreshUploadFuture {
	return &RefreshUploadFuture{done: make(chan struct{})}
}

// SetDone completes the future. A nil err means the upload succeeded.
// Calls after the first are ignored.
func (f *RefreshUploadFuture) SetDone(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future completes.
func (f *RefreshUploadFuture) Done() <-chan struct{} {
	return f.done
}

// Err returns the completion cause. Only valid after Done is closed.
func (f *RefreshUploadFuture) Err() error {
	return f.err
}

// Wait blocks until the future completes and returns its cause.
func (f *RefreshUploadFuture) Wait() error {
	<-f.done
	return f.err
}
