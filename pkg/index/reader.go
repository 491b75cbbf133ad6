package index

import (
	"fmt"
	"sync"
)

// reader is a ref-counted point-in-time view handed out by the writer. It
// follows the standard reader-lifetime protocol: the view is reclaimed when
// the count reaches zero and can never be revived.
type reader struct {
	version int64

	mu       sync.Mutex
	refCount int
}

func newReader(version int64) *reader {
	return &reader{version: version, refCount: 1}
}

func (r *reader) IncRef() {
	if !r.TryIncRef() {
		panic(fmt.Sprintf("IncRef on closed reader (version=%d)", r.version))
	}
}

func (r *reader) TryIncRef() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount == 0 {
		return false
	}
	r.refCount++
	return true
}

func (r *reader) DecRef() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount == 0 {
		return fmt.Errorf("DecRef on closed reader (version=%d)", r.version)
	}
	r.refCount--
	return nil
}

func (r *reader) RefCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refCount
}

func (r *reader) Version() int64 {
	return r.version
}
