package nrt

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fidato13/nrtsearch/pkg/logging"
	"github.com/fidato13/nrtsearch/pkg/metrics"
)

// mockStream plays back a scripted sequence of transfer statuses, optionally
// pausing between items. With waitDeadline set it never produces items and
// instead fails with DEADLINE_EXCEEDED once the deadline passes, like a
// deadline-bounded RPC stream.
type mockStream struct {
	mu           sync.Mutex
	statuses     []TransferStatus
	gap          time.Duration
	finalErr     error // returned after the statuses instead of io.EOF
	waitDeadline time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *mockStream) Recv() (TransferStatus, error) {
	s.mu.Lock()
	if len(s.statuses) > 0 {
		status := s.statuses[0]
		s.statuses = s.statuses[1:]
		gap := s.gap
		s.mu.Unlock()
		if gap > 0 {
			select {
			case <-time.After(gap):
			case <-s.closed:
				return TransferStatus{}, Statusf(CodeUnavailable, "stream closed")
			}
		}
		return status, nil
	}
	finalErr := s.finalErr
	waitDeadline := s.waitDeadline
	s.mu.Unlock()

	if !waitDeadline.IsZero() {
		select {
		case <-time.After(time.Until(waitDeadline)):
			return TransferStatus{}, Statusf(CodeDeadlineExceeded, "transfer deadline expired")
		case <-s.closed:
			return TransferStatus{}, Statusf(CodeUnavailable, "stream closed")
		}
	}
	if finalErr != nil {
		return TransferStatus{}, finalErr
	}
	select {
	case <-s.closed:
		return TransferStatus{}, Statusf(CodeUnavailable, "stream closed")
	default:
	}
	return TransferStatus{}, io.EOF
}

func (s *mockStream) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// doneStream returns a stream that ends immediately.
func doneStream() *mockStream {
	return &mockStream{closed: make(chan struct{})}
}

// slowStream returns a stream emitting n ONGOING statuses with the given gap.
func slowStream(n int, gap time.Duration) *mockStream {
	statuses := make([]TransferStatus, n)
	for i := range statuses {
		statuses[i] = TransferStatus{Code: TransferOngoing, Message: fmt.Sprintf("chunk %d", i)}
	}
	return &mockStream{statuses: statuses, gap: gap, closed: make(chan struct{})}
}

// stuckStream returns a stream that produces nothing until its deadline
// expires.
func stuckStream(deadline time.Time) *mockStream {
	return &mockStream{waitDeadline: deadline, closed: make(chan struct{})}
}

type copyCall struct {
	files    FilesMetadata
	deadline time.Time
}

// mockReplicaClient is a scriptable in-memory ReplicaClient.
type mockReplicaClient struct {
	host string
	port int

	mu          sync.Mutex
	nrtPoints   []int64
	nrtErr      error // returned by every NewNRTPoint until cleared
	copyCalls   []copyCall
	copyErr     error
	streams     func(deadline time.Time) StatusStream
	openStreams []*mockStream
	closeCount  int
}

func newMockReplicaClient(host string, port int) *mockReplicaClient {
	return &mockReplicaClient{
		host:    host,
		port:    port,
		streams: func(time.Time) StatusStream { return doneStream() },
	}
}

func (c *mockReplicaClient) NewNRTPoint(indexName, indexID string, primaryGen, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nrtErr != nil {
		return c.nrtErr
	}
	c.nrtPoints = append(c.nrtPoints, version)
	return nil
}

func (c *mockReplicaClient) CopyFiles(indexName, indexID string, primaryGen int64, files FilesMetadata, deadline time.Time) (StatusStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.copyErr != nil {
		return nil, c.copyErr
	}
	c.copyCalls = append(c.copyCalls, copyCall{files: files, deadline: deadline})
	stream := c.streams(deadline)
	if ms, ok := stream.(*mockStream); ok {
		c.openStreams = append(c.openStreams, ms)
	}
	return stream, nil
}

func (c *mockReplicaClient) Host() string { return c.host }
func (c *mockReplicaClient) Port() int    { return c.port }

func (c *mockReplicaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	// Closing the channel tears down in-flight transfer streams
	for _, s := range c.openStreams {
		s.close()
	}
	return nil
}

func (c *mockReplicaClient) observedPoints() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.nrtPoints))
	copy(out, c.nrtPoints)
	return out
}

func (c *mockReplicaClient) copyCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.copyCalls)
}

func (c *mockReplicaClient) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

var _ ReplicaClient = (*mockReplicaClient)(nil)

type enqueued struct {
	state    *CopyState
	watchers []*RefreshUploadFuture
}

// mockUploadQueue records enqueues and, unless manual, completes every
// watcher immediately with completeErr.
type mockUploadQueue struct {
	mu          sync.Mutex
	enqueues    []enqueued
	enqueueErr  error
	completeErr error
	manual      bool
	closed      bool
}

func (q *mockUploadQueue) EnqueueUpload(state *CopyState, watchers []*RefreshUploadFuture) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("upload queue is closed")
	}
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueues = append(q.enqueues, enqueued{state: state, watchers: watchers})
	if !q.manual {
		for _, w := range watchers {
			w.SetDone(q.completeErr)
		}
	}
	return nil
}

func (q *mockUploadQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *mockUploadQueue) enqueueCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueues)
}

var _ UploadQueue = (*mockUploadQueue)(nil)

// fakeReader is a ref-counted reader for tests.
type fakeReader struct {
	version int64

	mu       sync.Mutex
	refCount int
}

func newFakeReader(version int64) *fakeReader {
	return &fakeReader{version: version, refCount: 1}
}

func (r *fakeReader) IncRef() {
	if !r.TryIncRef() {
		panic("IncRef on closed reader")
	}
}

func (r *fakeReader) TryIncRef() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount == 0 {
		return false
	}
	r.refCount++
	return true
}

func (r *fakeReader) DecRef() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount == 0 {
		return fmt.Errorf("DecRef on closed reader")
	}
	r.refCount--
	return nil
}

func (r *fakeReader) RefCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refCount
}

func (r *fakeReader) Version() int64 { return r.version }

var _ Reader = (*fakeReader)(nil)

// fakeWriter is a scriptable Writer for coordinator tests.
type fakeWriter struct {
	mu           sync.Mutex
	version      int64
	pending      bool
	refreshErr   error
	copyStateErr error
	files        FilesMetadata
	current      *fakeReader
	ramMB        float64
	closed       bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		files:   FilesMetadata{},
		current: newFakeReader(0),
	}
}

// indexChange marks pending changes so the next FlushAndRefresh advances the
// version.
func (w *fakeWriter) indexChange() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = true
}

// setVersion pins the version published by the next refresh.
func (w *fakeWriter) setVersion(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.version = v - 1
	w.pending = true
}

func (w *fakeWriter) FlushAndRefresh() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.refreshErr != nil {
		return false, w.refreshErr
	}
	if !w.pending {
		return false, nil
	}
	w.version++
	w.pending = false
	old := w.current
	w.current = newFakeReader(w.version)
	old.DecRef()
	return true, nil
}

func (w *fakeWriter) CopyState() (*CopyState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.copyStateErr != nil {
		return nil, w.copyStateErr
	}
	files := make(FilesMetadata, len(w.files))
	for name, md := range w.files {
		files[name] = md
	}
	return &CopyState{Version: w.version, Gen: w.version, PrimaryGen: 1, Files: files}, nil
}

func (w *fakeWriter) CopyStateVersion() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

func (w *fakeWriter) Acquire() (Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, fmt.Errorf("writer is closed")
	}
	w.current.IncRef()
	return w.current, nil
}

func (w *fakeWriter) SetRAMBufferSizeMB(mb float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ramMB = mb
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.current.DecRef()
}

var _ Writer = (*fakeWriter)(nil)

// newTestPrimary wires a primary with a fake writer, mock upload queue, and
// quiet logging.
func newTestPrimary(settings IndexSettings) (*PrimaryNode, *fakeWriter, *mockUploadQueue) {
	writer := newFakeWriter()
	uploads := &mockUploadQueue{}
	primary, err := NewPrimaryNode(PrimaryNodeConfig{
		IndexName:  "test_index",
		IndexID:    "test-index-id",
		PrimaryGen: 1,
		HostPort:   HostPort{HostName: "primary", Port: 6000},
		Writer:     writer,
		Settings:   NewSettingsHolder(settings),
		Uploads:    uploads,
		Logger:     logging.NewNopLogger(),
		Metrics:    metrics.NewRegistry(),
	})
	if err != nil {
		panic(err)
	}
	return primary, writer, uploads
}
