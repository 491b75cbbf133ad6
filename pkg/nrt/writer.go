package nrt

// Reader is a ref-counted, read-only view of the index at a specific version.
// Ref counting is an application-level reader-lifetime protocol: a reader is
// reclaimed when its count reaches zero.
type Reader interface {
	// IncRef adds a reference. Panics if the reader is already closed.
	IncRef()

	// TryIncRef attempts to add a reference, returning false if the reader
	// has already been closed.
	TryIncRef() bool

	// DecRef drops a reference, closing the reader when the count hits zero.
	DecRef() error

	// RefCount returns the current reference count.
	RefCount() int

	// Version returns the searcher version this reader exposes.
	Version() int64
}

// Writer is the coordinator's handle on the underlying index writer. The real
// writer lives outside this package; the coordinator only drives refreshes,
// reads copy states, and forwards configuration.
type Writer interface {
	// FlushAndRefresh flushes pending indexing ops and opens a new searcher.
	// Returns true iff something new became visible.
	FlushAndRefresh() (bool, error)

	// CopyState returns the version, generation, and live-file descriptors of
	// the current searcher snapshot. Immutable once returned.
	CopyState() (*CopyState, error)

	// CopyStateVersion returns the current snapshot version without building
	// the file map.
	CopyStateVersion() int64

	// Acquire returns the current searcher with a reference owned by the
	// caller.
	Acquire() (Reader, error)

	// SetRAMBufferSizeMB adjusts the writer's indexing buffer.
	SetRAMBufferSizeMB(mb float64)

	// Close releases the writer.
	Close() error
}
