// Package index provides a minimal file-backed index writer implementing the
// coordinator's Writer contract. It is not a search index: it tracks
// versions, live files, and merge completions with just enough fidelity to
// drive the replication coordinator end to end. Production deployments plug
// in a real segment-based writer instead.
package index

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/fidato13/nrtsearch/pkg/nrt"
)

const metadataEdgeBytes = 16

// LocalWriter is a Writer over a local data directory.
type LocalWriter struct {
	dir        string
	indexID    string
	primaryGen int64

	mu          sync.Mutex
	version     int64
	gen         int64
	pending     bool
	files       nrt.FilesMetadata
	current     *reader
	docSeq      int
	segSeq      int
	ramBufferMB float64
	closed      bool

	preCopyHook func(segment string, files nrt.FilesMetadata)
}

// NewLocalWriter creates a writer rooted at dir with a fresh index id.
func NewLocalWriter(dir string, primaryGen int64) (*LocalWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return &LocalWriter{
		dir:         dir,
		indexID:     uuid.NewString(),
		primaryGen:  primaryGen,
		files:       make(nrt.FilesMetadata),
		current:     newReader(0),
		ramBufferMB: 16,
	}, nil
}

// IndexID returns the unique id assigned to this index instance.
func (w *LocalWriter) IndexID() string {
	return w.indexID
}

// SetPreCopyHook registers the hook invoked after each merge completion,
// before the merged files become part of a published point.
func (w *LocalWriter) SetPreCopyHook(hook func(segment string, files nrt.FilesMetadata)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.preCopyHook = hook
}

// AddDocument appends a document body to the pending set. The document
// becomes visible after the next FlushAndRefresh.
func (w *LocalWriter) AddDocument(body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	w.docSeq++
	name := fmt.Sprintf("_%d.doc", w.docSeq)
	md, err := w.writeFile(name, body)
	if err != nil {
		return err
	}
	w.files[name] = md
	w.pending = true
	return nil
}

// FlushAndRefresh makes pending documents visible under a new version.
// Returns true iff anything new became visible.
func (w *LocalWriter) FlushAndRefresh() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false, fmt.Errorf("writer is closed")
	}
	if !w.pending {
		return false, nil
	}

	w.version++
	w.gen++
	w.pending = false

	old := w.current
	w.current = newReader(w.version)
	if err := old.DecRef(); err != nil {
		return false, err
	}
	return true, nil
}

// CompleteMerge folds the named source files into one merged file and invokes
// the pre-copy hook with the merged file's metadata, the way a segment
// writer warms merged segments before publishing them.
func (w *LocalWriter) CompleteMerge(sources []string) (string, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return "", fmt.Errorf("writer is closed")
	}

	w.segSeq++
	segment := fmt.Sprintf("_m%d", w.segSeq)
	name := segment + ".cfs"

	var merged []byte
	for _, src := range sources {
		data, err := os.ReadFile(filepath.Join(w.dir, src))
		if err != nil {
			w.mu.Unlock()
			return "", fmt.Errorf("read merge source %s: %w", src, err)
		}
		merged = append(merged, data...)
	}
	md, err := w.writeFile(name, merged)
	if err != nil {
		w.mu.Unlock()
		return "", err
	}
	for _, src := range sources {
		delete(w.files, src)
	}
	w.files[name] = md
	w.pending = true
	hook := w.preCopyHook
	w.mu.Unlock()

	// The hook blocks until replicas finish warming; never call it under the
	// writer lock.
	if hook != nil {
		hook(segment, nrt.FilesMetadata{name: md})
	}
	return name, nil
}

// CopyState returns the current version and generation together with the
// writer's live file set. The file set already includes files added or merged
// since the last FlushAndRefresh.
func (w *LocalWriter) CopyState() (*nrt.CopyState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, fmt.Errorf("writer is closed")
	}

	files := make(nrt.FilesMetadata, len(w.files))
	for name, md := range w.files {
		files[name] = md
	}
	return &nrt.CopyState{
		Version:    w.version,
		Gen:        w.gen,
		PrimaryGen: w.primaryGen,
		Files:      files,
	}, nil
}

// CopyStateVersion returns the current snapshot version.
func (w *LocalWriter) CopyStateVersion() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// Acquire returns the current reader with a reference owned by the caller.
func (w *LocalWriter) Acquire() (nrt.Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, fmt.Errorf("writer is closed")
	}
	w.current.IncRef()
	return w.current, nil
}

// SetRAMBufferSizeMB adjusts the indexing buffer size.
func (w *LocalWriter) SetRAMBufferSizeMB(mb float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ramBufferMB = mb
}

// RAMBufferSizeMB returns the configured indexing buffer size.
func (w *LocalWriter) RAMBufferSizeMB() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ramBufferMB
}

// Close releases the writer's reference on the current reader.
func (w *LocalWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.current.DecRef()
}

// writeFile persists one file and returns its descriptor. Caller holds the
// lock.
func (w *LocalWriter) writeFile(name string, data []byte) (nrt.FileMetadata, error) {
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nrt.FileMetadata{}, fmt.Errorf("write index file %s: %w", name, err)
	}

	edge := min(metadataEdgeBytes, len(data))
	md := nrt.FileMetadata{
		Header:   append([]byte(nil), data[:edge]...),
		Footer:   append([]byte(nil), data[len(data)-edge:]...),
		Length:   int64(len(data)),
		Checksum: int64(crc32.ChecksumIEEE(data)),
	}
	return md, nil
}

var _ nrt.Writer = (*LocalWriter)(nil)
