package nrt

import (
	"sync"
	"time"
)

// MergePreCopy holds all replicas currently warming (pre-copying the new
// files of) a single merged segment.
//
// The connection set only shrinks, except through TryAddConnection, which may
// enlarge it while the pre-copy is unfinished and its deadline has not
// expired. Once Finished reports true it stays true and no further replicas
// are admitted.
type MergePreCopy struct {
	mu          sync.Mutex
	files       FilesMetadata
	streams     map[ReplicaClient]StatusStream
	connections map[ReplicaClient]struct{}
	deadline    time.Time // zero means no deadline
	finished    bool
}

func newMergePreCopy(files FilesMetadata, streams map[ReplicaClient]StatusStream, deadline time.Time) *MergePreCopy {
	p := &MergePreCopy{
		files:       files,
		streams:     make(map[ReplicaClient]StatusStream, len(streams)),
		connections: make(map[ReplicaClient]struct{}, len(streams)),
		deadline:    deadline,
	}
	for c, s := range streams {
		p.streams[c] = s
		p.connections[c] = struct{}{}
	}
	return p
}

// TryAddConnection admits a late-joining replica into this pre-copy. It is a
// single atomic decision: the transfer is started and recorded only if the
// pre-copy is not finished and the deadline has not expired.
func (p *MergePreCopy) TryAddConnection(c ReplicaClient, indexName, indexID string, primaryGen int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return false
	}
	if !p.deadline.IsZero() && time.Now().After(p.deadline) {
		return false
	}

	stream, err := c.CopyFiles(indexName, indexID, primaryGen, p.files, p.deadline)
	if err != nil {
		return false
	}
	p.streams[c] = stream
	p.connections[c] = struct{}{}
	return true
}

// Finished reports whether all transfers have drained. The first call that
// observes an empty connection set latches the terminal state.
func (p *MergePreCopy) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.connections) == 0 {
		p.finished = true
	}
	return p.finished
}

// Contains reports whether the client is already part of this pre-copy.
func (p *MergePreCopy) Contains(c ReplicaClient) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.connections[c]
	return ok
}

// Files returns the file map being pre-copied. Immutable after construction.
func (p *MergePreCopy) Files() FilesMetadata {
	return p.files
}

// connectionCount returns the number of replicas still transferring.
func (p *MergePreCopy) connectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connections)
}

// snapshotConnections returns the current connection set for one drain pass.
func (p *MergePreCopy) snapshotConnections() []ReplicaClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ReplicaClient, 0, len(p.connections))
	for c := range p.connections {
		out = append(out, c)
	}
	return out
}

// streamFor returns the status stream recorded for the client.
func (p *MergePreCopy) streamFor(c ReplicaClient) StatusStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[c]
}

// removeConnections drops clients whose streams have been drained. This is
// what drives the pre-copy toward Finished.
func (p *MergePreCopy) removeConnections(clients []ReplicaClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range clients {
		delete(p.connections, c)
	}
}
