// Package nrt implements the primary-node replication coordinator of a
// near-real-time search index: it drives searcher refreshes, broadcasts NRT
// points to registered replicas, pre-copies newly merged segment files so
// points stay cheap to publish, and queues refresh outputs for durable
// upload.
package nrt

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fidato13/nrtsearch/pkg/logging"
	"github.com/fidato13/nrtsearch/pkg/metrics"
)

const (
	// preCopyDrainTick is the cooperative backoff between drain iterations.
	preCopyDrainTick = 10 * time.Millisecond

	// preCopyWarnEvery is how often the drain loop logs a still-warming line.
	preCopyWarnEvery = time.Second
)

// PrimaryNodeConfig configures a PrimaryNode.
type PrimaryNodeConfig struct {
	IndexName  string
	IndexID    string
	ID         int
	PrimaryGen int64
	HostPort   HostPort

	Writer   Writer
	Settings SettingsSource
	Uploads  UploadQueue

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Validate checks the config for required collaborators.
func (c *PrimaryNodeConfig) Validate() error {
	if c.Writer == nil {
		return fmt.Errorf("PrimaryNodeConfig: Writer is required")
	}
	if c.Uploads == nil {
		return fmt.Errorf("PrimaryNodeConfig: Uploads is required")
	}
	if c.IndexName == "" {
		return fmt.Errorf("PrimaryNodeConfig: IndexName is required")
	}
	return nil
}

// PrimaryNode coordinates replication for one index on the primary. It owns
// the writer handle, the replica registry, and the set of in-flight merge
// pre-copies.
type PrimaryNode struct {
	indexName  string
	indexID    string
	id         int
	primaryGen int64
	hostPort   HostPort

	writer   Writer
	settings SettingsSource
	uploads  UploadQueue

	replicas *replicaRegistry

	// warmingMu guards warmingSegments and the composite create-and-publish /
	// admit-to-all operations. It is never held across a drain loop.
	warmingMu       sync.Mutex
	warmingSegments []*MergePreCopy

	closed atomic.Bool

	logger  logging.Logger
	metrics *metrics.Registry
}

// NewPrimaryNode creates a primary coordinator from the given config.
func NewPrimaryNode(cfg PrimaryNodeConfig) (*PrimaryNode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = NewSettingsHolder(DefaultIndexSettings())
	}

	return &PrimaryNode{
		indexName:  cfg.IndexName,
		indexID:    cfg.IndexID,
		id:         cfg.ID,
		primaryGen: cfg.PrimaryGen,
		hostPort:   cfg.HostPort,
		writer:     cfg.Writer,
		settings:   settings,
		uploads:    cfg.Uploads,
		replicas:   newReplicaRegistry(),
		logger: logger.With(
			logging.Component("nrt_primary"),
			logging.IndexName(cfg.IndexName),
		),
		metrics: reg,
	}, nil
}

// IndexName returns the index this primary coordinates.
func (p *PrimaryNode) IndexName() string {
	return p.indexName
}

// PrimaryGen returns this primary's generation number.
func (p *PrimaryNode) PrimaryGen() int64 {
	return p.primaryGen
}

// IsClosed reports whether Close has been called.
func (p *PrimaryNode) IsClosed() bool {
	return p.closed.Load()
}

// FlushAndRefresh flushes pending ops and refreshes the searcher, reporting
// whether anything new became visible.
func (p *PrimaryNode) FlushAndRefresh() (bool, error) {
	return p.writer.FlushAndRefresh()
}

// CopyState returns the current searcher snapshot's copy state.
func (p *PrimaryNode) CopyState() (*CopyState, error) {
	return p.writer.CopyState()
}

// SetRAMBufferSizeMB forwards the indexing buffer size to the writer.
func (p *PrimaryNode) SetRAMBufferSizeMB(mb float64) {
	p.writer.SetRAMBufferSizeMB(mb)
}

// GetNodesInfo returns a view of the currently registered replicas.
func (p *PrimaryNode) GetNodesInfo() []ReplicaDetails {
	return p.replicas.snapshot()
}

// AddReplica registers a replica and opportunistically admits it into every
// in-flight merge pre-copy. Idempotent by (replicaID, hostPort).
func (p *PrimaryNode) AddReplica(replicaID int, client ReplicaClient) error {
	if p.IsClosed() {
		return fmt.Errorf("primary for index %s is closed", p.indexName)
	}

	details := ReplicaDetails{
		ReplicaID: replicaID,
		HostPort:  HostPort{HostName: client.Host(), Port: client.Port()},
		Client:    client,
	}
	p.replicas.add(details)
	p.metrics.SetConnectedReplicas(p.indexName, p.replicas.len())

	p.warmingMu.Lock()
	defer p.warmingMu.Unlock()

	p.logger.Info("add replica",
		logging.ReplicaID(replicaID),
		logging.Host(details.HostPort.HostName),
		logging.Port(details.HostPort.Port),
		logging.Int("warming_merges", len(p.warmingSegments)))

	for _, preCopy := range p.warmingSegments {
		if preCopy.Contains(client) {
			// Possible if the replica joined, a merge kicked off and warmed to
			// it, all before the replica sent us this command.
			p.logger.Info("replica is already warming this segment",
				logging.ReplicaID(replicaID),
				logging.Any("files", preCopy.Files().Names()))
			continue
		}

		if preCopy.TryAddConnection(client, p.indexName, p.indexID, p.primaryGen) {
			p.logger.Info("start precopying merged segment for new replica",
				logging.ReplicaID(replicaID),
				logging.Host(details.HostPort.HostName),
				logging.Port(details.HostPort.Port))
		} else {
			// All other replicas just finished warming this segment, so we
			// were a bit too late. The files arrive with the next NRT point.
			p.logger.Info("merge precopy already completed, replica will copy via next nrt point",
				logging.ReplicaID(replicaID),
				logging.Host(details.HostPort.HostName),
				logging.Port(details.HostPort.Port))
		}
	}
	return nil
}

// SendNewNRTPointToReplicas broadcasts the current searcher version to every
// registered replica. Replicas failing with UNAVAILABLE or
// FAILED_PRECONDITION are closed and dropped; other failures leave the
// replica registered for the next cycle.
func (p *PrimaryNode) SendNewNRTPointToReplicas() {
	version := p.writer.CopyStateVersion()
	p.logger.Info("send flushed version",
		logging.Version(version),
		logging.Count(p.replicas.len()))
	p.metrics.RecordNRTPoint(p.indexName, version)

	for _, details := range p.replicas.snapshot() {
		err := details.Client.NewNRTPoint(p.indexName, p.indexID, p.primaryGen, version)
		if err == nil {
			continue
		}

		if IsFatalReplicaStatus(err) {
			code := CodeOf(err)
			p.logger.Warn("lost connection to replica, closing",
				logging.ReplicaID(details.ReplicaID),
				logging.Host(details.HostPort.HostName),
				logging.Port(details.HostPort.Port),
				logging.String("code", code.String()))
			if cerr := details.Client.Close(); cerr != nil {
				p.logger.Warn("error closing lost replica client",
					logging.ReplicaID(details.ReplicaID), logging.Error(cerr))
			}
			p.replicas.remove(details)
			p.metrics.RecordReplicaEvicted(p.indexName, code.String())
			continue
		}

		p.logger.Warn("failed to send nrt point, will retry next cycle",
			logging.ReplicaID(details.ReplicaID),
			logging.Error(err))
	}
	p.metrics.SetConnectedReplicas(p.indexName, p.replicas.len())
}

// PreCopyMergedSegmentFiles pushes a newly merged segment's files to every
// registered replica before the NRT point referencing them is published.
// Invoked by the writer on its merge thread; blocks until all replicas finish
// or the configured deadline expires.
func (p *PrimaryNode) PreCopyMergedSegmentFiles(segment string, files FilesMetadata) {
	mergeStart := time.Now()
	if p.replicas.len() == 0 {
		p.logger.Info("no replicas, skip warming", logging.Segment(segment))
		return
	}

	p.metrics.RecordMergeCopyStart(p.indexName)

	var deadline time.Time
	if secs := p.settings.Current().MaxMergePreCopyDurationSec; secs > 0 {
		deadline = time.Now().Add(time.Duration(secs) * time.Second)
	}

	var preCopy *MergePreCopy
	func() {
		p.warmingMu.Lock()
		defer p.warmingMu.Unlock()

		p.logger.Info("start merge precopy",
			logging.Segment(segment),
			logging.Count(p.replicas.len()),
			logging.String("local", p.hostPort.String()),
			logging.Any("files", files.Names()))

		streams := p.startCopyFilesFanout(segment, files, deadline)
		preCopy = newMergePreCopy(files, streams, deadline)
		p.warmingSegments = append(p.warmingSegments, preCopy)
	}()

	defer func() {
		p.removeWarmingSegment(preCopy)
		p.metrics.RecordMergeCopyDone(p.indexName, time.Since(mergeStart))
	}()

	start := time.Now()
	lastWarn := start

	for !preCopy.Finished() {
		time.Sleep(preCopyDrainTick)

		if p.IsClosed() {
			// Connections are cleaned up by the close path.
			p.logger.Info("primary is closing: cancel merge precopy", logging.Segment(segment))
			return
		}

		if now := time.Now(); now.Sub(lastWarn) > preCopyWarnEvery {
			p.logger.Warn("still warming merge",
				logging.Segment(segment),
				logging.Count(preCopy.connectionCount()),
				logging.Duration("elapsed", now.Sub(start)))
			lastWarn = now
		}

		// A replica can suddenly start up and join this merge pre-copy, so
		// work from a snapshot of the current connections.
		current := preCopy.snapshotConnections()
		for _, client := range current {
			p.drainTransferStatus(preCopy, client, segment, files)
		}
		preCopy.removeConnections(current)
	}

	p.logger.Info("done merge precopy", logging.Segment(segment))
}

// startCopyFilesFanout asks every registered replica to start copying the
// merged files. A replica whose CopyFiles call fails is skipped; it receives
// the files through the next NRT point instead.
func (p *PrimaryNode) startCopyFilesFanout(segment string, files FilesMetadata, deadline time.Time) map[ReplicaClient]StatusStream {
	streams := make(map[ReplicaClient]StatusStream)
	for _, details := range p.replicas.snapshot() {
		stream, err := details.Client.CopyFiles(p.indexName, p.indexID, p.primaryGen, files, deadline)
		if err != nil {
			p.logger.Warn("ignore merge precopy failure for replica",
				logging.Segment(segment),
				logging.ReplicaID(details.ReplicaID),
				logging.Host(details.HostPort.HostName),
				logging.Port(details.HostPort.Port),
				logging.Error(err))
			continue
		}
		streams[details.Client] = stream
		p.logger.Info("start precopying merged segment for replica",
			logging.ReplicaID(details.ReplicaID),
			logging.Host(details.HostPort.HostName),
			logging.Port(details.HostPort.Port))
	}
	return streams
}

// drainTransferStatus consumes one replica's status stream to completion. A
// misbehaving replica only loses its own transfer; the error is logged and
// the client is removed from the active set by the caller.
func (p *PrimaryNode) drainTransferStatus(preCopy *MergePreCopy, client ReplicaClient, segment string, files FilesMetadata) {
	stream := preCopy.streamFor(client)
	if stream == nil {
		return
	}
	for {
		status, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			p.logger.Warn("ignore error reading transfer status during merge precopy",
				logging.Segment(segment),
				logging.Host(client.Host()),
				logging.Port(client.Port()),
				logging.Any("files", files.Names()),
				logging.Error(err))
			return
		}
		p.logger.Debug("transfer status",
			logging.Segment(segment),
			logging.Host(client.Host()),
			logging.Port(client.Port()),
			logging.String("code", status.Code.String()),
			logging.String("message", status.Message))
	}
}

// removeWarmingSegment drops a finished or abandoned pre-copy from the
// warming set.
func (p *PrimaryNode) removeWarmingSegment(preCopy *MergePreCopy) {
	p.warmingMu.Lock()
	defer p.warmingMu.Unlock()
	for i, w := range p.warmingSegments {
		if w == preCopy {
			p.warmingSegments = append(p.warmingSegments[:i], p.warmingSegments[i+1:]...)
			return
		}
	}
}

// Close removes and closes every replica, stops the upload queue, and closes
// the writer. Per-replica close errors are logged and swallowed so one bad
// replica cannot block shutdown.
func (p *PrimaryNode) Close() error {
	p.logger.Info("close nrt primary")
	p.closed.Store(true)

	for _, details := range p.replicas.drain() {
		p.logger.Info("closing replica channel",
			logging.ReplicaID(details.ReplicaID),
			logging.Host(details.HostPort.HostName),
			logging.Port(details.HostPort.Port))
		if err := details.Client.Close(); err != nil {
			p.logger.Warn("error closing replica client",
				logging.ReplicaID(details.ReplicaID), logging.Error(err))
		}
	}
	p.metrics.SetConnectedReplicas(p.indexName, 0)

	var firstErr error
	if err := p.uploads.Close(); err != nil {
		firstErr = err
	}
	if err := p.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
