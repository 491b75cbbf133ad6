package nrt

import (
	"fmt"
)

// HostPort identifies a replica's replication endpoint.
type HostPort struct {
	HostName string
	Port     int
}

func (hp HostPort) String() string {
	return fmt.Sprintf("%s:%d", hp.HostName, hp.Port)
}

// FileMetadata describes one index file needed to materialize a point-in-time
// searcher on a replica. Produced by the writer; opaque to the coordinator.
type FileMetadata struct {
	Header   []byte `json:"header"`
	Footer   []byte `json:"footer"`
	Length   int64  `json:"length"`
	Checksum int64  `json:"checksum"`
}

// FilesMetadata maps file name to its descriptor.
type FilesMetadata map[string]FileMetadata

// Names returns the sorted-free list of file names in the map.
func (fm FilesMetadata) Names() []string {
	names := make([]string, 0, len(fm))
	for name := range fm {
		names = append(names, name)
	}
	return names
}

// CopyState is the bundle a replica needs to converge to a searcher snapshot:
// a version, the primary generation that produced it, and the live file set.
// Immutable once returned by the writer.
type CopyState struct {
	Version             int64         `json:"version"`
	Gen                 int64         `json:"gen"`
	PrimaryGen          int64         `json:"primaryGen"`
	Files               FilesMetadata `json:"files"`
	InfosBytes          []byte        `json:"infosBytes,omitempty"`
	CompletedMergeFiles []string      `json:"completedMergeFiles,omitempty"`
}

// TransferCode classifies a single TransferStatus item.
type TransferCode uint8

const (
	TransferUnknown TransferCode = iota
	TransferOngoing
	TransferDone
	TransferFailed
)

func (c TransferCode) String() string {
	switch c {
	case TransferOngoing:
		return "ONGOING"
	case TransferDone:
		return "DONE"
	case TransferFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// TransferStatus is one progress item from a replica's copyFiles stream.
// The coordinator drains and logs these; it does not interpret codes for
// control flow.
type TransferStatus struct {
	Code    TransferCode `json:"code"`
	Message string       `json:"message,omitempty"`
}
