package transport

import (
	"encoding/json"
	"time"

	"github.com/fidato13/nrtsearch/pkg/nrt"
)

// MessageType represents the type of replication message
type MessageType uint8

const (
	// Control messages
	MsgNRTPoint MessageType = iota
	MsgCopyFiles
	MsgAck

	// Stream messages
	MsgTransferStatus
	MsgCopyDone

	// Error messages
	MsgError
)

// Message is the base replication message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      []byte      `json:"data,omitempty"`
}

// NewMessage creates a new message with the given type and data
func NewMessage(msgType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
		Data:      dataBytes,
	}, nil
}

// Decode decodes message data into the provided interface
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// NRTPointRequest notifies a replica of a new searcher version.
type NRTPointRequest struct {
	IndexName  string `json:"indexName"`
	IndexID    string `json:"indexId"`
	PrimaryGen int64  `json:"primaryGen"`
	Version    int64  `json:"version"`
}

// CopyFilesRequest starts a file transfer on a replica.
type CopyFilesRequest struct {
	IndexName      string            `json:"indexName"`
	IndexID        string            `json:"indexId"`
	PrimaryGen     int64             `json:"primaryGen"`
	Files          nrt.FilesMetadata `json:"files"`
	DeadlineUnixMs int64             `json:"deadlineUnixMs,omitempty"`
}

// TransferStatusMessage is one progress item in a transfer stream.
type TransferStatusMessage struct {
	Code    nrt.TransferCode `json:"code"`
	Message string           `json:"message,omitempty"`
}

// ErrorMessage carries a status failure back from a replica.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
