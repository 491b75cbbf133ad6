package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/fidato13/nrtsearch/pkg/nrt"
	"github.com/fidato13/nrtsearch/pkg/validation"
)

// ClientConfig configures a replica client.
type ClientConfig struct {
	Host string
	Port int

	// RequestTimeout bounds the wait for a unary reply. Zero leaves the NRT
	// point RPC unbounded.
	RequestTimeout time.Duration
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	v := validation.NewConfigValidator("ClientConfig")
	v.Required("Host", c.Host).
		RangeInt("Port", c.Port, 1, 65534)
	return v.Validate()
}

// Client is the outbound RPC capability for one replica. Unary RPCs share a
// REQ socket; each CopyFiles transfer runs on its own PAIR connection so
// status streams do not block control traffic.
type Client struct {
	config  ClientConfig
	factory SocketFactory

	mu      sync.Mutex // serializes the REQ conversation and guards closed
	reqSock DialSocket
	closed  bool
}

// NewClient dials the replica's control endpoint and returns a client.
func NewClient(factory SocketFactory, config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sock, err := factory.NewReqSocket()
	if err != nil {
		return nil, fmt.Errorf("create control socket: %w", err)
	}
	if err := sock.Dial(controlAddr(config.Host, config.Port)); err != nil {
		sock.Close()
		return nil, fmt.Errorf("dial replica %s:%d: %w", config.Host, config.Port, err)
	}

	return &Client{
		config:  config,
		factory: factory,
		reqSock: sock,
	}, nil
}

func controlAddr(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

func transferAddr(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port+1)
}

// Host returns the replica's replication host name.
func (c *Client) Host() string {
	return c.config.Host
}

// Port returns the replica's replication port.
func (c *Client) Port() int {
	return c.config.Port
}

// NewNRTPoint notifies the replica of a new searcher version.
func (c *Client) NewNRTPoint(indexName, indexID string, primaryGen, version int64) error {
	request, err := NewMessage(MsgNRTPoint, NRTPointRequest{
		IndexName:  indexName,
		IndexID:    indexID,
		PrimaryGen: primaryGen,
		Version:    version,
	})
	if err != nil {
		return nrt.Statusf(nrt.CodeInternal, "encode nrt point: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nrt.Statusf(nrt.CodeUnavailable, "client is closed")
	}

	reply, err := c.roundTrip(request)
	if err != nil {
		return err
	}

	switch reply.Type {
	case MsgAck:
		return nil
	case MsgError:
		return decodeStatusError(reply)
	default:
		return nrt.Statusf(nrt.CodeInternal, "unexpected reply type %d", reply.Type)
	}
}

func (c *Client) roundTrip(request *Message) (*Message, error) {
	data, err := encodeMessage(request)
	if err != nil {
		return nil, nrt.Statusf(nrt.CodeInternal, "encode message: %v", err)
	}
	if err := c.reqSock.Send(data); err != nil {
		return nil, mapSocketError(err)
	}
	if c.config.RequestTimeout > 0 {
		if err := c.reqSock.SetRecvDeadline(c.config.RequestTimeout); err != nil {
			return nil, mapSocketError(err)
		}
	}
	raw, err := c.reqSock.Recv()
	if err != nil {
		return nil, mapSocketError(err)
	}
	return decodeMessage(raw)
}

// CopyFiles starts a file transfer and returns the status stream for it. The
// transfer runs on a dedicated PAIR connection; a non-zero deadline is
// carried in the request and also enforced locally on every receive.
func (c *Client) CopyFiles(indexName, indexID string, primaryGen int64, files nrt.FilesMetadata, deadline time.Time) (nrt.StatusStream, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, nrt.Statusf(nrt.CodeUnavailable, "client is closed")
	}

	request := CopyFilesRequest{
		IndexName:  indexName,
		IndexID:    indexID,
		PrimaryGen: primaryGen,
		Files:      files,
	}
	if !deadline.IsZero() {
		request.DeadlineUnixMs = deadline.UnixMilli()
	}
	msg, err := NewMessage(MsgCopyFiles, request)
	if err != nil {
		return nil, nrt.Statusf(nrt.CodeInternal, "encode copy files: %v", err)
	}
	data, err := encodeMessage(msg)
	if err != nil {
		return nil, nrt.Statusf(nrt.CodeInternal, "encode message: %v", err)
	}

	sock, err := c.factory.NewPairSocket()
	if err != nil {
		return nil, nrt.Statusf(nrt.CodeUnavailable, "create transfer socket: %v", err)
	}
	if err := sock.Dial(transferAddr(c.config.Host, c.config.Port)); err != nil {
		sock.Close()
		return nil, nrt.Statusf(nrt.CodeUnavailable, "dial transfer endpoint: %v", err)
	}
	if err := sock.Send(data); err != nil {
		sock.Close()
		return nil, mapSocketError(err)
	}

	return &statusStream{sock: sock, deadline: deadline}, nil
}

// Close terminates the control socket. Transfer streams already returned by
// CopyFiles run on their own PAIR connections and are not closed by it; each
// ends on its terminal message, a receive error, or its deadline.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.reqSock.Close()
}

// statusStream reads transfer statuses from one PAIR connection until the
// replica sends the terminal message or the deadline expires.
type statusStream struct {
	sock     Socket
	deadline time.Time
	done     bool
}

func (s *statusStream) Recv() (nrt.TransferStatus, error) {
	if s.done {
		return nrt.TransferStatus{}, io.EOF
	}

	if !s.deadline.IsZero() {
		remaining := time.Until(s.deadline)
		if remaining <= 0 {
			s.finish()
			return nrt.TransferStatus{}, nrt.Statusf(nrt.CodeDeadlineExceeded, "transfer deadline expired")
		}
		if err := s.sock.SetRecvDeadline(remaining); err != nil {
			s.finish()
			return nrt.TransferStatus{}, mapSocketError(err)
		}
	}

	raw, err := s.sock.Recv()
	if err != nil {
		s.finish()
		return nrt.TransferStatus{}, mapSocketError(err)
	}
	msg, err := decodeMessage(raw)
	if err != nil {
		s.finish()
		return nrt.TransferStatus{}, err
	}

	switch msg.Type {
	case MsgTransferStatus:
		var status TransferStatusMessage
		if err := msg.Decode(&status); err != nil {
			s.finish()
			return nrt.TransferStatus{}, nrt.Statusf(nrt.CodeInternal, "decode transfer status: %v", err)
		}
		return nrt.TransferStatus{Code: status.Code, Message: status.Message}, nil
	case MsgCopyDone:
		s.finish()
		return nrt.TransferStatus{}, io.EOF
	case MsgError:
		s.finish()
		return nrt.TransferStatus{}, decodeStatusError(msg)
	default:
		s.finish()
		return nrt.TransferStatus{}, nrt.Statusf(nrt.CodeInternal, "unexpected stream message type %d", msg.Type)
	}
}

func (s *statusStream) finish() {
	s.done = true
	s.sock.Close()
}

func encodeMessage(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMessage(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nrt.Statusf(nrt.CodeInternal, "decode message: %v", err)
	}
	return &m, nil
}

func decodeStatusError(m *Message) error {
	var errMsg ErrorMessage
	if err := m.Decode(&errMsg); err != nil {
		return nrt.Statusf(nrt.CodeInternal, "decode error message: %v", err)
	}
	return &nrt.StatusError{Code: nrt.ParseCode(errMsg.Code), Message: errMsg.Message}
}

// mapSocketError translates socket-level failures into status errors.
func mapSocketError(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return nrt.Statusf(nrt.CodeDeadlineExceeded, "%v", err)
	case errors.Is(err, net.ErrClosed):
		return nrt.Statusf(nrt.CodeUnavailable, "%v", err)
	default:
		return nrt.Statusf(nrt.CodeUnavailable, "socket error: %v", err)
	}
}

var _ nrt.ReplicaClient = (*Client)(nil)
