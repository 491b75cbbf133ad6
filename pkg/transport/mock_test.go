package transport

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"
)

// mockSocket is a scriptable in-memory socket. Replies queue up and are
// returned one per Recv.
type mockSocket struct {
	mu           sync.Mutex
	dialed       string
	dialErr      error
	sent         [][]byte
	replies      [][]byte
	recvErr      error
	recvDeadline time.Duration
	closed       bool
}

func (s *mockSocket) Dial(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialErr != nil {
		return s.dialErr
	}
	s.dialed = addr
	return nil
}

func (s *mockSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

func (s *mockSocket) Recv() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, net.ErrClosed
	}
	if s.recvErr != nil {
		return nil, s.recvErr
	}
	if len(s.replies) == 0 {
		return nil, net.ErrClosed
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *mockSocket) SetRecvDeadline(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recvDeadline = d
	return nil
}

func (s *mockSocket) SetSendDeadline(time.Duration) error { return nil }

func (s *mockSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSocket) queueReply(t *testing.T, msgType MessageType, payload any) {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("build reply: %v", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, data)
}

func (s *mockSocket) sentMessages(t *testing.T) []*Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, 0, len(s.sent))
	for _, raw := range s.sent {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("sent frame is not a message: %v", err)
		}
		out = append(out, &m)
	}
	return out
}

func (s *mockSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// mockSocketFactory hands out prebuilt sockets in order.
type mockSocketFactory struct {
	mu    sync.Mutex
	req   *mockSocket
	pairs []*mockSocket
}

func (f *mockSocketFactory) NewReqSocket() (DialSocket, error) {
	return f.req, nil
}

func (f *mockSocketFactory) NewPairSocket() (DialSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pairs) == 0 {
		return &mockSocket{}, nil
	}
	sock := f.pairs[0]
	f.pairs = f.pairs[1:]
	return sock, nil
}

var _ SocketFactory = (*mockSocketFactory)(nil)
