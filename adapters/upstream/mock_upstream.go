package upstream

import (
	"context"
	"sync"

	"github.com/suarakita/server/domain/repositories"
)

// MockDialer hands out scripted in-memory sessions for tests. Each Dial
// returns the next preconstructed session, or a fresh one when the script
// runs out.
type MockDialer struct {
	mu       sync.Mutex
	sessions []*MockSession
	dialed   []*MockSession
	// DialErr, when set, makes Dial fail.
	DialErr error
}

// NewMockDialer creates a dialer with the given scripted sessions.
func NewMockDialer(sessions ...*MockSession) *MockDialer {
	return &MockDialer{sessions: sessions}
}

// Dial implements repositories.UpstreamDialer.
func (d *MockDialer) Dial(_ context.Context) (repositories.UpstreamSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	var s *MockSession
	if len(d.sessions) > 0 {
		s = d.sessions[0]
		d.sessions = d.sessions[1:]
	} else {
		s = NewMockSession()
	}
	d.dialed = append(d.dialed, s)
	return s, nil
}

// Dialed returns the sessions handed out so far.
func (d *MockDialer) Dialed() []*MockSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockSession(nil), d.dialed...)
}

// MockSession records frames sent to it and lets tests emit provider
// frames.
type MockSession struct {
	mu     sync.Mutex
	sent   [][]byte
	events chan repositories.UpstreamEvent
	closed chan struct{}
	once   sync.Once

	// SendErr, when set, makes Send fail.
	SendErr error
}

// NewMockSession creates an open mock session.
func NewMockSession() *MockSession {
	return &MockSession{
		events: make(chan repositories.UpstreamEvent, 100),
		closed: make(chan struct{}),
	}
}

// Send implements repositories.UpstreamSession.
func (s *MockSession) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

// Events implements repositories.UpstreamSession.
func (s *MockSession) Events() <-chan repositories.UpstreamEvent {
	return s.events
}

// Close implements repositories.UpstreamSession.
func (s *MockSession) Close() error {
	s.once.Do(func() {
		close(s.closed)
		close(s.events)
	})
	return nil
}

// Emit delivers a provider frame to the session's consumer.
func (s *MockSession) Emit(data []byte) {
	select {
	case <-s.closed:
	case s.events <- repositories.UpstreamEvent{Data: data}:
	}
}

// EmitErr delivers a stream-ending error.
func (s *MockSession) EmitErr(err error) {
	select {
	case <-s.closed:
	case s.events <- repositories.UpstreamEvent{Err: err}:
	}
}

// Sent returns copies of every frame sent so far.
func (s *MockSession) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	for i, f := range s.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// IsClosed reports whether Close was called.
func (s *MockSession) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

var _ repositories.UpstreamDialer = (*MockDialer)(nil)
var _ repositories.UpstreamSession = (*MockSession)(nil)
