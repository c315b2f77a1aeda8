package voice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/suarakita/server/domain/entities"
	"github.com/suarakita/server/domain/repositories"
	"github.com/suarakita/server/pkg/pcm"
	"github.com/suarakita/server/pkg/realtime"
)

// State is the connection manager's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingSession
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingSession:
		return "awaiting_session"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultConnectTimeout is the budget for reaching Ready from a connect
// request.
const DefaultConnectTimeout = 15 * time.Second

// ErrConnectTimeout is returned when no session-ready message arrives within
// the connect budget.
var ErrConnectTimeout = errors.New("voice: timed out waiting for session")

const writeTimeout = 10 * time.Second

// Config configures a connection manager.
type Config struct {
	// URL is the relay's WebSocket endpoint.
	URL string
	// Token is the bearer token presented to the relay.
	Token string
	// ConnectTimeout bounds Connect; zero selects DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// CallTimeout bounds one command operation; zero selects DefaultCallTimeout.
	CallTimeout time.Duration

	// Ledger backs the election command operations.
	Ledger repositories.ElectionLedger
	// Navigate records navigation requested by the model.
	Navigate func(route string)

	// OnTranscript receives finalized transcript lines for display.
	OnTranscript func(role entities.UtteranceRole, text string)
	// OnStateChange observes lifecycle transitions.
	OnStateChange func(state State)
	// OnError receives the single user-facing notification of a terminal
	// failure.
	OnError func(err error)
}

// Manager owns one voice session end to end: the relay connection, the
// capture device, the playback queue, and the dispatcher. It is the
// ConnectionHandle of the protocol: capture and playback are exclusively
// held from Connect until any terminal state, and released exactly once no
// matter which side ends the session.
type Manager struct {
	cfg      Config
	capture  CaptureDevice
	playback PlaybackQueue
	logger   *zap.Logger

	dispatcher *Dispatcher

	mu                  sync.Mutex
	state               State
	conn                *websocket.Conn
	sessionID           string
	readyCh             chan struct{}
	termCh              chan struct{}
	termErr             error
	releaseOnce         *sync.Once
	assistantTranscript strings.Builder

	writeMu sync.Mutex
}

// NewManager creates a manager. It holds no resources until Connect.
func NewManager(cfg Config, capture CaptureDevice, playback PlaybackQueue, logger *zap.Logger) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	m := &Manager{
		cfg:         cfg,
		capture:     capture,
		playback:    playback,
		logger:      logger,
		state:       StateIdle,
		releaseOnce: &sync.Once{},
	}
	m.dispatcher = NewDispatcher(m, Registry(cfg.Navigate, cfg.Ledger, logger), cfg.CallTimeout, logger)
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the id assigned by the upstream provider, or empty
// before the session is ready.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Dispatcher exposes the function-call dispatcher, mainly so shutdown paths
// can drain in-flight operations.
func (m *Manager) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// Connect acquires the capture device, dials the relay, and blocks until the
// session is ready, the connect budget elapses, or the connection dies. The
// capture device is acquired before the network connection so a denied
// microphone never leaves an open socket behind.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateIdle, StateClosed, StateFailed:
	default:
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("voice: connect is not valid in state %s", state)
	}
	m.releaseOnce = &sync.Once{}
	m.sessionID = ""
	m.readyCh = make(chan struct{})
	m.termCh = make(chan struct{})
	m.termErr = nil
	readyCh := m.readyCh
	termCh := m.termCh
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	budget, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if err := m.capture.Acquire(budget, m.onCaptured); err != nil {
		m.fail(fmt.Errorf("voice: acquire capture device: %w", err))
		return fmt.Errorf("voice: acquire capture device: %w", err)
	}

	header := http.Header{}
	if m.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+m.cfg.Token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.ConnectTimeout}

	conn, _, err := dialer.DialContext(budget, m.cfg.URL, header)
	if err != nil {
		m.fail(fmt.Errorf("voice: dial relay: %w", err))
		return fmt.Errorf("voice: dial relay: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.setStateLocked(StateAwaitingSession)
	m.mu.Unlock()

	go m.readLoop(conn)

	select {
	case <-readyCh:
		return nil
	case <-termCh:
		// The connection died before the session was announced; surface
		// the real cause instead of waiting out the budget.
		m.mu.Lock()
		err := m.termErr
		m.mu.Unlock()
		if err == nil {
			err = errors.New("voice: connection closed before session was ready")
		}
		return err
	case <-budget.Done():
		m.fail(ErrConnectTimeout)
		return ErrConnectTimeout
	}
}

// Disconnect tears the session down. Safe to call from any state and a
// no-op once Idle or Closed; queued outbound audio is discarded, in-flight
// command operations run to completion with their results dropped.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	switch m.state {
	case StateIdle, StateClosed, StateFailed:
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateClosing)
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
	m.releaseResources()

	m.mu.Lock()
	m.setStateLocked(StateClosed)
	m.mu.Unlock()
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			closing := m.state == StateClosing || m.state == StateClosed
			m.mu.Unlock()
			if closing {
				m.terminate(StateClosed, nil)
			} else {
				m.terminate(StateFailed, fmt.Errorf("voice: connection lost: %w", err))
			}
			return
		}

		ev, perr := realtime.ParseServerEvent(data)
		if perr != nil {
			// Protocol error: discard the frame, keep the session.
			m.logger.Warn("Discarding malformed frame", zap.Error(perr))
			continue
		}
		m.handleEvent(ev)
	}
}

func (m *Manager) handleEvent(ev *realtime.ServerEvent) {
	switch ev.Type {
	case realtime.EventTypeSessionCreated:
		m.mu.Lock()
		if ev.Session != nil {
			m.sessionID = ev.Session.ID
		}
		var readyCh chan struct{}
		if m.state == StateAwaitingSession {
			m.setStateLocked(StateReady)
			readyCh = m.readyCh
		}
		m.mu.Unlock()
		if readyCh != nil {
			close(readyCh)
		}

	case realtime.EventTypeResponseAudioDelta:
		raw, err := pcm.Decode(ev.Delta)
		if err != nil {
			m.logger.Warn("Discarding undecodable audio delta", zap.Error(err))
			return
		}
		// Decoding happens here, off the playback path; the queue preserves
		// receipt order.
		m.playback.Enqueue(raw)

	case realtime.EventTypeResponseAudioTranscriptDelta:
		m.mu.Lock()
		m.assistantTranscript.WriteString(ev.Delta)
		m.mu.Unlock()

	case realtime.EventTypeResponseAudioTranscriptDone, realtime.EventTypeResponseAudioDone:
		m.flushAssistantTranscript()

	case realtime.EventTypeInputTranscriptionCompleted:
		if m.cfg.OnTranscript != nil && ev.Transcript != "" {
			m.cfg.OnTranscript(entities.UtteranceRoleVoter, ev.Transcript)
		}

	case realtime.EventTypeFunctionCallArgumentsDelta:
		m.dispatcher.AppendFragment(ev.CallID, ev.Name, ev.Delta)

	case realtime.EventTypeFunctionCallArgumentsDone:
		m.dispatcher.CompleteCall(ev.CallID, ev.Name, ev.Arguments)

	case realtime.EventTypeError:
		if ev.Error != nil {
			m.logger.Warn("Upstream reported error", zap.String("code", ev.Error.Code), zap.String("message", ev.Error.Message))
		}

	default:
		m.logger.Debug("Ignoring unhandled event", zap.String("type", ev.Type))
	}
}

func (m *Manager) flushAssistantTranscript() {
	m.mu.Lock()
	text := m.assistantTranscript.String()
	m.assistantTranscript.Reset()
	m.mu.Unlock()

	if text != "" && m.cfg.OnTranscript != nil {
		m.cfg.OnTranscript(entities.UtteranceRoleAssistant, text)
	}
}

// onCaptured streams one captured buffer to the relay. Capture stays live
// while inbound frames are handled; frames captured outside Ready are
// dropped.
func (m *Manager) onCaptured(samples []float32) {
	m.mu.Lock()
	ready := m.state == StateReady
	m.mu.Unlock()
	if !ready {
		return
	}

	frame, err := realtime.AppendAudioEvent(pcm.Encode(samples))
	if err != nil {
		return
	}
	if err := m.write(frame); err != nil {
		m.logger.Debug("Dropping captured audio frame", zap.Error(err))
	}
}

// SendFunctionOutput implements Sink.
func (m *Manager) SendFunctionOutput(callID, output string) error {
	frame, err := realtime.FunctionOutputEvent(callID, output)
	if err != nil {
		return err
	}
	return m.write(frame)
}

// RequestResponse implements Sink.
func (m *Manager) RequestResponse() error {
	frame, err := realtime.ResponseCreateEvent()
	if err != nil {
		return err
	}
	return m.write(frame)
}

func (m *Manager) write(data []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errors.New("voice: not connected")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// fail moves to Failed from a connect path, closing whatever was opened.
func (m *Manager) fail(err error) {
	m.terminate(StateFailed, err)
}

// terminate drives any live session to a terminal state exactly once,
// releasing owned resources before the state becomes observable as terminal.
func (m *Manager) terminate(final State, err error) {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateFailed {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.releaseResources()
	m.setStateLocked(final)
	m.termErr = err
	if m.termCh != nil {
		close(m.termCh)
		m.termCh = nil
	}
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if err != nil && m.cfg.OnError != nil {
		m.cfg.OnError(err)
	}
}

// releaseResources releases capture and playback exactly once per
// connection attempt. Device Release is idempotent by contract, so the
// double guard keeps the "released exactly once" property observable.
func (m *Manager) releaseResources() {
	m.releaseOnce.Do(func() {
		m.capture.Release()
		m.playback.Release()
	})
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if cb := m.cfg.OnStateChange; cb != nil {
		go cb(s)
	}
}
