// Package relay bridges browser voice clients to the upstream realtime
// provider. Frames pass through verbatim in both directions; the relay's own
// contributions are the one-shot session configuration it injects after
// session.created and the transcript tee.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suarakita/server/domain/repositories"
	"github.com/suarakita/server/internal/auth"
	"github.com/suarakita/server/pkg/pcm"
	"github.com/suarakita/server/pkg/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	dialTimeout = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the web app origin once it is deployed
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active bridges.
type Hub struct {
	bridges    map[*Bridge]struct{}
	register   chan *Bridge
	unregister chan *Bridge

	mu sync.RWMutex

	dialer        repositories.UpstreamDialer
	conversations repositories.ConversationRepository
	stt           repositories.SpeechToText
	sessionConfig *realtime.SessionConfig

	logger *zap.Logger
}

// NewHub creates a relay hub. conversations and stt may be nil to disable
// transcript recording and the fallback recognizer respectively. A nil
// sessionConfig uses SessionDefaults.
func NewHub(
	dialer repositories.UpstreamDialer,
	conversations repositories.ConversationRepository,
	stt repositories.SpeechToText,
	sessionConfig *realtime.SessionConfig,
	logger *zap.Logger,
) *Hub {
	if sessionConfig == nil {
		sessionConfig = SessionDefaults()
	}
	return &Hub{
		bridges:       make(map[*Bridge]struct{}),
		register:      make(chan *Bridge),
		unregister:    make(chan *Bridge),
		dialer:        dialer,
		conversations: conversations,
		stt:           stt,
		sessionConfig: sessionConfig,
		logger:        logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case bridge := <-h.register:
			h.mu.Lock()
			h.bridges[bridge] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Bridge registered", zap.String("voterID", bridge.voterID))

		case bridge := <-h.unregister:
			h.mu.Lock()
			delete(h.bridges, bridge)
			h.mu.Unlock()
			h.logger.Info("Bridge unregistered", zap.String("voterID", bridge.voterID))
		}
	}
}

// ActiveBridges reports how many relayed sessions are live.
func (h *Hub) ActiveBridges() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bridges)
}

// Bridge is one relayed session: a client websocket on one side, an upstream
// realtime session on the other.
type Bridge struct {
	hub *Hub

	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	upstream repositories.UpstreamSession
	recorder *Recorder

	voterID string
	role    string

	// guards the one-shot session.update injection
	configured bool

	closeOnce sync.Once

	logger *zap.Logger
}

// HandleWebSocket upgrades an authenticated request and bridges it to the
// upstream provider. If the upstream dial fails the client gets a single
// error frame and the connection is closed; nothing is relayed.
func HandleWebSocket(hub *Hub, c echo.Context, claims *auth.Claims, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dialTimeout)
	defer cancel()

	session, err := hub.dialer.Dial(ctx)
	if err != nil {
		logger.Error("Upstream dial failed",
			zap.String("voterID", claims.VoterID),
			zap.Error(err))
		writeErrorFrame(conn, "upstream_unavailable", "could not reach the realtime provider")
		conn.Close()
		return nil
	}

	bridge := &Bridge{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		upstream: session,
		recorder: NewRecorder(hub.conversations, hub.stt, logger),
		voterID:  claims.VoterID,
		role:     claims.Role,
		logger:   logger,
	}

	bridge.hub.register <- bridge

	go bridge.writePump()
	go bridge.upstreamPump()
	go bridge.readPump()

	return nil
}

// readPump forwards client frames to the upstream session.
func (b *Bridge) readPump() {
	defer b.teardown(false)

	b.conn.SetReadLimit(maxMessageSize)
	b.conn.SetReadDeadline(time.Now().Add(pongWait))
	b.conn.SetPongHandler(func(string) error {
		b.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				b.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			b.logger.Warn("Dropping non-text frame from client", zap.Int("type", messageType))
			continue
		}

		b.teeClientFrame(message)

		if err := b.upstream.Send(message); err != nil {
			b.logger.Error("Failed to forward frame upstream",
				zap.String("voterID", b.voterID),
				zap.Error(err))
			b.teardown(true)
			return
		}
	}
}

// upstreamPump forwards upstream events to the client, injecting the session
// configuration once when the provider announces the session.
func (b *Bridge) upstreamPump() {
	for event := range b.upstream.Events() {
		if event.Err != nil {
			b.logger.Error("Upstream stream failed",
				zap.String("voterID", b.voterID),
				zap.Error(event.Err))
			b.teardown(true)
			return
		}

		b.teeUpstreamFrame(event.Data)

		select {
		case b.send <- event.Data:
		case <-b.done:
			return
		default:
			b.logger.Warn("Client send buffer full, dropping session",
				zap.String("voterID", b.voterID))
			b.teardown(true)
			return
		}
	}
	b.teardown(false)
}

// writePump pumps queued frames to the client connection.
func (b *Bridge) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		b.conn.Close()
	}()

	for {
		select {
		case message := <-b.send:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				b.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-b.done:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			b.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teeClientFrame inspects a client frame for the transcript tee. Parsing is
// best effort; the frame is forwarded verbatim either way.
func (b *Bridge) teeClientFrame(message []byte) {
	var frame struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	if err := json.Unmarshal(message, &frame); err != nil {
		return
	}

	switch frame.Type {
	case realtime.EventTypeInputAudioBufferAppend:
		if audio, err := pcm.Decode(frame.Audio); err == nil {
			b.recorder.VoterAudio(audio)
		}
	case realtime.EventTypeInputAudioBufferCommit:
		b.recorder.CommitVoterAudio()
	}
}

// teeUpstreamFrame watches the provider stream for the session announcement
// and completed transcripts.
func (b *Bridge) teeUpstreamFrame(data []byte) {
	event, err := realtime.ParseServerEvent(data)
	if err != nil {
		return
	}

	switch event.Type {
	case realtime.EventTypeSessionCreated:
		sessionID := ""
		if event.Session != nil {
			sessionID = event.Session.ID
		}
		b.recorder.Start(sessionID, b.voterID)
		b.configureSession()

	case realtime.EventTypeInputAudioBufferCommitted:
		b.recorder.CommitVoterAudio()

	case realtime.EventTypeInputTranscriptionCompleted:
		b.recorder.VoterTranscript(event.Transcript)

	case realtime.EventTypeResponseAudioTranscriptDone:
		b.recorder.AssistantTranscript(event.Transcript)
	}
}

// configureSession injects the relay's session.update exactly once.
func (b *Bridge) configureSession() {
	if b.configured {
		return
	}
	b.configured = true

	frame, err := realtime.SessionUpdateEvent(configForRole(b.hub.sessionConfig, b.role))
	if err != nil {
		b.logger.Error("Failed to build session.update", zap.Error(err))
		return
	}
	if err := b.upstream.Send(frame); err != nil {
		b.logger.Error("Failed to send session.update upstream",
			zap.String("voterID", b.voterID),
			zap.Error(err))
	}
}

// teardown closes both sides of the bridge. Either side closing tears down
// the other; subsequent calls are no-ops.
func (b *Bridge) teardown(failed bool) {
	b.closeOnce.Do(func() {
		close(b.done)
		b.upstream.Close()
		b.recorder.Close(failed)
		b.hub.unregister <- b
		b.conn.Close()
	})
}

func writeErrorFrame(conn *websocket.Conn, code, message string) {
	frame, err := json.Marshal(map[string]interface{}{
		"type": realtime.EventTypeError,
		"error": map[string]interface{}{
			"type":    "server_error",
			"code":    code,
			"message": message,
		},
	})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.TextMessage, frame)
}
