// Package upstream provides realtime-provider session adapters behind the
// UpstreamDialer interface: a WebSocket dialer for OpenAI-style realtime
// endpoints, a Gemini Live translation adapter, and an in-memory mock.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/suarakita/server/domain/repositories"
)

const (
	// DefaultOpenAIURL is the default realtime WebSocket endpoint.
	DefaultOpenAIURL = "wss://api.openai.com/v1/realtime"
	// DefaultOpenAIModel is the default realtime model.
	DefaultOpenAIModel = "gpt-4o-realtime-preview"

	dialTimeout       = 15 * time.Second
	upstreamWriteWait = 10 * time.Second
)

// OpenAIDialer opens realtime sessions against an OpenAI-compatible
// WebSocket endpoint. Frames pass through untranslated in both directions.
type OpenAIDialer struct {
	url    string
	model  string
	apiKey string
	logger *zap.Logger
}

// NewOpenAIDialer creates a dialer. Empty url or model select the defaults.
func NewOpenAIDialer(url, model, apiKey string, logger *zap.Logger) *OpenAIDialer {
	if url == "" {
		url = DefaultOpenAIURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIDialer{url: url, model: model, apiKey: apiKey, logger: logger}
}

// Dial implements repositories.UpstreamDialer.
func (d *OpenAIDialer) Dial(ctx context.Context) (repositories.UpstreamSession, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("upstream API key is not configured")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+d.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, d.url+"?model="+d.model, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upstream connect failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("upstream connect failed: %w", err)
	}

	s := &openAISession{
		conn:   conn,
		events: make(chan repositories.UpstreamEvent, 100),
		closed: make(chan struct{}),
		logger: d.logger,
	}
	go s.readLoop()
	return s, nil
}

type openAISession struct {
	conn      *websocket.Conn
	events    chan repositories.UpstreamEvent
	closed    chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	logger    *zap.Logger
}

func (s *openAISession) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(upstreamWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *openAISession) Events() <-chan repositories.UpstreamEvent {
	return s.events
}

func (s *openAISession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *openAISession) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			case s.events <- repositories.UpstreamEvent{Err: fmt.Errorf("upstream read: %w", err)}:
			}
			return
		}
		select {
		case <-s.closed:
			return
		case s.events <- repositories.UpstreamEvent{Data: data}:
		}
	}
}

var _ repositories.UpstreamDialer = (*OpenAIDialer)(nil)
