package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suarakita/server/adapters/upstream"
	"github.com/suarakita/server/internal/auth"
	"github.com/suarakita/server/pkg/realtime"
)

func startRelayServer(t *testing.T, dialer *upstream.MockDialer) (*httptest.Server, *Hub) {
	return startRelayServerAs(t, dialer, auth.RoleVoter)
}

func startRelayServerAs(t *testing.T, dialer *upstream.MockDialer, role string) (*httptest.Server, *Hub) {
	t.Helper()
	logger := zap.NewNop()
	hub := NewHub(dialer, nil, nil, nil, logger)
	go hub.Run()

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		claims := &auth.Claims{VoterID: "0xvoter", Role: role}
		return HandleWebSocket(hub, c, claims, logger)
	})

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server, hub
}

func dialRelay(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func sentOfType(session *upstream.MockSession, eventType string) [][]byte {
	var out [][]byte
	for _, frame := range session.Sent() {
		var ev struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(frame, &ev) == nil && ev.Type == eventType {
			out = append(out, frame)
		}
	}
	return out
}

func TestSessionConfigInjectedExactlyOnce(t *testing.T) {
	session := upstream.NewMockSession()
	dialer := upstream.NewMockDialer(session)
	server, _ := startRelayServerAs(t, dialer, auth.RoleAdmin)
	conn := dialRelay(t, server)

	created := []byte(`{"type":"session.created","session":{"id":"sess_1"}}`)
	session.Emit(created)
	session.Emit(created)

	// Drain the two forwarded frames.
	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("failed to read forwarded frame: %v", err)
		}
	}

	waitFor(t, func() bool {
		return len(sentOfType(session, realtime.EventTypeSessionUpdate)) >= 1
	}, "session.update never reached the upstream session")

	updates := sentOfType(session, realtime.EventTypeSessionUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected exactly one session.update, got %d", len(updates))
	}

	var update struct {
		Session realtime.SessionConfig `json:"session"`
	}
	if err := json.Unmarshal(updates[0], &update); err != nil {
		t.Fatalf("failed to parse session.update: %v", err)
	}
	if len(update.Session.Tools) != 5 {
		t.Errorf("expected 5 tools in session config, got %d", len(update.Session.Tools))
	}
	if update.Session.TurnDetection == nil || update.Session.TurnDetection.Type != realtime.VADServerVAD {
		t.Error("expected server VAD turn detection in session config")
	}
}

func TestVoterSessionConfigOmitsElectionWrites(t *testing.T) {
	session := upstream.NewMockSession()
	dialer := upstream.NewMockDialer(session)
	server, _ := startRelayServerAs(t, dialer, auth.RoleVoter)
	conn := dialRelay(t, server)

	session.Emit([]byte(`{"type":"session.created","session":{"id":"sess_1"}}`))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("failed to read forwarded frame: %v", err)
	}

	waitFor(t, func() bool {
		return len(sentOfType(session, realtime.EventTypeSessionUpdate)) >= 1
	}, "session.update never reached the upstream session")

	var update struct {
		Session realtime.SessionConfig `json:"session"`
	}
	if err := json.Unmarshal(sentOfType(session, realtime.EventTypeSessionUpdate)[0], &update); err != nil {
		t.Fatalf("failed to parse session.update: %v", err)
	}
	if len(update.Session.Tools) != 4 {
		t.Errorf("expected 4 tools for a voter session, got %d", len(update.Session.Tools))
	}
	var names []string
	for _, tool := range update.Session.Tools {
		if tool.Name == "create_election" {
			t.Error("voter session must not be offered create_election")
		}
		names = append(names, tool.Name)
	}
	for _, want := range []string{"navigate_to", "list_elections", "get_election_details", "cast_vote"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("voter session missing tool %s", want)
		}
	}
}

func TestClientFramesForwardedVerbatim(t *testing.T) {
	session := upstream.NewMockSession()
	dialer := upstream.NewMockDialer(session)
	server, _ := startRelayServer(t, dialer)
	conn := dialRelay(t, server)

	frame := []byte(`{"type":"input_audio_buffer.commit","event_id":"evt_client_1"}`)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	waitFor(t, func() bool {
		return len(session.Sent()) >= 1
	}, "frame never reached the upstream session")

	sent := session.Sent()
	if !bytes.Equal(sent[0], frame) {
		t.Errorf("frame modified in transit:\n sent: %s\n got:  %s", frame, sent[0])
	}
}

func TestUpstreamFramesForwardedVerbatim(t *testing.T) {
	session := upstream.NewMockSession()
	dialer := upstream.NewMockDialer(session)
	server, _ := startRelayServer(t, dialer)
	conn := dialRelay(t, server)

	frame := []byte(`{"type":"response.audio.delta","delta":"AAAA","custom_field":42}`)
	session.Emit(frame)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, received, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read forwarded frame: %v", err)
	}
	if !bytes.Equal(received, frame) {
		t.Errorf("frame modified in transit:\n sent: %s\n got:  %s", frame, received)
	}
}

func TestUpstreamDialFailureSendsErrorFrame(t *testing.T) {
	dialer := upstream.NewMockDialer()
	dialer.DialErr = errors.New("missing api key")
	server, _ := startRelayServer(t, dialer)
	conn := dialRelay(t, server)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected an error frame before close, got read error: %v", err)
	}

	event, err := realtime.ParseServerEvent(frame)
	if err != nil {
		t.Fatalf("failed to parse error frame: %v", err)
	}
	if event.Type != realtime.EventTypeError {
		t.Errorf("expected error frame, got %s", event.Type)
	}
	if event.Error == nil || event.Error.Code != "upstream_unavailable" {
		t.Errorf("expected upstream_unavailable code, got %+v", event.Error)
	}

	// The relay closes the socket after the error frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed after error frame")
	}
}

func TestClientDisconnectClosesUpstream(t *testing.T) {
	session := upstream.NewMockSession()
	dialer := upstream.NewMockDialer(session)
	server, hub := startRelayServer(t, dialer)
	conn := dialRelay(t, server)

	waitFor(t, func() bool { return hub.ActiveBridges() == 1 }, "bridge never registered")

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, session.IsClosed, "upstream session not closed after client disconnect")
	waitFor(t, func() bool { return hub.ActiveBridges() == 0 }, "bridge never unregistered")
}

func TestUpstreamErrorTearsDownClient(t *testing.T) {
	session := upstream.NewMockSession()
	dialer := upstream.NewMockDialer(session)
	server, hub := startRelayServer(t, dialer)
	conn := dialRelay(t, server)

	waitFor(t, func() bool { return hub.ActiveBridges() == 1 }, "bridge never registered")

	session.EmitErr(errors.New("upstream gone"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	waitFor(t, func() bool { return hub.ActiveBridges() == 0 }, "bridge never unregistered")
}

func TestHandleWebSocketRejectsPlainHTTP(t *testing.T) {
	dialer := upstream.NewMockDialer()
	server, _ := startRelayServer(t, dialer)

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		t.Error("expected upgrade to fail for plain HTTP request")
	}
}
