package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suarakita/server/adapters/upstream"
	"github.com/suarakita/server/internal/auth"
	"github.com/suarakita/server/internal/relay"
)

const testAdminSecret = "test-admin-secret"

func newTestServer(t *testing.T) (*echo.Echo, *auth.Signer) {
	return newTestServerWithAdminSecret(t, testAdminSecret)
}

func newTestServerWithAdminSecret(t *testing.T, adminSecret string) (*echo.Echo, *auth.Signer) {
	t.Helper()
	logger := zap.NewNop()
	signer, err := auth.NewSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	hub := relay.NewHub(upstream.NewMockDialer(), nil, nil, nil, logger)
	go hub.Run()

	e := echo.New()
	InitRoutes(e, hub, signer, nil, adminSecret, logger)
	return e, signer
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIssueToken(t *testing.T) {
	e, signer := newTestServer(t)

	body := `{"voter_id":"0xabc"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	claims, err := signer.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token did not validate: %v", err)
	}
	if claims.VoterID != "0xabc" || claims.Role != auth.RoleVoter {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestIssueTokenRejectsAdminWithoutSecret(t *testing.T) {
	e, _ := newTestServer(t)

	body := `{"voter_id":"0xmallory","role":"admin"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin role without secret, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TokenResponse
	if json.Unmarshal(rec.Body.Bytes(), &resp) == nil && resp.Token != "" {
		t.Error("no token may be issued for a rejected admin request")
	}
}

func TestIssueTokenAdminWithSecret(t *testing.T) {
	e, signer := newTestServer(t)

	body := `{"voter_id":"0xadmin","role":"admin","admin_secret":"` + testAdminSecret + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	claims, err := signer.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token did not validate: %v", err)
	}
	if claims.Role != auth.RoleAdmin {
		t.Errorf("expected admin claims, got %+v", claims)
	}
}

func TestIssueTokenAdminDisabledWithoutConfiguredSecret(t *testing.T) {
	e, _ := newTestServerWithAdminSecret(t, "")

	// An empty admin_secret must not match an unconfigured server secret.
	body := `{"voter_id":"0xmallory","role":"admin","admin_secret":""}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 when admin tokens are disabled, got %d", rec.Code)
	}
}

func TestIssueTokenRequiresVoterID(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	e, _ := newTestServer(t)

	body := `{"voter_id":"0xabc","role":"superuser"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestConversationEndpointWithoutStorage(t *testing.T) {
	e, signer := newTestServer(t)

	token, err := signer.IssueToken("0xabc", auth.RoleVoter)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/sess_1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when storage disabled, got %d", rec.Code)
	}
}
