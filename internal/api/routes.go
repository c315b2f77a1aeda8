// Package api wires the HTTP surface: health, token issuance, transcript
// retrieval, and the websocket entry point into the relay.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suarakita/server/domain/repositories"
	"github.com/suarakita/server/internal/auth"
	"github.com/suarakita/server/internal/relay"
)

// InitRoutes initializes all API routes. conversations may be nil when
// transcript storage is disabled; the transcript endpoint then returns 404.
// adminSecret gates admin token issuance; empty disables admin tokens.
func InitRoutes(
	e *echo.Echo,
	hub *relay.Hub,
	signer *auth.Signer,
	conversations repositories.ConversationRepository,
	adminSecret string,
	logger *zap.Logger,
) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "suarakita-server",
			"bridges": hub.ActiveBridges(),
		})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/token", func(c echo.Context) error {
		return issueToken(c, signer, adminSecret, logger)
	})

	v1.GET("/conversations/:session_id", func(c echo.Context) error {
		return getConversation(c, signer, conversations, logger)
	})

	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, signer, logger)
	})
}

func issueToken(c echo.Context, signer *auth.Signer, adminSecret string, logger *zap.Logger) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.VoterID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "voter_id is required",
		})
	}
	role := req.Role
	if role == "" {
		role = auth.RoleVoter
	}
	if role == auth.RoleAdmin {
		// The endpoint is unauthenticated, so admin tokens need the
		// out-of-band admin secret.
		if adminSecret == "" || req.AdminSecret != adminSecret {
			logger.Warn("Rejected admin token request",
				zap.String("voter_id", req.VoterID))
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "admin_secret_required",
				Message: "Admin tokens require the admin secret",
			})
		}
	}

	token, err := signer.IssueToken(req.VoterID, role)
	if err != nil {
		logger.Warn("Failed to issue token",
			zap.String("voter_id", req.VoterID),
			zap.String("role", role),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "token_issue_failed",
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(signer.TTL()),
		VoterID:   req.VoterID,
		Role:      role,
	})
}

func getConversation(
	c echo.Context,
	signer *auth.Signer,
	conversations repositories.ConversationRepository,
	logger *zap.Logger,
) error {
	claims, errResp := bearerClaims(c, signer)
	if errResp != nil {
		return c.JSON(http.StatusUnauthorized, errResp)
	}
	if conversations == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Transcript storage is disabled",
		})
	}

	sessionID := c.Param("session_id")
	conversation, err := conversations.GetBySessionID(c.Request().Context(), sessionID)
	if err != nil {
		logger.Error("Failed to load conversation",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load conversation",
		})
	}
	if conversation == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "No conversation for that session",
		})
	}
	if conversation.VoterID != claims.VoterID && claims.Role != auth.RoleAdmin {
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Conversation belongs to another voter",
		})
	}

	return c.JSON(http.StatusOK, conversation)
}

// websocketWithAuth handles WebSocket connections with JWT authentication.
func websocketWithAuth(hub *relay.Hub, c echo.Context, signer *auth.Signer, logger *zap.Logger) error {
	claims, errResp := bearerClaims(c, signer)
	if errResp != nil {
		logger.Warn("WebSocket connection rejected", zap.String("reason", errResp.Error))
		return c.JSON(http.StatusUnauthorized, errResp)
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("voter_id", claims.VoterID),
		zap.String("role", claims.Role))

	return relay.HandleWebSocket(hub, c, claims, logger)
}

func bearerClaims(c echo.Context, signer *auth.Signer) (*auth.Claims, *ErrorResponse) {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if token == "" {
		// Browsers cannot set headers on websocket dials.
		token = c.QueryParam("token")
	}
	if token == "" {
		return nil, &ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		}
	}

	claims, err := signer.ValidateToken(token)
	if err != nil {
		return nil, &ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		}
	}
	return claims, nil
}
