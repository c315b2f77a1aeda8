package api

import "time"

// TokenRequest is the payload for issuing a voter token. Requesting the
// admin role additionally requires the server's admin secret.
type TokenRequest struct {
	VoterID     string `json:"voter_id" validate:"required"`
	Role        string `json:"role,omitempty"`
	AdminSecret string `json:"admin_secret,omitempty"`
}

// TokenResponse carries a freshly issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	VoterID   string    `json:"voter_id"`
	Role      string    `json:"role"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
