package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidateToken(t *testing.T) {
	signer, err := NewSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	token, err := signer.IssueToken("0xabc123", RoleVoter)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	claims, err := signer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.VoterID != "0xabc123" {
		t.Errorf("expected voter id 0xabc123, got %s", claims.VoterID)
	}
	if claims.Role != RoleVoter {
		t.Errorf("expected role %s, got %s", RoleVoter, claims.Role)
	}
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	signer, _ := NewSigner("test-secret", time.Hour)
	if _, err := signer.IssueToken("0xabc", "superuser"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	signer, _ := NewSigner("secret-a", time.Hour)
	other, _ := NewSigner("secret-b", time.Hour)

	token, err := signer.IssueToken("0xabc", RoleAdmin)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("expected validation to fail with a different secret")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	signer, _ := NewSigner("test-secret", time.Nanosecond)
	token, err := signer.IssueToken("0xabc", RoleVoter)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := signer.ValidateToken(token); err == nil {
		t.Error("expected validation to fail for expired token")
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner("", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}
