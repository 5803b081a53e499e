package auth

import (
	"testing"
	"time"
)

func TestJWTService_IssueAndValidate(t *testing.T) {
	t.Parallel()

	svc := NewJWTService("test-secret", time.Hour)
	token, err := svc.IssueToken("user-1", "viewer")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "viewer" {
		t.Errorf("claims = %+v, want subject=user-1 role=viewer", claims)
	}
}

func TestJWTService_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	svc := NewJWTService("test-secret", -time.Hour)
	token, err := svc.IssueToken("user-1", "viewer")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("ValidateToken() on expired token: error = nil, want error")
	}
}

func TestJWTService_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	svc := NewJWTService("secret-a", time.Hour)
	token, err := svc.IssueToken("user-1", "viewer")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	other := NewJWTService("secret-b", time.Hour)
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("ValidateToken() with wrong secret: error = nil, want error")
	}
}
