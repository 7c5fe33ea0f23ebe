package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()
	tok, err := svc.Generate(id, "staff@example.com", "staff")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != id || claims.Email != "staff@example.com" || claims.Role != "staff" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	tok, err := NewJWTService("a", 1).Generate(uuid.New(), "x@example.com", "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewJWTService("b", 1).Validate(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService("secret", 1)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := svc.Generate(uuid.New(), "x@example.com", "staff")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.Validate(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}
