package auth

import (
	"context"
	"testing"
	"time"

	"bookkeeper.org/internal/identity"
)

func TestGenerateAndValidate(t *testing.T) {
	tokens, err := NewTokens("test-secret", WithIssuer("test-issuer"), WithTTL(30*time.Minute))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}

	signed, expires, err := tokens.Generate("CN=Jane Doe,DC=dataone,DC=org")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiration, got %v", expires)
	}

	claims, err := tokens.ParseAndValidate(signed)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "CN=Jane Doe,DC=dataone,DC=org" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != "test-issuer" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id")
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	signer, err := NewTokens("secret-a")
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	verifier, err := NewTokens("secret-b")
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}

	signed, _, err := signer.Generate("S1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := verifier.ParseAndValidate(signed); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	tokens, err := NewTokens("test-secret", WithTTL(time.Nanosecond))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	signed, _, err := tokens.Generate("S1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := tokens.ParseAndValidate(signed); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	if _, err := NewTokens("  "); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := CallerFromContext(ctx); ok {
		t.Fatalf("unexpected caller on empty context")
	}

	ctx = ContextWithCaller(ctx, identity.Caller{Subject: "S1"})
	caller, ok := CallerFromContext(ctx)
	if !ok || caller.Subject != "S1" {
		t.Fatalf("unexpected caller: %+v, ok=%v", caller, ok)
	}

	ctx = ContextWithToken(ctx, "raw-token")
	token, ok := TokenFromContext(ctx)
	if !ok || token != "raw-token" {
		t.Fatalf("unexpected token: %s, ok=%v", token, ok)
	}
}
