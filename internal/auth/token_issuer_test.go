package auth

import (
	"context"
	"testing"
	"time"
)

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "emoki-auth",
		Audience:      "emoki-api",
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
}

func TestIssueAndValidateSessionToken(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	issuer := newTestIssuer(func() time.Time { return now })

	token, expiresIn, err := issuer.IssueSessionToken(context.Background(), "user-1", "octocat@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry %d", expiresIn)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.UserEmail != "octocat@example.com" {
		t.Fatalf("unexpected email claim %s", claims.UserEmail)
	}
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	issued := time.Unix(1700000000, 0).UTC()
	current := issued
	issuer := newTestIssuer(func() time.Time { return current })

	token, _, err := issuer.IssueSessionToken(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = issued.Add(31 * time.Minute)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	issuer := newTestIssuer(func() time.Time { return now })

	token, _, err := issuer.IssueSessionToken(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("different-secret"),
		Issuer:        "emoki-auth",
		Audience:      "emoki-api",
		Clock:         func() time.Time { return now },
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	issuer := newTestIssuer(func() time.Time { return now })

	token, _, err := issuer.IssueSessionToken(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "emoki-auth",
		Audience:      "another-service",
		Clock:         func() time.Time { return now },
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected token with foreign audience to be rejected")
	}
}

func TestIssueSessionTokenRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(nil)

	if _, _, err := issuer.IssueSessionToken(context.Background(), "", "octocat@example.com"); err == nil {
		t.Fatalf("expected missing subject to be rejected")
	}
}

func TestIssueSessionTokenRequiresSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{})

	if _, _, err := issuer.IssueSessionToken(context.Background(), "user-1", ""); err == nil {
		t.Fatalf("expected missing secret to be rejected")
	}
}
