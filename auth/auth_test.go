package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewUserClaims(t *testing.T) {
	u := NewUser("alice", map[string]any{"org": "acme"})
	if u.UserID() != "alice" {
		t.Fatalf("unexpected id %q", u.UserID())
	}
	var c struct {
		Org string `json:"org"`
	}
	if err := u.Claims(&c); err != nil {
		t.Fatalf("claims: %v", err)
	}
	if c.Org != "acme" {
		t.Fatalf("unexpected org %q", c.Org)
	}

	if err := NewUser("bob", nil).Claims(&c); err != nil {
		t.Fatalf("nil claims should decode nothing: %v", err)
	}
}

func TestHMACSentinels(t *testing.T) {
	a, err := NewHMAC("local", "mcp", []byte("k"), WithRequiredScopes("mcp:read"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sign := func(scope string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss":   "local",
			"sub":   "dev",
			"aud":   "mcp",
			"scope": scope,
			"exp":   time.Now().Add(time.Minute).Unix(),
		})
		s, err := tok.SignedString([]byte("k"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	ctx := context.Background()
	if _, err := a.CheckAuthentication(ctx, sign("mcp:read")); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := a.CheckAuthentication(ctx, sign("other")); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("want ErrInsufficientScope, got %v", err)
	}
	if _, err := a.CheckAuthentication(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestNewHMACRequiresAudience(t *testing.T) {
	if _, err := NewHMAC("local", "", []byte("k")); err == nil {
		t.Fatalf("expected error for missing audience")
	}
}
