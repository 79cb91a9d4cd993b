// Package authtest provides Authenticator fakes for transport tests.
package authtest

import (
	"context"

	"github.com/ggoodman/mcp-context-go/auth"
)

// Static accepts any non-empty token and resolves it to a fixed user.
type Static struct {
	UserID string
	Claims map[string]any
}

// NewStatic returns a Static authenticator. An empty userID defaults to
// "test-user".
func NewStatic(userID string) *Static {
	if userID == "" {
		userID = "test-user"
	}
	return &Static{UserID: userID}
}

// CheckAuthentication implements auth.Authenticator.
func (s *Static) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	if tok == "" {
		return nil, auth.ErrUnauthorized
	}
	return auth.NewUser(s.UserID, s.Claims), nil
}

// Tokens maps bearer tokens to users; unknown tokens are rejected.
type Tokens map[string]string

// CheckAuthentication implements auth.Authenticator.
func (t Tokens) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	id, ok := t[tok]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return auth.NewUser(id, nil), nil
}
