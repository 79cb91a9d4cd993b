package sessions

import (
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-context-go/auth"
)

// Session is one client's negotiated protocol state.
//
// The identity fields are fixed at creation. Initialized and LastAccessedAt
// may be written by any request goroutine holding the session, so they are
// stored in atomics rather than behind the table lock.
type Session struct {
	id                    string
	principal             auth.UserInfo
	clientProtocolVersion string
	clientCapabilities    map[string]any
	createdAt             time.Time

	initialized    atomic.Bool
	lastAccessedAt atomic.Int64
}

func newSession(id string, principal auth.UserInfo, protocolVersion string, caps map[string]any, now time.Time) *Session {
	s := &Session{
		id:                    id,
		principal:             principal,
		clientProtocolVersion: protocolVersion,
		clientCapabilities:    caps,
		createdAt:             now,
	}
	s.lastAccessedAt.Store(now.UnixNano())
	return s
}

// ID returns the opaque session token.
func (s *Session) ID() string { return s.id }

// Principal returns the identity bound at initialize. It may be nil for
// transports that do not authenticate.
func (s *Session) Principal() auth.UserInfo { return s.principal }

// UserID is a nil-safe shortcut for Principal().UserID().
func (s *Session) UserID() string {
	if s.principal == nil {
		return ""
	}
	return s.principal.UserID()
}

// ClientProtocolVersion is the version the client declared at initialize.
func (s *Session) ClientProtocolVersion() string { return s.clientProtocolVersion }

// ClientCapabilities is the capabilities object the client declared at
// initialize, or nil.
func (s *Session) ClientCapabilities() map[string]any { return s.clientCapabilities }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Initialized reports whether notifications/initialized has been received.
func (s *Session) Initialized() bool { return s.initialized.Load() }

// MarkInitialized completes the handshake.
func (s *Session) MarkInitialized() { s.initialized.Store(true) }

// LastAccessedAt returns the time of the most recent Touch.
func (s *Session) LastAccessedAt() time.Time {
	return time.Unix(0, s.lastAccessedAt.Load())
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.lastAccessedAt.Store(now.UnixNano())
}

// IdleFor returns how long the session has been idle as of now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastAccessedAt())
}
