package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/mcp-context-go/auth"
	"github.com/google/uuid"
)

// DefaultIdleTimeout is how long a session may go untouched before the next
// purge removes it.
const DefaultIdleTimeout = 30 * time.Minute

// Table is a concurrent map of live sessions keyed by session id.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Create mints a session with a random id, stores it and returns it.
func (t *Table) Create(principal auth.UserInfo, protocolVersion string, caps map[string]any, now time.Time) (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	s := newSession(id.String(), principal, protocolVersion, caps, now)

	t.mu.Lock()
	t.sessions[s.id] = s
	t.mu.Unlock()

	return s, nil
}

// Get returns the session for id, or nil.
func (t *Table) Get(id string) *Session {
	if id == "" {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// Delete removes a session. It reports whether the session existed.
func (t *Table) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[id]
	delete(t.sessions, id)
	return ok
}

// PurgeIdle removes every session idle for strictly longer than timeout and
// returns the number removed.
func (t *Table) PurgeIdle(now time.Time, timeout time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, s := range t.sessions {
		if s.IdleFor(now) > timeout {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
