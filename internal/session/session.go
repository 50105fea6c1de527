// Package session implements the shared Session type and table used by
// the HTTP and AMQP transports; sessions expire after a configurable
// idle window. The
// stdio transport does not use this package: it has exactly one
// process-unique session for its lifetime.
package session

import (
	"sync"
	"time"

	"github.com/discoveryd/discoveryd/pkg/logging"
)

// Session is one client<->server conversation. StreamID is only
// populated by the AMQP transport, where a session/stream pair
// together identify the conversation; HTTP leaves it empty.
type Session struct {
	ID        string
	StreamID  string
	CreatedAt time.Time
	LastSeen  time.Time

	// Routing carries transport-specific data: the SSE event channel
	// for HTTP, or the reply-to queue name for AMQP. Opaque to this
	// package.
	Routing interface{}
}

// Table is a concurrency-safe session table with idle expiry, held
// under its own lock.
type Table struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
}

// NewTable constructs a session table. idleTimeout of zero disables
// expiry (callers must prune explicitly).
func NewTable(idleTimeout time.Duration) *Table {
	return &Table{sessions: make(map[string]*Session), idleTimeout: idleTimeout}
}

// Create registers a new session with the given id, overwriting any
// existing entry of the same id.
func (t *Table) Create(id string, routing interface{}) *Session {
	now := time.Now()
	s := &Session{ID: id, CreatedAt: now, LastSeen: now, Routing: routing}
	t.mu.Lock()
	t.sessions[id] = s
	t.mu.Unlock()
	return s
}

// Get returns the session for id without refreshing LastSeen.
func (t *Table) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Touch refreshes a session's LastSeen timestamp, reporting whether the
// session exists.
func (t *Table) Touch(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return false
	}
	s.LastSeen = time.Now()
	return true
}

// Remove deletes a session from the table.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// Len reports the number of live sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// SweepExpired removes and returns the IDs of every session whose idle
// window has elapsed. A zero idleTimeout makes this a no-op.
func (t *Table) SweepExpired() []string {
	if t.idleTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-t.idleTimeout)

	t.mu.Lock()
	var expired []string
	for id, s := range t.sessions {
		if s.LastSeen.Before(cutoff) {
			expired = append(expired, id)
			delete(t.sessions, id)
		}
	}
	t.mu.Unlock()

	for _, id := range expired {
		logging.Debug("Transport", "session %s expired after idle timeout", logging.TruncateSessionID(id))
	}
	return expired
}
