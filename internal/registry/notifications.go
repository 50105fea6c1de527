package registry

import (
	"sync"

	"github.com/discoveryd/discoveryd/pkg/logging"
)

// Kind identifies which list a notification concerns.
type Kind string

const (
	KindTools     Kind = "tools"
	KindResources Kind = "resources"
	KindPrompts   Kind = "prompts"
)

// Method returns the JSON-RPC notification method name for this kind,
// e.g. "notifications/tools/list_changed".
func (k Kind) Method() string {
	return "notifications/" + string(k) + "/list_changed"
}

// Notification is a list_changed event ready to hand to a transport.
type Notification struct {
	Method string
}

// Hub maintains per-session subscriptions and broadcasts list_changed
// notifications after a mutation becomes visible to new list calls.
// Delivery is best-effort: a full per-session channel drops the
// notification for that session rather than blocking the mutation path,
// mirroring the aggregator's non-blocking notifyUpdate send.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Notification
}

// NewHub constructs an empty notification hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Notification)}
}

// Subscribe registers a new session and returns its notification
// channel. The channel is buffered so a burst of mutations does not
// immediately drop notifications.
func (h *Hub) Subscribe(sessionID string) <-chan Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Notification, 32)
	h.subs[sessionID] = ch
	return ch
}

// Unsubscribe removes a session and closes its channel.
func (h *Hub) Unsubscribe(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[sessionID]; ok {
		close(ch)
		delete(h.subs, sessionID)
	}
}

// Broadcast sends a list_changed notification for kind to every active
// session. Failed (full-channel) deliveries are logged and otherwise
// ignored; they never roll back the mutation that triggered them.
func (h *Hub) Broadcast(kind Kind) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := Notification{Method: kind.Method()}
	for sessionID, ch := range h.subs {
		select {
		case ch <- n:
		default:
			logging.Warn("Registry", "dropped list_changed notification for session %s (kind=%s)", logging.TruncateSessionID(sessionID), kind)
		}
	}
}

// SessionCount reports the number of currently subscribed sessions.
// Exposed mainly for tests verifying delivery "at least once" across
// active sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
