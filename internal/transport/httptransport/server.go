package httptransport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/discoveryd/discoveryd/internal/dispatch"
	"github.com/discoveryd/discoveryd/internal/oauthmw"
	"github.com/discoveryd/discoveryd/internal/registry"
	"github.com/discoveryd/discoveryd/internal/session"
	"github.com/discoveryd/discoveryd/pkg/logging"
)

// SessionIDHeader is the synthetic header minted on initialize and
// required on subsequent calls.
const SessionIDHeader = "mcp-session-id"

// maxRequestBytes bounds a single POST body.
const maxRequestBytes = 8 * 1024 * 1024

// Options configures a Server.
type Options struct {
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	OAuthMiddleware *oauthmw.Middleware // nil disables OAuth enforcement
}

// Server is the HTTP + SSE transport.
type Server struct {
	dispatch *dispatch.Server
	registry *registry.Registry
	sessions *session.Table
	oauth    *oauthmw.Middleware

	stop chan struct{}
}

// New constructs the HTTP transport Server.
func New(d *dispatch.Server, r *registry.Registry, opts Options) *Server {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = time.Minute
	}

	s := &Server{
		dispatch: d,
		registry: r,
		sessions: session.NewTable(idle),
		oauth:    opts.OAuthMiddleware,
		stop:     make(chan struct{}),
	}
	go s.sweepLoop(sweep)
	return s
}

// sweepLoop expires idle sessions and releases their hub
// subscriptions until the server shuts down.
func (s *Server) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, id := range s.sessions.SweepExpired() {
				s.registry.Hub().Unsubscribe(id)
			}
		case <-s.stop:
			return
		}
	}
}

// Handler builds the routed http.Handler: /health and the
// protected-resource-metadata endpoint are always exempt from OAuth;
// the root MCP endpoint is wrapped with the OAuth middleware when one
// is configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	if s.oauth != nil {
		mux.Handle("/.well-known/oauth-protected-resource", s.oauth.MetadataHandler())
	}

	root := http.Handler(http.HandlerFunc(s.handleRoot))
	if s.oauth != nil {
		root = s.oauth.Wrap(root, "")
	}
	mux.Handle("/", root)

	return mux
}

// Shutdown stops the session expiry sweeper. It does not close the
// underlying http.Server; callers own that via Handler()'s caller.
func (s *Server) Shutdown() {
	close(s.stop)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxRequestBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	msg, parseErr := dispatch.Parse(body)

	var sessionID string
	var notifyCh <-chan registry.Notification
	isInit := parseErr == nil && msg.Method == "initialize"

	if isInit {
		sessionID = uuid.NewString()
		// The hub channel rides on the session record so every later
		// request for this session can drain it, not just this one.
		notifyCh = s.registry.Hub().Subscribe(sessionID)
		s.sessions.Create(sessionID, notifyCh)
	} else if parseErr == nil || r.Header.Get(SessionIDHeader) != "" {
		// An unparseable body without a session header skips the
		// session check and gets the parse-error event below.
		sessionID = r.Header.Get(SessionIDHeader)
		if sessionID == "" {
			http.Error(w, fmt.Sprintf("missing %s header", SessionIDHeader), http.StatusBadRequest)
			return
		}
		sess, ok := s.sessions.Get(sessionID)
		if !ok || !s.sessions.Touch(sessionID) {
			http.Error(w, "unknown or expired session", http.StatusNotFound)
			return
		}
		notifyCh, _ = sess.Routing.(<-chan registry.Notification)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if isInit {
		w.Header().Set(SessionIDHeader, sessionID)
	}

	flusher, canFlush := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)

	if parseErr != nil {
		logging.Warn("Transport", "http: dropping malformed message: %v", parseErr)
		writeSSEEvent(w, dispatch.NewErrorResponse(nil, &dispatch.Error{
			Code:    dispatch.CodeParseError,
			Message: "invalid JSON-RPC message",
		}))
		if canFlush {
			flusher.Flush()
		}
		return
	}

	if resp, hasResp := s.dispatch.Handle(r.Context(), msg); hasResp {
		writeSSEEvent(w, resp)
		if canFlush {
			flusher.Flush()
		}
	}

	// Opportunistically flush any list_changed/progress notifications
	// queued on the session's hub channel.
	if notifyCh != nil {
		drainNotifications(w, notifyCh, canFlush, flusher)
	}
}

func drainNotifications(w http.ResponseWriter, ch <-chan registry.Notification, canFlush bool, flusher http.Flusher) {
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			note, err := dispatch.NewNotification(n.Method, nil)
			if err != nil {
				continue
			}
			writeSSEEvent(w, note)
			if canFlush {
				flusher.Flush()
			}
		default:
			return
		}
	}
}

func writeSSEEvent(w io.Writer, msg dispatch.Message) {
	enc, err := json.Marshal(msg)
	if err != nil {
		logging.Error("Transport", err, "http: marshaling SSE event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", enc)
}
