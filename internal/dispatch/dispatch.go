package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/discoveryd/discoveryd/internal/pluginmgr"
	"github.com/discoveryd/discoveryd/internal/registry"
	"github.com/discoveryd/discoveryd/pkg/logging"
)

// Method is a single dispatcher-registered handler. For requests the
// dispatcher marshals its return value into the response's result;
// for notifications (called via HandleNotification) any returned
// error is logged and otherwise ignored, since notifications never
// reply.
type Method func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server routes method names to handlers. It holds no
// transport-specific state; every transport shares one Server and
// calls Handle with its already-classified Message.
type Server struct {
	Registry *registry.Registry
	Plugins  *pluginmgr.Manager

	methods map[string]Method
}

// New constructs a dispatcher bound to a registry and (optionally) a
// plugin manager. Plugins may be nil when the process runs without the
// Plugin Manager wired in (e.g. unit tests of the registry alone).
func New(r *registry.Registry, p *pluginmgr.Manager) *Server {
	s := &Server{Registry: r, Plugins: p, methods: make(map[string]Method)}
	s.registerBuiltins()
	return s
}

// RegisterMethod adds or replaces a method handler, extending the
// catalogue beyond the fixed set in registerBuiltins. Nothing in this
// repository, tests included, calls it.
func (s *Server) RegisterMethod(name string, fn Method) {
	s.methods[name] = fn
}

// Handle routes a single classified Message. Requests return a
// response Message ready for the transport to send back; notifications
// return (Message{}, false) since no reply is ever produced.
//
// Malformed messages (Parse failed) must already have been converted
// by the caller into a zero-value Message with Method == "" and
// ID == nil, which Classify reports as KindNotification; Handle then
// silently no-ops, so malformed traffic never blocks the pipeline.
func (s *Server) Handle(ctx context.Context, msg Message) (Message, bool) {
	switch Classify(msg) {
	case KindResponse:
		// A transport should never hand the dispatcher a response; log
		// and drop rather than propagate schema drift upstream.
		logging.Warn("Dispatcher", "received unexpected response-shaped message for id %s", string(msg.ID))
		return Message{}, false
	case KindNotification:
		s.handleNotification(ctx, msg)
		return Message{}, false
	default:
		return s.handleRequest(ctx, msg), true
	}
}

func (s *Server) handleNotification(ctx context.Context, msg Message) {
	if msg.Method == "" {
		return
	}
	fn, ok := s.methods[msg.Method]
	if !ok {
		logging.Warn("Dispatcher", "no handler for notification method %q", msg.Method)
		return
	}
	if _, err := fn(ctx, msg.Params); err != nil {
		logging.Error("Dispatcher", err, "notification handler for %q failed", msg.Method)
	}
}

func (s *Server) handleRequest(ctx context.Context, msg Message) Message {
	fn, ok := s.methods[msg.Method]
	if !ok {
		return NewErrorResponse(msg.ID, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", msg.Method)})
	}

	select {
	case <-ctx.Done():
		return NewErrorResponse(msg.ID, &Error{Code: CodeCancelled, Message: "request cancelled"})
	default:
	}

	result, err := fn(ctx, msg.Params)
	if err != nil {
		if ctx.Err() != nil {
			return NewErrorResponse(msg.ID, &Error{Code: CodeCancelled, Message: "request cancelled"})
		}
		return NewErrorResponse(msg.ID, translate(err))
	}

	resp, encErr := NewResult(msg.ID, result)
	if encErr != nil {
		return NewErrorResponse(msg.ID, &Error{Code: CodeInternalError, Message: encErr.Error()})
	}
	return resp
}

// toolResultError wraps an error as a CallToolResult with IsError
// set: handler-level failures keep their output text visible to the
// client, unlike protocol-level JSON-RPC errors.
func toolResultError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// stripProtocolViolations removes any field a CallToolResult carries
// beyond content/isError; extra fields in a tool response are a
// protocol violation. mcp-go's CallToolResult type only carries
// Content/IsError/Meta today, making this the single place that
// contract is enforced if the type ever grows extra fields.
func stripProtocolViolations(res *mcp.CallToolResult) *mcp.CallToolResult {
	if res == nil {
		return mcp.NewToolResultText("")
	}
	return &mcp.CallToolResult{Content: res.Content, IsError: res.IsError}
}
