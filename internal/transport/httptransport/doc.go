// Package httptransport implements the HTTP + SSE transport: POST /
// carries one JSON-RPC message, the response is delivered over a
// server-sent-event stream, and a synthetic mcp-session-id header is
// minted on initialize and required on subsequent calls.
//
// Health and protected-resource-metadata endpoints bypass both
// authentication and the session requirement. Socket activation (for
// running under systemd with a pre-bound listener) uses
// github.com/coreos/go-systemd/v22/activation; this package is its
// sole consumer.
package httptransport
