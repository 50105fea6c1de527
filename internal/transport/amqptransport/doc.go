// Package amqptransport implements the AMQP bidirectional-routing
// transport: a durable topic exchange, per-session request/response
// routing keys, correlationId/replyTo propagation, ack-after-dispatch
// semantics, and exponential-backoff reconnect.
//
// Every session's request queue is bound both to its session-specific
// key and to the generic mcp.* patterns, so load-balanced worker
// instances can share work regardless of which session a message
// nominally belongs to.
package amqptransport
