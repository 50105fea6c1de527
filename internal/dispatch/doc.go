// Package dispatch implements the server dispatcher: the single
// method-name router that every transport (stdio, HTTP+SSE, AMQP)
// calls with a uniform, already-classified JSON-RPC-2.0-shaped
// message. It owns the method catalogue (initialize, tools/*,
// resources/*, prompts/*, registry_*, plugin_*), translates handler
// errors into JSON-RPC error objects or tool-result errors, and leaves
// notification fan-out to the registry's own Hub (internal/registry).
package dispatch
