// Package stdio implements the newline-delimited JSON transport: one
// JSON-RPC message per line on standard input and output, a single
// process-unique session, and no cancellation other than process
// termination. Back-pressure is left entirely to the OS pipe buffer.
package stdio
