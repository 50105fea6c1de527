// Package discovery implements the Discovery Engine: it scans
// well-known module directories at startup, builds a dependency graph
// between the modules it finds, and hands them to the Core Registry in
// topological order (Kahn's algorithm, with cycle detection). Modules
// whose in-graph dependencies are satisfied load concurrently within a
// wave; waves load strictly in order.
package discovery
