// Package registry implements the Core Registry: the authoritative,
// process-wide inventory of tools, resources, and prompts. It enforces
// name/URI uniqueness, tracks which module owns each record so a module
// can be unloaded atomically, and runs a notifications hub that
// broadcasts list_changed events to every active session after each
// mutation becomes visible to readers.
//
// Registration during startup is batched per module via StartModule /
// CompleteModule so that a module failing partway through rolls back
// its own partial registrations without touching anything owned by
// other modules. A process-wide dedup guard serialises the bulk
// bootstrap registration pass: explicit mutex-guarded state plus a
// singleflight group, no hidden module-level booleans.
package registry
