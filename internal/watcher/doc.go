// Package watcher implements the Hot-Reload Watcher: given a set of
// watched module file paths, it detects on-disk changes via fsnotify
// and rebuilds the registry state for just the affected module. Rapid
// successive events are coalesced by a per-path debounce timer,
// renames and removes are treated as deletes, and watched paths may
// not escape the configured roots through symlinks.
package watcher
