package pluginmgr

import (
	"path/filepath"
	"time"
)

// State is a plugin's position in the lifecycle state machine:
// Discovered -> Validated -> Loaded -> Active <-> Inactive ->
// Unloaded.
type State int

const (
	StateDiscovered State = iota
	StateValidated
	StateLoaded
	StateActive
	StateInactive
	StateUnloaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "Discovered"
	case StateValidated:
		return "Validated"
	case StateLoaded:
		return "Loaded"
	case StateActive:
		return "Active"
	case StateInactive:
		return "Inactive"
	case StateUnloaded:
		return "Unloaded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Plugin is the manager's persistent record of a discovered plugin.
type Plugin struct {
	ID       string
	Dir      string
	Manifest Manifest
	State    State

	LastError string
	LoadedAt  time.Time
}

// Snapshot returns a value copy safe to hand outside the manager's
// lock.
func (p *Plugin) Snapshot() Plugin {
	return *p
}

// ManifestPath returns the on-disk location of the plugin's
// mcp-plugin.json, used by the Hot-Reload Watcher to observe it.
func (p Plugin) ManifestPath() string {
	return filepath.Join(p.Dir, manifestFileName)
}

// legalTransitions enumerates the only legal transitions; any other
// invocation is ErrIllegalState.
var legalTransitions = map[State][]State{
	StateDiscovered: {StateValidated, StateFailed},
	StateValidated:  {StateLoaded, StateFailed},
	StateLoaded:     {StateActive, StateUnloaded, StateFailed},
	StateActive:     {StateInactive, StateFailed},
	StateInactive:   {StateActive, StateUnloaded, StateFailed},
}

func canTransition(from, to State) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
