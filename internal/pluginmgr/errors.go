package pluginmgr

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalState is returned when a transition is attempted from a
	// state that does not permit it.
	ErrIllegalState = errors.New("pluginmgr: illegal state transition")

	// ErrIntegrity is returned when a plugin's recomputed dist hash does
	// not match the manifest's declared dist.hash.
	ErrIntegrity = errors.New("pluginmgr: dist integrity mismatch")

	// ErrDrift is returned when the recomputed dist does not match the
	// lock file written at the previous load.
	ErrDrift = errors.New("pluginmgr: lock file drift detected")

	// ErrUnsigned is returned when policy requires a signature and the
	// manifest has none.
	ErrUnsigned = errors.New("pluginmgr: signature required but absent")

	// ErrBadSignature is returned when a present signature fails
	// verification.
	ErrBadSignature = errors.New("pluginmgr: signature verification failed")

	// ErrUnknownPlugin is returned for operations on a plugin ID that
	// was never discovered.
	ErrUnknownPlugin = errors.New("pluginmgr: unknown plugin")

	// ErrNoRegistrar is returned by Activate when no registration
	// function has been bound for the plugin's entry point.
	ErrNoRegistrar = errors.New("pluginmgr: no registrar bound for plugin entry point")

	// ErrValidation wraps one or more manifest validation failures; use
	// ValidationErrors on it to get the full list.
	ErrValidation = errors.New("pluginmgr: manifest validation failed")
)

// ValidationErrors carries every manifest validation failure found
// during a single pass, rather than stopping at the first one.
type ValidationErrors struct {
	Errors []string
}

func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "pluginmgr: manifest validation failed"
	}
	msg := "pluginmgr: manifest validation failed: "
	for i, e := range v.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += e
	}
	return msg
}

func (v *ValidationErrors) Unwrap() error { return ErrValidation }

func (v *ValidationErrors) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *ValidationErrors) HasErrors() bool { return len(v.Errors) > 0 }
