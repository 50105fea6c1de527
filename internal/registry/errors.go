package registry

import "errors"

var (
	// ErrDuplicate is returned when registering a tool/resource/prompt
	// whose name or URI is already present.
	ErrDuplicate = errors.New("registry: duplicate registration")

	// ErrUnknown is returned when unregistering or looking up a name
	// that is not present.
	ErrUnknown = errors.New("registry: unknown name")

	// ErrInvalidSchema is returned when a tool's input schema is not a
	// valid object-shaped description.
	ErrInvalidSchema = errors.New("registry: invalid input schema")

	// ErrModuleNotReady is returned when a tool registration is
	// attempted for a module that is not in the Loading or Active
	// state.
	ErrModuleNotReady = errors.New("registry: owning module is not loading or active")

	// ErrNoActiveBatch is returned by CompleteModule when there is no
	// matching StartModule call in progress.
	ErrNoActiveBatch = errors.New("registry: no registration batch in progress for module")

	// ErrInvalidParams is returned when a tools/call argument map
	// fails validation against its tool's recorded input shape.
	ErrInvalidParams = errors.New("registry: invalid call parameters")
)
