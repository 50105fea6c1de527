package cmdb

import "errors"

var (
	// ErrUnknown reports a key with no stored CI. Store.Get signals
	// this with ok == false; the memory_get tool returns ErrUnknown.
	ErrUnknown = errors.New("cmdb: unknown key")
	// ErrInvalidGlob is returned when a query pattern is malformed.
	ErrInvalidGlob = errors.New("cmdb: invalid glob pattern")
)
