package vault

import "errors"

var (
	// ErrUnknown is returned by get/remove for an id with no record.
	ErrUnknown = errors.New("vault: unknown credential id")
	// ErrDuplicate is returned by add when id is already present.
	ErrDuplicate = errors.New("vault: credential id already exists")
	// ErrDecryption is returned per-field when a ciphertext does not
	// decrypt with any key in the history set.
	ErrDecryption = errors.New("vault: field does not decrypt under any known key")
	// ErrRotationAborted is returned when a key rotation could not
	// re-encrypt every record; the store is left unchanged.
	ErrRotationAborted = errors.New("vault: rotation aborted, store unchanged")
	// ErrInvalidKey is returned when a supplied master key is not 32
	// bytes after base64 decoding.
	ErrInvalidKey = errors.New("vault: master key must be 32 bytes")
)
