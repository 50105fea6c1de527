package dispatch

import (
	"errors"

	"github.com/discoveryd/discoveryd/internal/cmdb"
	"github.com/discoveryd/discoveryd/internal/pluginmgr"
	"github.com/discoveryd/discoveryd/internal/registry"
	"github.com/discoveryd/discoveryd/internal/vault"
)

// Error is the JSON-RPC 2.0 error object shape.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeCancelled is the method-specific code the dispatcher returns
	// when a request's abort signal fires.
	CodeCancelled = -32800
)

// Application error range, above -32000.
const (
	CodeDuplicateRegistration = -32001
	CodeUnknownName           = -32002
	CodeIllegalState          = -32003
	CodeIntegrityError        = -32004
	CodeUnsigned              = -32005
	CodeBadSignature          = -32006
)

// ErrCancelled is returned by a handler (or synthesised by the
// dispatcher) when a request's context is cancelled mid-flight.
var ErrCancelled = errors.New("dispatch: request cancelled")

// translate maps a handler-returned error to a JSON-RPC error object.
// Protocol-level problems (bad params, unknown method) are expected to
// already arrive as *Error from the caller; this function only handles
// errors surfaced by registry/vault/pluginmgr/plugin handler calls.
func translate(err error) *Error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr
	}

	switch {
	case errors.Is(err, ErrCancelled):
		return &Error{Code: CodeCancelled, Message: "request cancelled"}
	case errors.Is(err, registry.ErrInvalidParams):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, registry.ErrInvalidSchema):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, registry.ErrDuplicate), errors.Is(err, vault.ErrDuplicate):
		return &Error{Code: CodeDuplicateRegistration, Message: err.Error()}
	case errors.Is(err, registry.ErrUnknown), errors.Is(err, vault.ErrUnknown), errors.Is(err, pluginmgr.ErrUnknownPlugin), errors.Is(err, cmdb.ErrUnknown):
		return &Error{Code: CodeUnknownName, Message: err.Error()}
	case errors.Is(err, cmdb.ErrInvalidGlob):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, vault.ErrRotationAborted):
		return &Error{Code: CodeInternalError, Message: err.Error(), Data: map[string]string{"subtype": "rotation_aborted"}}
	case errors.Is(err, pluginmgr.ErrIllegalState):
		return &Error{Code: CodeIllegalState, Message: err.Error()}
	case errors.Is(err, pluginmgr.ErrIntegrity), errors.Is(err, pluginmgr.ErrDrift):
		return &Error{Code: CodeIntegrityError, Message: err.Error(), Data: map[string]string{"subtype": "drift"}}
	case errors.Is(err, pluginmgr.ErrUnsigned):
		return &Error{Code: CodeUnsigned, Message: err.Error()}
	case errors.Is(err, pluginmgr.ErrBadSignature):
		return &Error{Code: CodeBadSignature, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error(), Data: map[string]string{"subtype": "external_failure"}}
	}
}
