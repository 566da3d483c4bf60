// Package apperr defines the error kinds surfaced by provisioning operations.
//
// Every failure of the engine carries exactly one Kind. Callers branch on it
// with errors.Is against the exported sentinels, which match by kind through
// any amount of fmt.Errorf("%w") wrapping:
//
//	if errors.Is(err, apperr.ErrPoolExhausted) { ... }
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAddressUnavailable     Kind = "address_unavailable"
	KindPoolExhausted          Kind = "pool_exhausted"
	KindKeyGenerationFailed    Kind = "key_generation_failed"
	KindInterfaceToolFailed    Kind = "interface_tool_failed"
	KindInterfaceToolTimeout   Kind = "interface_tool_timeout"
	KindPeerNotFound           Kind = "peer_not_found"
	KindInterfaceNotConfigured Kind = "interface_not_configured"
	KindInvalidArgument        Kind = "invalid_argument"
	KindConflict               Kind = "conflict"
	KindInternal               Kind = "internal"
)

// Sentinels for errors.Is.
var (
	ErrAddressUnavailable     = &Error{Kind: KindAddressUnavailable, Msg: "address unavailable"}
	ErrPoolExhausted          = &Error{Kind: KindPoolExhausted, Msg: "address pool exhausted"}
	ErrKeyGenerationFailed    = &Error{Kind: KindKeyGenerationFailed, Msg: "key generation failed"}
	ErrInterfaceToolFailed    = &Error{Kind: KindInterfaceToolFailed, Msg: "interface tool failed"}
	ErrInterfaceToolTimeout   = &Error{Kind: KindInterfaceToolTimeout, Msg: "interface tool timed out"}
	ErrPeerNotFound           = &Error{Kind: KindPeerNotFound, Msg: "peer not found"}
	ErrInterfaceNotConfigured = &Error{Kind: KindInterfaceNotConfigured, Msg: "interface not configured"}
	ErrInvalidArgument        = &Error{Kind: KindInvalidArgument, Msg: "invalid argument"}
	ErrConflict               = &Error{Kind: KindConflict, Msg: "conflict"}
)

// Error is a kinded error with a human-readable reason and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to the status used by the HTTP adapter.
func HTTPStatus(k Kind) int {
	switch k {
	case KindAddressUnavailable, KindConflict:
		return http.StatusConflict
	case KindPoolExhausted:
		return http.StatusServiceUnavailable
	case KindPeerNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindInterfaceToolTimeout:
		return http.StatusGatewayTimeout
	case KindKeyGenerationFailed, KindInterfaceToolFailed:
		return http.StatusBadGateway
	case KindInterfaceNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
