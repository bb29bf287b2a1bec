package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it without knowing the domain.
type Kind string

const (
	KindUnknown                 Kind = "unknown"
	KindInvalidArgument         Kind = "invalid_argument"
	KindNotFound                Kind = "not_found"
	KindUnauthorized            Kind = "unauthorized"
	KindInsufficientPermission  Kind = "insufficient_permission"
	KindInvalidState            Kind = "invalid_state"
	KindInvalidConfirmationCode Kind = "invalid_confirmation_code"
	KindAlreadyExists           Kind = "already_exists"
	KindConflict                Kind = "conflict"
	KindInternal                Kind = "internal"
)

// Error is a domain error tagged with a Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns a sentinel-style error of the provided kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags cause with kind and message.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(message string) error {
	return New(KindNotFound, message)
}

func Unauthorized(message string) error {
	return New(KindUnauthorized, message)
}

func InsufficientPermission(message string) error {
	return New(KindInsufficientPermission, message)
}

func InvalidState(message string) error {
	return New(KindInvalidState, message)
}

func InvalidArgument(message string) error {
	return New(KindInvalidArgument, message)
}

func AlreadyExists(message string) error {
	return New(KindAlreadyExists, message)
}

func Conflict(message string) error {
	return New(KindConflict, message)
}

func Internal(message string) error {
	return New(KindInternal, message)
}

// KindOf returns the kind of the first tagged error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the provided kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Coded is implemented by service errors that expose a stable operation code.
type Coded interface {
	Code() string
}

// CodeOf returns the service code carried by err, if any.
func CodeOf(err error) string {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}
