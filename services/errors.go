package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every error a service returns for a caller mistake wraps exactly one of these;
// anything else is an internal failure.
var (
	ErrValidation    = errors.New("validation error")
	ErrPermission    = errors.New("permission denied")
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state")
	ErrInvalidAction = errors.New("invalid action")
	ErrLimitExceeded = errors.New("plan limit exceeded")
	ErrConflict      = errors.New("conflict")
)

// Error carries a message meant for the client next to its kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
