package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by workflow operations. Callers branch with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("concurrent modification")
)

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotFound          ErrorKind = "not_found"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindValidation        ErrorKind = "validation"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may retry once with a fresh read.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

func invalidTransition(op Operation, from Status) error {
	return fmt.Errorf("%w: cannot %s change request in status %s", ErrInvalidTransition, op.verb(), from.Label())
}

// Unauthorized wraps ErrUnauthorized with a reason.
func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// Invalid wraps ErrValidation with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
