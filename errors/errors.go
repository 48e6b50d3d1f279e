// Package errors defines the failure kinds surfaced by the chat core.
// Every error returned to a caller wraps exactly one of the kind sentinels,
// so transports can map the kind with errors.Is while keeping the
// human-readable reason.
package errors

import "fmt"

var (
	ErrValidation = fmt.Errorf("validation failed")
	ErrNotFound   = fmt.Errorf("not found")
	ErrForbidden  = fmt.Errorf("forbidden")
	ErrConflict   = fmt.Errorf("conflict")
)

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Forbidden(format string, args ...any) error {
	return wrap(ErrForbidden, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
