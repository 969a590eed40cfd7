package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Callers match with errors.Is;
// wrapping keeps the operation context.
var (
	// ErrValidation marks malformed or missing required input. Surfaced to
	// the initiating actor, never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced document that does not exist at
	// operation time.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state-machine violation, such as accepting a job
	// that already has a worker. The underlying race is inherent, so the
	// caller is expected to re-read rather than retry blindly.
	ErrConflict = errors.New("conflict")

	// ErrBackendUnavailable marks an unreachable store or geocoder. Job
	// creation falls back to synthetic coordinates; everything else
	// surfaces it for caller-driven retry.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted reason.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Unavailablef wraps ErrBackendUnavailable with a formatted reason.
func Unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrBackendUnavailable}, args...)...)
}
