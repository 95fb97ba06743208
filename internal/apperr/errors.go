package apperr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Callers classify failures with errors.Is instead of
// matching on message text.
var (
	// ErrUnauthorized — missing or wrong shared secret, rejected before
	// any pipeline logic runs.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrProvider — any upstream adapter failure: network, quota,
	// non-success status, malformed response.
	ErrProvider = errors.New("provider error")

	// ErrEmptyResult — the provider call succeeded but produced no usable
	// content. Recoverable for transcription (treated as empty text).
	ErrEmptyResult = errors.New("empty result")

	// ErrInternal — unexpected local fault, e.g. temp-file I/O.
	ErrInternal = errors.New("internal error")
)

func Provider(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrProvider, err)
}

func Providerf(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrProvider, fmt.Sprintf(format, args...))
}

func Internal(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrInternal, err)
}
