// Package ferrors defines the error taxonomy shared across the
// neurofeedback engine. Call sites wrap a sentinel with
// github.com/pkg/errors so callers can branch with errors.Is/As
// instead of matching strings.
package ferrors

import "github.com/pkg/errors"

// Sentinel errors, one per taxonomy row.
var (
	// ErrSourceUnavailable: pull source could not be resolved within timeout.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrIngestTransient: single chunk-pull failure, loop continues.
	ErrIngestTransient = errors.New("ingest transient error")
	// ErrIngestFatal: source died or stayed unhealthy past the transient threshold.
	ErrIngestFatal = errors.New("ingest fatal error")
	// ErrInsufficientData: buffer fill ratio below 0.9 at compute tick.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMissingChannel: a required frontal channel is absent.
	ErrMissingChannel = errors.New("missing channel")
	// ErrBudgetExceeded: a compute tick ran past its 100ms budget.
	ErrBudgetExceeded = errors.New("compute budget exceeded")
	// ErrRecorderIO: filesystem error while flushing a recording batch.
	ErrRecorderIO = errors.New("recorder io error")
	// ErrSessionConflict: session_start while active, or session_stop while inactive.
	ErrSessionConflict = errors.New("session conflict")
)

// Wrap attaches context to a sentinel error, preserving errors.Is/As.
func Wrap(sentinel error, context string) error {
	return errors.Wrap(sentinel, context)
}

// Wrapf is Wrap with a format string.
func Wrapf(sentinel error, format string, args ...any) error {
	return errors.Wrapf(sentinel, format, args...)
}

// Is reports whether err (or any error it wraps) is the given sentinel.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
