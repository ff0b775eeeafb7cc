package wizard

import "errors"

var (
	// ErrValidation marks malformed caller input; surfaced immediately,
	// never retried.
	ErrValidation = errors.New("validation error")

	// ErrIterations marks exhaustion of the per-turn provider round-trip
	// ceiling; the caller should retry with a narrower request.
	ErrIterations = errors.New("iteration limit reached")
)
