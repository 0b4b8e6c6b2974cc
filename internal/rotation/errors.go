package rotation

import "errors"

var (
	// ErrAttemptsExhausted is returned when every attempt finished without a
	// changed exit address.
	ErrAttemptsExhausted = errors.New("failed to change IP after multiple attempts")

	// ErrInvalidMaxAttempts is returned by NewEngine when the attempt budget is
	// smaller than one.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be at least 1")

	// ErrNilCollaborator is returned by NewEngine when the observer or the
	// controller is nil.
	ErrNilCollaborator = errors.New("observer and controller are required")
)
