package rotation

import (
	"context"
	"time"
)

// Address is an exit address as reported by the IP-echo service.
// Only equality is meaningful; the empty Address means nothing was observed.
type Address string

// String returns the address as a string.
func (a Address) String() string {
	return string(a)
}

// IsEmpty reports whether no address was observed.
func (a Address) IsEmpty() bool {
	return a == ""
}

// Observer reads the current exit address. Implementations must return an
// error instead of panicking on any transport failure.
type Observer interface {
	Observe(ctx context.Context) (Address, error)
}

// Controller asks Tor for a new circuit. Each call opens and closes its own
// control session.
type Controller interface {
	RequestNewIdentity(ctx context.Context) error
}

// Outcome classifies a single attempt.
type Outcome int

const (
	// OutcomeChanged means a non-empty address different from the prior one was observed.
	OutcomeChanged Outcome = iota

	// OutcomeUnchanged means the signal was sent but the observed address equals the prior one.
	OutcomeUnchanged

	// OutcomeNoAddress means the signal was sent but no address could be observed.
	OutcomeNoAddress

	// OutcomeSignalFailed means the NEWNYM signal could not be delivered.
	OutcomeSignalFailed
)

// String returns the metric/log label of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeChanged:
		return "changed"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeNoAddress:
		return "no_address"
	case OutcomeSignalFailed:
		return "signal_failed"
	default:
		return "unknown"
	}
}

// Attempt records one iteration of the rotation loop.
type Attempt struct {
	// Index is 0-based and always smaller than the engine's max attempts.
	Index int

	// Outcome classifies the attempt.
	Outcome Outcome

	// Candidate is the address observed after the signal, if any.
	Candidate Address

	// Err is the collaborator error for OutcomeSignalFailed and OutcomeNoAddress.
	Err error
}

// Status is the final state of a Rotate call.
type Status int

const (
	// StatusSkipped means rotation was not requested; nothing was executed.
	StatusSkipped Status = iota

	// StatusRotated means a new, verified exit address was obtained.
	StatusRotated

	// StatusExhausted means every attempt failed to produce a changed address.
	StatusExhausted

	// StatusCanceled means the context ended before the attempt budget was used.
	StatusCanceled
)

// String returns the metric/log label of the status.
func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusRotated:
		return "rotated"
	case StatusExhausted:
		return "exhausted"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Rotate call. The Engine keeps no reference to
// it after returning.
type Result struct {
	// ID identifies the rotation across the diagnostic log, the audit CSV and
	// the history database. Empty for skipped rotations.
	ID string

	// Status is the final state.
	Status Status

	// Prior is the address observed before the first attempt. It may be empty.
	Prior Address

	// Current is the new address. It is set only when Status is StatusRotated.
	Current Address

	// Attempts lists every attempt in execution order.
	Attempts []Attempt

	// StartedAt is taken before the prior observation.
	StartedAt time.Time

	// FinishedAt is taken when the result is decided.
	FinishedAt time.Time
}

// Rotated reports whether a verified new address was obtained.
func (r *Result) Rotated() bool {
	return r != nil && r.Status == StatusRotated
}

// Duration returns the wall time spent in the Rotate call.
func (r *Result) Duration() time.Duration {
	if r == nil || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
