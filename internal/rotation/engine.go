package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/ipchanger/internal/log"
	"github.com/nao1215/ipchanger/internal/metrics"
)

// DefaultMaxAttempts is the attempt budget used when WithMaxAttempts is not given.
const DefaultMaxAttempts = 5

// Engine drives the rotation protocol.
//
// Design decision: the Engine depends on the Observer and Controller
// interfaces only, not on the tor package. The CLI wires the SOCKS observer
// and the control port client; tests wire in-memory fakes and drive every
// outcome without a Tor daemon.
type Engine struct {
	observer   Observer
	controller Controller

	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	newID       func() string

	// mu serializes Rotate and Terminate. Two interleaved NEWNYM loops would
	// each see the other's address change and report it as their own.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts sets the attempt budget. Values below one make NewEngine fail.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		e.maxAttempts = n
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine. observer and controller are required.
//
// Design decision: NewEngine does not touch the network. Validation errors
// surface at construction, connection errors surface per attempt where they
// are recorded in the Result.
func NewEngine(observer Observer, controller Controller, opts ...Option) (*Engine, error) {
	if observer == nil || controller == nil {
		return nil, ErrNilCollaborator
	}

	e := &Engine{
		observer:    observer,
		controller:  controller,
		maxAttempts: DefaultMaxAttempts,
		logger:      log.Discard(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.maxAttempts < 1 {
		return nil, ErrInvalidMaxAttempts
	}
	return e, nil
}

// MaxAttempts returns the configured attempt budget.
func (e *Engine) MaxAttempts() int {
	return e.maxAttempts
}

// Rotate obtains a new exit address.
//
// When requestRotation is false Rotate does nothing and returns a skipped
// Result. Otherwise it reads the prior address once (a failed read leaves it
// empty) and then, for up to MaxAttempts attempts, sends NEWNYM and reads the
// address again. The first non-empty address that differs from the prior one
// ends the loop. If the budget runs out the Result has StatusExhausted and the
// error wraps ErrAttemptsExhausted.
//
// A canceled ctx stops the loop before the next attempt; the partial Result is
// returned together with ctx.Err().
func (e *Engine) Rotate(ctx context.Context, requestRotation bool) (*Result, error) {
	if !requestRotation {
		return &Result{Status: StatusSkipped}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result := &Result{
		ID:        e.newID(),
		StartedAt: e.now(),
	}
	logger := e.logger.With("rotation_id", result.ID)

	// An unreadable prior address is not fatal: any address observed later
	// then counts as a change.
	prior, err := e.observer.Observe(ctx)
	if err != nil {
		logger.Error("failed to read IP before rotating", "op", "rotate", "error", err)
		prior = ""
	}
	result.Prior = prior

	for index := range e.maxAttempts {
		// Checked before each attempt so an interrupt never sends another
		// NEWNYM.
		if err := ctx.Err(); err != nil {
			e.finish(result, StatusCanceled)
			logger.Error("rotation canceled", "op", "rotate", "attempts", len(result.Attempts), "error", err)
			return result, err
		}

		attempt := e.attempt(ctx, logger, index, prior)
		result.Attempts = append(result.Attempts, attempt)
		e.metrics.IncAttempt(attempt.Outcome.String())

		if attempt.Outcome == OutcomeChanged {
			result.Current = attempt.Candidate
			e.finish(result, StatusRotated)
			logger.Info("IP changed",
				"op", "rotate",
				"old_ip", prior.String(),
				"new_ip", result.Current.String(),
				"attempts", len(result.Attempts),
			)
			return result, nil
		}
	}

	e.finish(result, StatusExhausted)
	logger.Error("failed to change IP after multiple attempts",
		"op", "rotate",
		"old_ip", prior.String(),
		"attempts", len(result.Attempts),
	)
	return result, fmt.Errorf("%w (%d attempts)", ErrAttemptsExhausted, len(result.Attempts))
}

// attempt runs one signal-then-observe iteration and classifies it.
//
// Design decision: a failed signal or an empty observation consumes an
// attempt instead of aborting the rotation. Tor often needs a few seconds
// to build the new circuit, so the next attempt frequently succeeds.
func (e *Engine) attempt(ctx context.Context, logger *slog.Logger, index int, prior Address) Attempt {
	a := Attempt{Index: index}

	if err := e.controller.RequestNewIdentity(ctx); err != nil {
		a.Outcome = OutcomeSignalFailed
		a.Err = err
		logger.Error("error while changing IP", "op", "rotate", "attempt", index+1, "error", err)
		return a
	}

	candidate, err := e.observer.Observe(ctx)
	a.Candidate = candidate

	switch {
	case err != nil || candidate.IsEmpty():
		a.Outcome = OutcomeNoAddress
		a.Err = err
		logger.Error("no IP observed after NEWNYM", "op", "rotate", "attempt", index+1, "error", err)
	case candidate == prior:
		a.Outcome = OutcomeUnchanged
		logger.Warn("IP unchanged after NEWNYM", "op", "rotate", "attempt", index+1, "ip", candidate.String())
	default:
		a.Outcome = OutcomeChanged
	}
	return a
}

func (e *Engine) finish(result *Result, status Status) {
	result.Status = status
	result.FinishedAt = e.now()
	e.metrics.IncRotation(status.String())
	e.metrics.ObserveDuration(result.StartedAt, result.FinishedAt)
}

// Terminate sends the same NEWNYM primitive as a rotation attempt and closes
// the control session. Tor has no "disconnect" signal for a client; dropping
// the current circuits is the closest teardown.
func (e *Engine) Terminate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.controller.RequestNewIdentity(ctx); err != nil {
		e.logger.Error("error while terminating Tor circuit", "op", "terminate", "error", err)
		return err
	}
	e.logger.Info("terminated the Tor circuit", "op", "terminate")
	return nil
}

// Current reads the exit address once.
func (e *Engine) Current(ctx context.Context) (Address, error) {
	return e.observer.Observe(ctx)
}
