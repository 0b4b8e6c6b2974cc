package tor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tornago"

	"github.com/nao1215/ipchanger/internal/log"
)

const (
	// DefaultControlAddress is the standard Tor control port.
	DefaultControlAddress = "127.0.0.1:9051"

	// DefaultControlTimeout bounds one control session.
	DefaultControlTimeout = 10 * time.Second
)

// Authenticator supplies control-port credentials. None is configured by
// default; build one with PasswordAuth or CookieAuth.
type Authenticator struct {
	method string
	auth   tornago.ControlAuth
}

// PasswordAuth authenticates with the password matching the daemon's
// HashedControlPassword.
func PasswordAuth(password string) *Authenticator {
	return &Authenticator{method: "password", auth: tornago.ControlAuthFromPassword(password)}
}

// CookieAuth authenticates with the contents of the daemon's
// control_auth_cookie file.
func CookieAuth(path string) *Authenticator {
	return &Authenticator{method: "cookie", auth: tornago.ControlAuthFromCookie(path)}
}

// Method returns "password" or "cookie". It never exposes the credential.
func (a *Authenticator) Method() string {
	return a.method
}

// controlSession is the part of *tornago.ControlClient the controller uses.
type controlSession interface {
	Authenticate() error
	NewIdentity(ctx context.Context) error
	Close() error
}

// ControlDialer opens a control session.
type ControlDialer func(address string, auth tornago.ControlAuth, timeout time.Duration) (controlSession, error)

func dialTornago(address string, auth tornago.ControlAuth, timeout time.Duration) (controlSession, error) {
	client, err := tornago.NewControlClient(address, auth, timeout)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// CircuitController sends NEWNYM over the control port.
// It implements rotation.Controller.
type CircuitController struct {
	address       string
	authenticator *Authenticator
	timeout       time.Duration
	dial          ControlDialer
	logger        *slog.Logger
}

// ControllerOption configures a CircuitController.
type ControllerOption func(*CircuitController)

// WithAuthenticator enables control-port authentication.
func WithAuthenticator(a *Authenticator) ControllerOption {
	return func(c *CircuitController) {
		c.authenticator = a
	}
}

// WithControlTimeout sets the timeout of each control session.
func WithControlTimeout(timeout time.Duration) ControllerOption {
	return func(c *CircuitController) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithControlLogger sets the diagnostic logger.
func WithControlLogger(logger *slog.Logger) ControllerOption {
	return func(c *CircuitController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithControlDialer replaces the tornago dialer.
func WithControlDialer(dial ControlDialer) ControllerOption {
	return func(c *CircuitController) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// NewCircuitController creates a controller for the control port at address.
func NewCircuitController(address string, opts ...ControllerOption) (*CircuitController, error) {
	if !isValidAddress(address) {
		return nil, ErrInvalidProxyAddress
	}

	c := &CircuitController{
		address: address,
		timeout: DefaultControlTimeout,
		dial:    dialTornago,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Address returns the control port address.
func (c *CircuitController) Address() string {
	return c.address
}

// RequestNewIdentity opens a session, authenticates if an Authenticator is
// configured, sends NEWNYM and closes the session. The session never
// outlives the call. Every failure, including a panic inside the control
// client, is returned wrapped in ErrSignalFailed.
func (c *CircuitController) RequestNewIdentity(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: control client panicked: %v", ErrSignalFailed, r)
		}
		if err != nil {
			c.logger.Error("failed to request new identity", "op", "request_new_identity", "control", c.address, "error", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSignalFailed, err)
	}

	var auth tornago.ControlAuth
	if c.authenticator != nil {
		auth = c.authenticator.auth
	}

	session, err := c.dial(c.address, auth, c.timeout)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %w", ErrSignalFailed, c.address, err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			c.logger.Warn("failed to close control session", "op", "request_new_identity", "error", closeErr)
		}
	}()

	if c.authenticator != nil {
		if err := session.Authenticate(); err != nil {
			return fmt.Errorf("%w: authenticate (%s): %w", ErrSignalFailed, c.authenticator.Method(), err)
		}
	}

	if err := session.NewIdentity(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSignalFailed, err)
	}

	c.logger.Debug("NEWNYM accepted", "op", "request_new_identity", "control", c.address)
	return nil
}
