package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrEmptyProxyAddress is returned when no SOCKS proxy is configured and
	// the embedded daemon is not used.
	ErrEmptyProxyAddress = errors.New("proxy address is required")

	// ErrEmptyControlAddress is returned when no control port is configured
	// and the embedded daemon is not used.
	ErrEmptyControlAddress = errors.New("control address is required")

	// ErrConflictingAuth is returned when both a control password and a
	// cookie file are configured.
	ErrConflictingAuth = errors.New("conflicting control authentication: set either control_password or control_cookie, not both")

	// ErrInvalidMaxAttempts is returned when the attempt budget is below one.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be at least 1")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidSettle is returned when the settle pause is negative.
	ErrInvalidSettle = errors.New("invalid settle duration: must be non-negative")

	// ErrInvalidEchoURL is returned when the echo URL is not http(s).
	ErrInvalidEchoURL = errors.New("invalid echo URL: must be an http or https URL")

	// ErrInvalidGeoURL is returned when the geolocation URL is not http(s).
	ErrInvalidGeoURL = errors.New("invalid geolocation URL: must be an http or https URL")

	// ErrEmptyAuditFile is returned when auditing is enabled without a path.
	ErrEmptyAuditFile = errors.New("audit file path is required unless auditing is disabled")
)

// Config file errors.
var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidDuration is returned when a duration in the file cannot be parsed.
	ErrInvalidDuration = errors.New("invalid duration in configuration file")
)
