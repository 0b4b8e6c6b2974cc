package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "ipchanger"

	// DefaultProxyAddress is the Tor SOCKS5 port. 127.0.0.1 is used instead
	// of localhost so the address never resolves to ::1.
	DefaultProxyAddress = "127.0.0.1:9050"

	// DefaultControlAddress is the Tor control port.
	DefaultControlAddress = "127.0.0.1:9051"

	// DefaultEchoURL answers with the caller's address as plain text.
	DefaultEchoURL = "http://checkip.amazonaws.com"

	// DefaultGeoURL is the geolocation service base URL.
	DefaultGeoURL = "https://geolocation-db.com"

	// DefaultMaxAttempts is the number of NEWNYM/observe rounds per rotation.
	DefaultMaxAttempts = 5

	// DefaultRequestTimeout bounds each HTTP request through Tor. Circuits
	// are slow to build right after NEWNYM.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultControlTimeout bounds each control port session.
	DefaultControlTimeout = 10 * time.Second

	// DefaultSettle is the pause between terminating the circuit and the
	// final observation in the rotate command.
	DefaultSettle = 10 * time.Second

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// ControlPasswordEnv is read by ApplyEnv for the control port password,
	// so it does not have to be stored in the config file.
	ControlPasswordEnv = "IPCHANGER_CONTROL_PASSWORD"

	// ControlCookieEnv is read by ApplyEnv for the control auth cookie path.
	ControlCookieEnv = "IPCHANGER_CONTROL_COOKIE"
)

// Config holds all ipchanger options. It is built from NewConfig, then the
// config file, then the environment, then CLI flags, and passed down
// explicitly.
type Config struct {
	// ProxyAddress is the Tor SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// ControlAddress is the Tor control port in "host:port" format.
	ControlAddress string

	// ControlPassword authenticates to the control port. Mutually exclusive
	// with ControlCookie. Empty means no authentication.
	ControlPassword string

	// ControlCookie is the path of Tor's control_auth_cookie file.
	ControlCookie string

	// EchoURL is the IP echo service.
	EchoURL string

	// GeoURL is the geolocation service base URL.
	GeoURL string

	// MaxAttempts is the attempt budget of one rotation.
	MaxAttempts int

	// RequestTimeout bounds each HTTP request through Tor.
	RequestTimeout time.Duration

	// ControlTimeout bounds each control port session.
	ControlTimeout time.Duration

	// Settle is the pause before the final observation of the rotate command.
	Settle time.Duration

	// Embedded starts a private Tor daemon instead of using ProxyAddress and
	// ControlAddress.
	Embedded bool

	// TorStartupTimeout bounds the embedded daemon bootstrap.
	TorStartupTimeout time.Duration

	// LogFile is the diagnostic sink.
	LogFile string

	// LogJSON writes the diagnostic sink as JSON lines.
	LogJSON bool

	// Verbose lowers the diagnostic level to debug and mirrors it to stderr.
	Verbose bool

	// AuditFile is the CSV audit log.
	AuditFile string

	// DBDir is the directory of the SQLite history. Empty disables it.
	DBDir string

	// MetricsFile is a Prometheus textfile written after each rotation.
	// Empty disables it.
	MetricsFile string

	// NoAudit skips the audit stores.
	NoAudit bool

	// ConfigFilePath is the explicit --config path, if any.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		ProxyAddress:      DefaultProxyAddress,
		ControlAddress:    DefaultControlAddress,
		EchoURL:           DefaultEchoURL,
		GeoURL:            DefaultGeoURL,
		MaxAttempts:       DefaultMaxAttempts,
		RequestTimeout:    DefaultRequestTimeout,
		ControlTimeout:    DefaultControlTimeout,
		Settle:            DefaultSettle,
		TorStartupTimeout: DefaultTorStartupTimeout,
		LogFile:           DefaultLogFile(),
		AuditFile:         DefaultAuditFile(),
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for ipchanger.
// On Linux: ~/.local/share/ipchanger
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for ipchanger.
// On Linux: ~/.config/ipchanger
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGStateDir returns the XDG state directory for ipchanger.
// On Linux: ~/.local/state/ipchanger
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultLogFile returns the default diagnostic sink path.
func DefaultLogFile() string {
	return filepath.Join(XDGStateDir(), "ipchanger.log")
}

// DefaultAuditFile returns the default audit CSV path.
func DefaultAuditFile() string {
	return filepath.Join(XDGDataDir(), "ip_changes.csv")
}

// AuthMethod returns "password", "cookie" or "none".
func (c *Config) AuthMethod() string {
	switch {
	case c.ControlPassword != "":
		return "password"
	case c.ControlCookie != "":
		return "cookie"
	default:
		return "none"
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !c.Embedded {
		if strings.TrimSpace(c.ProxyAddress) == "" {
			return ErrEmptyProxyAddress
		}
		if strings.TrimSpace(c.ControlAddress) == "" {
			return ErrEmptyControlAddress
		}
	}

	if c.ControlPassword != "" && c.ControlCookie != "" {
		return ErrConflictingAuth
	}

	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.RequestTimeout <= 0 || c.ControlTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Embedded && c.TorStartupTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Settle < 0 {
		return ErrInvalidSettle
	}

	if !isHTTPURL(c.EchoURL) {
		return ErrInvalidEchoURL
	}
	if !isHTTPURL(c.GeoURL) {
		return ErrInvalidGeoURL
	}

	if !c.NoAudit && c.AuditFile == "" {
		return ErrEmptyAuditFile
	}

	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
