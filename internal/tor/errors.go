package tor

import "errors"

// Proxy errors.
var (
	// ErrProxyNotTor is returned when the configured proxy address responds
	// but does not speak SOCKS5 the way Tor does.
	ErrProxyNotTor = errors.New("proxy is not a Tor SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrInvalidProxyAddress is returned when an address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid address format: expected host:port")
)

// Observer errors.
var (
	// ErrObserveFailed wraps transport failures while querying the echo service.
	ErrObserveFailed = errors.New("failed to fetch IP address")

	// ErrUnexpectedStatus is returned when the echo service answers with a
	// non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status from IP echo service")

	// ErrEmptyAddress is returned when the echo service answers with an empty body.
	ErrEmptyAddress = errors.New("IP echo service returned an empty address")
)

// Control port errors.
var (
	// ErrSignalFailed wraps every failure of a NEWNYM request: connect,
	// authenticate, signal or a panic inside the control client.
	ErrSignalFailed = errors.New("failed to send NEWNYM signal")

	// ErrControlNotTor is returned when the control address answers but not
	// with the Tor control protocol.
	ErrControlNotTor = errors.New("control port does not speak the Tor control protocol")

	// ErrControlCannotConnect is returned when the control port refuses the connection.
	ErrControlCannotConnect = errors.New("cannot connect to Tor control port")

	// ErrControlTimeout is returned when the control port does not answer in time.
	ErrControlTimeout = errors.New("timeout talking to Tor control port")

	// ErrEmbeddedNotRunning is returned when an EmbeddedTor accessor needs a
	// running daemon.
	ErrEmbeddedNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus represents the result of checking the SOCKS5 proxy.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy is a working Tor SOCKS5 proxy.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the proxy answered but is not Tor.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates no connection could be established.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the check timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not Tor)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the matching error, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotTor
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}

// ControlStatus represents the result of checking the control port.
type ControlStatus int

const (
	// ControlStatusOK indicates the control port answered PROTOCOLINFO.
	ControlStatusOK ControlStatus = iota

	// ControlStatusWrongType indicates something else is listening.
	ControlStatusWrongType

	// ControlStatusCannotConnect indicates the port refused the connection.
	ControlStatusCannotConnect

	// ControlStatusTimeout indicates the check timed out.
	ControlStatusTimeout
)

// String returns a human-readable description of the control status.
func (s ControlStatus) String() string {
	switch s {
	case ControlStatusOK:
		return "OK"
	case ControlStatusWrongType:
		return "wrong type (not Tor)"
	case ControlStatusCannotConnect:
		return "cannot connect"
	case ControlStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the matching error, or nil if OK.
func (s ControlStatus) Error() error {
	switch s {
	case ControlStatusOK:
		return nil
	case ControlStatusWrongType:
		return ErrControlNotTor
	case ControlStatusCannotConnect:
		return ErrControlCannotConnect
	case ControlStatusTimeout:
		return ErrControlTimeout
	default:
		return errors.New("unknown control status")
	}
}
