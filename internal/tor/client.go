package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkTimeout bounds the connectivity checks. They only exchange a few
// bytes with a local daemon.
const checkTimeout = 2 * time.Second

// Client routes connections through the Tor SOCKS5 proxy.
//
// Design decision: the SOCKS side uses golang.org/x/net/proxy rather than
// tornago. Observations are plain HTTP requests, and the proxy dialer plugs
// straight into http.Transport. tornago is used for the control port only.
type Client struct {
	proxyAddress string
	dialer       proxy.Dialer
	timeout      time.Duration
}

// NewClient creates a Client for the SOCKS5 proxy at proxyAddress
// ("host:port"). timeout is the per-request timeout of HTTP clients built by
// NewHTTPClient.
//
// Design decision: NewClient does not connect to the proxy because:
//  1. The client can be built while Tor is down
//  2. Commands decide how to react to an unreachable proxy; rotate keeps
//     going, doctor reports it
//  3. Tests can build a client against a closed port
//
// Call CheckConnection to test the proxy.
func NewClient(proxyAddress string, timeout time.Duration) (*Client, error) {
	if !isValidAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	// Tor's SOCKS port does not require authentication.
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		timeout:      timeout,
	}, nil
}

// isValidAddress reports whether address is "host:port" with a non-empty
// host and a port in 1..65535.
func isValidAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5ProbeHost is used for the CONNECT step of CheckConnection. Any
	// reply (success or a SOCKS error code) proves the proxy handled it.
	socks5ProbeHost = "checkip.amazonaws.com"
	socks5ProbePort = 80
)

// CheckConnection performs a SOCKS5 greeting and CONNECT against the proxy
// and reports whether it behaves like Tor.
//
// Design decision: the handshake is written by hand instead of dialing
// through x/net/proxy, because the proxy dialer collapses every failure into
// one error. Reading the raw replies lets doctor tell "nothing listening"
// from "something listening that is not a SOCKS5 proxy".
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, "no authentication".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	// 0xFF means "no acceptable method": the proxy wants credentials, Tor never does.
	if authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00, // reserved
		socks5AddrTypeDomID,
		byte(len(socks5ProbeHost)),
	}
	connectReq = append(connectReq, socks5ProbeHost...)
	connectReq = append(connectReq, byte(socks5ProbePort>>8), byte(socks5ProbePort&0xFF))

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// version, reply, reserved, address type
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewHTTPClient creates an HTTP client whose connections go through Tor.
//
// Design decisions:
//   - Keep-alives are disabled. NEWNYM only affects streams opened after the
//     signal, so a pooled connection would keep reporting the old exit address.
//   - Compression is disabled; the echo service answers with a few bytes.
//   - TLS is verified. The echo and geolocation endpoints are clearnet hosts.
//   - The client timeout is the per-request timeout. Fresh circuits after
//     NEWNYM are slow, so the default is generous.
func (c *Client) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:         c.DialContext,
		DisableKeepAlives:   true,
		DisableCompression:  true,
		TLSHandshakeTimeout: 30 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
}

// DialContext establishes a connection through Tor, honoring ctx when the
// underlying dialer supports it.
//
// Design decision: the SOCKS5 dialer from x/net/proxy implements
// ContextDialer, so the fallback goroutine only runs for other dialers. When
// ctx wins the race the late connection is closed so it does not leak.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		// Close the connection if the dial finishes after we gave up.
		go func() {
			if result := <-resultCh; result.conn != nil {
				_ = result.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}
