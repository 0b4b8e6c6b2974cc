package tor

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckControlPort asks the control port for PROTOCOLINFO, which Tor answers
// before authentication, and reports whether a Tor control port is listening.
func CheckControlPort(ctx context.Context, address string) ControlStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ControlStatusTimeout
		}
		return ControlStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkTimeout)); err != nil {
		return ControlStatusCannotConnect
	}

	if _, err := conn.Write([]byte("PROTOCOLINFO 1\r\n")); err != nil {
		return ControlStatusCannotConnect
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		if isTimeout(err) {
			return ControlStatusTimeout
		}
		return ControlStatusWrongType
	}

	// "250-PROTOCOLINFO 1" on success, "5xx ..." if the daemon refuses.
	// Both prove a control port; anything else is a different service.
	if !strings.HasPrefix(line, "250") && !strings.HasPrefix(line, "5") {
		return ControlStatusWrongType
	}

	_, _ = conn.Write([]byte("QUIT\r\n")) //nolint:errcheck // best effort, the connection is closed next
	return ControlStatusOK
}

// ProbeReport is the result of Probe.
type ProbeReport struct {
	ProxyAddress   string
	ProxyStatus    ProxyStatus
	ControlAddress string
	ControlStatus  ControlStatus
}

// Healthy reports whether both ports look like Tor.
func (r ProbeReport) Healthy() bool {
	return r.ProxyStatus == ProxyStatusOK && r.ControlStatus == ControlStatusOK
}

// Err returns the first failure, proxy before control, or nil.
func (r ProbeReport) Err() error {
	if err := r.ProxyStatus.Error(); err != nil {
		return err
	}
	return r.ControlStatus.Error()
}

// Probe checks the SOCKS proxy and the control port concurrently.
func Probe(ctx context.Context, client *Client, controlAddress string) ProbeReport {
	report := ProbeReport{
		ProxyAddress:   client.ProxyAddress(),
		ControlAddress: controlAddress,
	}

	// The checks report through statuses, never through the group error, so
	// one failing check does not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		report.ProxyStatus = client.CheckConnection(ctx)
		return nil
	})
	g.Go(func() error {
		report.ControlStatus = CheckControlPort(ctx, controlAddress)
		return nil
	})
	_ = g.Wait() //nolint:errcheck // both goroutines return nil

	return report
}
