package tor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nao1215/ipchanger/internal/log"
	"github.com/nao1215/ipchanger/internal/rotation"
)

// DefaultEchoURL answers with the caller's address as plain text.
const DefaultEchoURL = "http://checkip.amazonaws.com"

// maxEchoBodySize caps the echo response. An address is at most 45 bytes;
// anything much larger is not an echo answer.
const maxEchoBodySize = 1024

// HTTPDoer is the subset of *http.Client used by the observer and the geo client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// IPObserver reads the current exit address through the Tor proxy.
// It implements rotation.Observer.
type IPObserver struct {
	client  HTTPDoer
	echoURL string
	logger  *slog.Logger
}

// ObserverOption configures an IPObserver.
type ObserverOption func(*IPObserver)

// WithEchoURL sets the echo endpoint.
func WithEchoURL(url string) ObserverOption {
	return func(o *IPObserver) {
		if url != "" {
			o.echoURL = url
		}
	}
}

// WithObserverLogger sets the diagnostic logger.
func WithObserverLogger(logger *slog.Logger) ObserverOption {
	return func(o *IPObserver) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewIPObserver creates an IPObserver. client should route through Tor,
// normally (*Client).NewHTTPClient().
func NewIPObserver(client HTTPDoer, opts ...ObserverOption) *IPObserver {
	o := &IPObserver{
		client:  client,
		echoURL: DefaultEchoURL,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Observe performs one query against the echo service and returns the
// trimmed body. Every failure is logged and returned as an error.
func (o *IPObserver) Observe(ctx context.Context) (rotation.Address, error) {
	addr, err := o.observe(ctx)
	if err != nil {
		o.logger.Error("failed to fetch IP address", "op", "observe", "url", o.echoURL, "error", err)
		return "", err
	}
	o.logger.Debug("observed IP address", "op", "observe", "ip", addr.String())
	return addr, nil
}

func (o *IPObserver) observe(ctx context.Context) (rotation.Address, error) {
	if o.client == nil {
		return "", fmt.Errorf("%w: no HTTP client configured", ErrObserveFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.echoURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrObserveFailed, err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrObserveFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEchoBodySize))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrObserveFailed, err)
	}

	addr := strings.TrimSpace(string(body))
	if addr == "" {
		return "", ErrEmptyAddress
	}
	return rotation.Address(addr), nil
}
