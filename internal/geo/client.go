package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nao1215/ipchanger/internal/log"
)

// DefaultBaseURL is the geolocation service.
const DefaultBaseURL = "https://geolocation-db.com"

// maxBodySize caps the lookup response.
const maxBodySize = 64 * 1024

// HTTPDoer is the subset of *http.Client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries the geolocation service.
type Client struct {
	doer    HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client. A nil doer uses http.DefaultClient.
func NewClient(doer HTTPDoer, opts ...Option) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	c := &Client{
		doer:    doer,
		baseURL: DefaultBaseURL,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches the location of address.
func (c *Client) Lookup(ctx context.Context, address string) (*Location, error) {
	loc, err := c.lookup(ctx, address)
	if err != nil {
		c.logger.Error("failed to look up geolocation", "op", "geo_lookup", "ip", address, "error", err)
		return nil, err
	}
	return loc, nil
}

func (c *Client) lookup(ctx context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrEmptyAddress
	}

	endpoint := c.baseURL + "/jsonp/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	return Parse(body)
}

// StripJSONP removes the callback wrapper from a JSONP body and returns the
// JSON inside: everything before the first "(" is dropped, as are trailing
// ")" and ";" characters.
func StripJSONP(body []byte) ([]byte, error) {
	open := bytes.IndexByte(body, '(')
	if open < 0 {
		return nil, fmt.Errorf("%w: no JSONP wrapper", ErrMalformedResponse)
	}
	inner := bytes.TrimSpace(body[open+1:])
	inner = bytes.TrimRight(inner, ");\r\n\t ")
	if len(inner) == 0 {
		return nil, fmt.Errorf("%w: empty JSONP payload", ErrMalformedResponse)
	}
	return inner, nil
}

// Parse decodes a JSONP lookup body.
func Parse(body []byte) (*Location, error) {
	payload, err := StripJSONP(body)
	if err != nil {
		return nil, err
	}

	var loc Location
	if err := json.Unmarshal(payload, &loc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return &loc, nil
}
