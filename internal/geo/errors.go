package geo

import "errors"

var (
	// ErrLookupFailed wraps transport failures while querying the lookup service.
	ErrLookupFailed = errors.New("geolocation lookup failed")

	// ErrUnexpectedStatus is returned when the lookup service answers with a
	// status other than 200.
	ErrUnexpectedStatus = errors.New("unexpected status from geolocation service")

	// ErrMalformedResponse is returned when the body is not a JSONP-wrapped
	// JSON object.
	ErrMalformedResponse = errors.New("malformed geolocation response")

	// ErrEmptyAddress is returned when Lookup is called without an address.
	ErrEmptyAddress = errors.New("address is required")
)
