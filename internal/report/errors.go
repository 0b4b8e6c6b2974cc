package report

import "errors"

var (
	// ErrUnknownFormat is returned by NewWriter for an unsupported format.
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrNilResult is returned when a RotationSummary has no result.
	ErrNilResult = errors.New("rotation summary has no result")
)
