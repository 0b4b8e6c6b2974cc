package audit

import "errors"

var (
	// ErrEmptyPath is returned when a CSVStore is created without a path.
	ErrEmptyPath = errors.New("audit file path is required")

	// ErrMalformedRow is returned by ReadAll for a row that cannot be parsed.
	ErrMalformedRow = errors.New("malformed audit row")

	// ErrHeaderMismatch is returned when an existing file does not start
	// with Header.
	ErrHeaderMismatch = errors.New("audit file header does not match")
)
