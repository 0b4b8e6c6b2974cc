package report

import (
	"fmt"
	"io"
)

// Writer renders rotation output.
type Writer interface {
	// WriteRotation outputs the result of one rotate command.
	WriteRotation(summary *RotationSummary) (int, error)

	// WriteHistory outputs the rotation history.
	WriteHistory(history *History) (int, error)
}

// Format names an output format.
type Format string

const (
	// FormatText is plain text.
	FormatText Format = "text"
	// FormatMarkdown is GitHub-flavored Markdown.
	FormatMarkdown Format = "markdown"
	// FormatJSON is indented JSON.
	FormatJSON Format = "json"
)

// NewWriter returns the Writer for format.
func NewWriter(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewSimpleWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	default:
		return nil, fmt.Errorf("%w: %q (expected text, markdown or json)", ErrUnknownFormat, format)
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
