package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/ipchanger/internal/rotation"
)

// JSONWriter outputs reports in JSON format.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// jsonAttempt is an Attempt with the error flattened to a string.
type jsonAttempt struct {
	Index     int    `json:"index"`
	Outcome   string `json:"outcome"`
	Candidate string `json:"candidate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// jsonRotation is the wire form of a RotationSummary.
type jsonRotation struct {
	ID         string        `json:"id,omitempty"`
	Status     string        `json:"status"`
	OldIP      string        `json:"old_ip,omitempty"`
	NewIP      string        `json:"new_ip,omitempty"`
	Settled    string        `json:"settled_ip,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Attempts   []jsonAttempt `json:"attempts"`
	Recorded   bool          `json:"recorded"`
	Location   any           `json:"location,omitempty"`
	Geohash    string        `json:"geohash,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func newJSONRotation(summary *RotationSummary) jsonRotation {
	result := summary.Result
	out := jsonRotation{
		ID:         result.ID,
		Status:     result.Status.String(),
		OldIP:      result.Prior.String(),
		NewIP:      result.Current.String(),
		Settled:    summary.Settled.String(),
		StartedAt:  timePtr(result.StartedAt),
		FinishedAt: timePtr(result.FinishedAt),
		Attempts:   make([]jsonAttempt, 0, len(result.Attempts)),
		Recorded:   summary.Recorded,
	}
	for _, a := range result.Attempts {
		ja := jsonAttempt{Index: a.Index, Outcome: a.Outcome.String(), Candidate: a.Candidate.String()}
		if a.Err != nil {
			ja.Error = a.Err.Error()
		}
		out.Attempts = append(out.Attempts, ja)
	}
	if summary.Location != nil {
		out.Location = summary.Location
		out.Geohash = summary.Location.Geohash(0)
	}
	return out
}

// WriteRotation outputs a rotation summary as JSON.
func (w *JSONWriter) WriteRotation(summary *RotationSummary) (int, error) {
	if summary == nil || summary.Result == nil {
		return 0, ErrNilResult
	}
	if summary.Result.Status == rotation.StatusSkipped {
		return w.writeJSON(jsonRotation{Status: summary.Result.Status.String(), Attempts: []jsonAttempt{}})
	}
	return w.writeJSON(newJSONRotation(summary))
}

// WriteHistory outputs the rotation history as JSON.
func (w *JSONWriter) WriteHistory(history *History) (int, error) {
	return w.writeJSON(history)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
