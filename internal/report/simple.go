package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/ipchanger/internal/rotation"
)

// SimpleWriter outputs human-readable text for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds the per-attempt breakdown and the row hashes.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WriteRotation outputs a rotation summary.
func (w *SimpleWriter) WriteRotation(summary *RotationSummary) (int, error) {
	if summary == nil || summary.Result == nil {
		return 0, ErrNilResult
	}
	result := summary.Result

	var sb strings.Builder
	w.writeBanner(&sb, "IDENTITY ROTATION")

	if result.Status == rotation.StatusSkipped {
		sb.WriteString("Status:       skipped (rotation not requested)\n")
		w.writeRule(&sb, "=")
		return w.output.Write([]byte(sb.String()))
	}

	sb.WriteString(fmt.Sprintf("Rotation ID:  %s\n", orDash(result.ID)))
	sb.WriteString(fmt.Sprintf("Status:       %s\n", result.Status))
	sb.WriteString(fmt.Sprintf("Old IP:       %s\n", orDash(result.Prior.String())))
	sb.WriteString(fmt.Sprintf("New IP:       %s\n", orDash(result.Current.String())))
	sb.WriteString(fmt.Sprintf("Attempts:     %d\n", len(result.Attempts)))
	sb.WriteString(fmt.Sprintf("Started:      %s\n", formatTime(result.StartedAt)))
	sb.WriteString(fmt.Sprintf("Finished:     %s\n", formatTime(result.FinishedAt)))
	sb.WriteString(fmt.Sprintf("Duration:     %s\n", formatDuration(result.Duration())))

	if summary.Location != nil {
		location := summary.Location.String()
		if hash := summary.Location.Geohash(0); hash != "" {
			location += " [geohash " + hash + "]"
		}
		sb.WriteString(fmt.Sprintf("Location:     %s\n", location))
	}
	if !summary.Settled.IsEmpty() {
		sb.WriteString(fmt.Sprintf("After settle: %s\n", summary.Settled))
	}
	if summary.Recorded {
		sb.WriteString("Audit:        recorded\n")
	} else {
		sb.WriteString("Audit:        not recorded\n")
	}

	if w.verbose && len(result.Attempts) > 0 {
		sb.WriteString("\n")
		w.writeSection(&sb, "ATTEMPTS")
		for _, a := range result.Attempts {
			line := fmt.Sprintf("  #%d %-14s %s", a.Index+1, a.Outcome, orDash(a.Candidate.String()))
			if a.Err != nil {
				line += "  (" + a.Err.Error() + ")"
			}
			sb.WriteString(line + "\n")
		}
	}

	sb.WriteString("\n")
	w.writeRule(&sb, "=")
	return w.output.Write([]byte(sb.String()))
}

// WriteHistory outputs the rotation history.
func (w *SimpleWriter) WriteHistory(history *History) (int, error) {
	var sb strings.Builder
	w.writeBanner(&sb, "ROTATION HISTORY")

	sb.WriteString(fmt.Sprintf("Generated:    %s\n", formatTime(history.GeneratedAt)))
	sb.WriteString(fmt.Sprintf("Chain:        %s\n\n", chainText(history)))

	w.writeSection(&sb, "SUMMARY")
	for _, status := range history.statusOrder() {
		sb.WriteString(fmt.Sprintf("  %-10s %d\n", strings.ToUpper(status)+":", history.Counts[status]))
	}
	sb.WriteString(fmt.Sprintf("  %-10s %d rotations\n\n", "TOTAL:", history.Total()))

	w.writeSection(&sb, "ROTATIONS")
	if len(history.Rotations) == 0 {
		sb.WriteString("  No rotations recorded\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("  %-23s  %-15s  %-15s  %-9s  %s\n", "Started", "Old IP", "New IP", "Status", "Attempts"))
		for _, rec := range history.Rotations {
			sb.WriteString(fmt.Sprintf("  %-23s  %-15s  %-15s  %-9s  %d\n",
				formatTime(rec.StartedAt), orDash(rec.OldIP), orDash(rec.NewIP), rec.Status, rec.Attempts))
			if w.verbose {
				sb.WriteString(fmt.Sprintf("    id=%s hash=%s\n", rec.RotationID, rec.Hash))
			}
		}
		sb.WriteString("\n")
	}

	w.writeRule(&sb, "=")
	return w.output.Write([]byte(sb.String()))
}

func chainText(history *History) string {
	switch {
	case history.ChainError != "":
		return "BROKEN - " + history.ChainError
	case history.Verified != nil:
		return fmt.Sprintf("verified (%d rows)", *history.Verified)
	default:
		return "not checked (use --verify)"
	}
}

func (w *SimpleWriter) writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	w.writeRule(sb, "=")
	pad := (70 - len(title)) / 2
	sb.WriteString(strings.Repeat(" ", max(pad, 0)) + title + "\n")
	w.writeRule(sb, "=")
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	w.writeRule(sb, "-")
	sb.WriteString(title + "\n")
	w.writeRule(sb, "-")
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeRule(sb *strings.Builder, char string) {
	sb.WriteString(strings.Repeat(char, 70))
	sb.WriteString("\n")
}
