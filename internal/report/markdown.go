package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/ipchanger/internal/rotation"
)

// MarkdownWriter outputs GitHub-flavored Markdown via nao1215/markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteRotation outputs a rotation summary.
func (w *MarkdownWriter) WriteRotation(summary *RotationSummary) (int, error) {
	if summary == nil || summary.Result == nil {
		return 0, ErrNilResult
	}
	result := summary.Result

	md := markdown.NewMarkdown(w.output)
	md.H1("Identity Rotation")
	md.PlainText("")

	rows := [][]string{
		{"Rotation ID", code(result.ID)},
		{"Status", statusBadge(result.Status.String())},
		{"Old IP", code(result.Prior.String())},
		{"New IP", code(result.Current.String())},
		{"Attempts", strconv.Itoa(len(result.Attempts))},
		{"Started", formatTime(result.StartedAt)},
		{"Finished", formatTime(result.FinishedAt)},
		{"Duration", formatDuration(result.Duration())},
	}
	if summary.Location != nil {
		rows = append(rows, []string{"Location", summary.Location.String()})
		if hash := summary.Location.Geohash(0); hash != "" {
			rows = append(rows, []string{"Geohash", code(hash)})
		}
	}
	if !summary.Settled.IsEmpty() {
		rows = append(rows, []string{"After settle", code(summary.Settled.String())})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	switch result.Status {
	case rotation.StatusRotated:
		md.Tip("A new exit address was verified.")
	case rotation.StatusExhausted:
		md.Warningf("The exit address did not change after %d attempt(s).", len(result.Attempts))
	case rotation.StatusCanceled:
		md.Importantf("Rotation was interrupted after %d attempt(s).", len(result.Attempts))
	case rotation.StatusSkipped:
		md.Note("Rotation was not requested.")
	}
	md.PlainText("")

	if len(result.Attempts) > 0 {
		md.H2("Attempts")
		md.PlainText("")
		attemptRows := make([][]string, len(result.Attempts))
		for i, a := range result.Attempts {
			errText := "-"
			if a.Err != nil {
				errText = a.Err.Error()
			}
			attemptRows[i] = []string{
				strconv.Itoa(a.Index + 1),
				a.Outcome.String(),
				code(a.Candidate.String()),
				errText,
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"#", "Outcome", "Observed", "Error"},
			Rows:   attemptRows,
		})
		md.PlainText("")
	}

	if !summary.Recorded {
		md.Cautionf("This rotation was not written to the audit log.")
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteHistory outputs the rotation history.
func (w *MarkdownWriter) WriteHistory(history *History) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Rotation History")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", formatTime(history.GeneratedAt)},
			{"Rotations", strconv.Itoa(history.Total())},
			{"Hash chain", chainText(history)},
		},
	})
	md.PlainText("")

	if history.ChainError != "" {
		md.Cautionf("The history hash chain is broken: %s", history.ChainError)
		md.PlainText("")
	}

	md.H2("Status Summary")
	md.PlainText("")
	summaryRows := make([][]string, 0, len(history.Counts)+1)
	for _, status := range history.statusOrder() {
		summaryRows = append(summaryRows, []string{statusBadge(status), strconv.Itoa(history.Counts[status])})
	}
	summaryRows = append(summaryRows, []string{"**Total**", "**" + strconv.Itoa(history.Total()) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows:   summaryRows,
	})
	md.PlainText("")

	if history.Total() > 0 {
		w.writePieChart(md, history)
	}

	md.H2("Rotations")
	md.PlainText("")
	if len(history.Rotations) == 0 {
		md.PlainText("No rotations recorded.")
		md.PlainText("")
	} else {
		rows := make([][]string, len(history.Rotations))
		for i, rec := range history.Rotations {
			rows[i] = []string{
				formatTime(rec.StartedAt),
				code(rec.OldIP),
				code(rec.NewIP),
				rec.Status,
				strconv.Itoa(rec.Attempts),
				formatDuration(rec.FinishedAt.Sub(rec.StartedAt)),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Started", "Old IP", "New IP", "Status", "Attempts", "Duration"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writePieChart writes a mermaid pie chart of the status distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, history *History) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Rotation Outcomes"),
		piechart.WithShowData(true),
	)

	for _, status := range history.statusOrder() {
		if n := history.Counts[status]; n > 0 {
			chart.LabelAndIntValue(status, uint64(n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by [ipchanger](https://github.com/nao1215/ipchanger)*")
}

func code(s string) string {
	if s == "" {
		return "-"
	}
	return "`" + s + "`"
}

func statusBadge(status string) string {
	switch status {
	case rotation.StatusRotated.String():
		return "✅ " + status
	case rotation.StatusExhausted.String():
		return "❌ " + status
	case rotation.StatusCanceled.String():
		return "⚠️ " + status
	default:
		return status
	}
}
