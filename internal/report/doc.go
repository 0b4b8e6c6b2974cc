// Package report renders rotation results and the rotation history.
//
// Three formats are available:
//   - SimpleWriter: plain text for the terminal
//   - MarkdownWriter: GitHub-flavored Markdown, for pasting into tickets
//   - JSONWriter: structured output for scripts
//
// All of them implement Writer, so commands pick one from the --format flag.
package report
