package report

import (
	"sort"
	"time"

	"github.com/nao1215/ipchanger/internal/database"
	"github.com/nao1215/ipchanger/internal/geo"
	"github.com/nao1215/ipchanger/internal/rotation"
)

// RotationSummary describes one run of the rotate command.
type RotationSummary struct {
	Result *rotation.Result `json:"result"`

	// Location is the geolocation of the new address, when requested.
	Location *geo.Location `json:"location,omitempty"`

	// Settled is the address observed after the circuit was terminated and
	// the settle pause elapsed. Empty when it could not be read.
	Settled rotation.Address `json:"settled,omitempty"`

	// Recorded reports whether the rotation reached the audit stores.
	Recorded bool `json:"recorded"`
}

// History is the content of the history command.
type History struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Rotations   []database.RotationRecord `json:"rotations"`
	Counts      map[string]int            `json:"counts"`

	// Verified is the number of rows that passed VerifyChain; nil when the
	// chain was not checked.
	Verified *int `json:"verified,omitempty"`

	// ChainError is set when VerifyChain failed.
	ChainError string `json:"chain_error,omitempty"`
}

// Total returns the sum of Counts.
func (h *History) Total() int {
	total := 0
	for _, n := range h.Counts {
		total += n
	}
	return total
}

// statusOrder lists known statuses first, then any others alphabetically.
func (h *History) statusOrder() []string {
	known := []string{
		rotation.StatusRotated.String(),
		rotation.StatusExhausted.String(),
		rotation.StatusCanceled.String(),
	}

	var extra []string
	for status := range h.Counts {
		isKnown := false
		for _, k := range known {
			if status == k {
				isKnown = true
				break
			}
		}
		if !isKnown {
			extra = append(extra, status)
		}
	}
	sort.Strings(extra)
	return append(known, extra...)
}

// timeLayout is used for every timestamp in text and Markdown output.
const timeLayout = "2006-01-02 15:04:05 MST"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatDuration rounds to milliseconds.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
