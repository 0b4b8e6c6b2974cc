package audit

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nao1215/ipchanger/internal/rotation"
)

// Header is the first row of every audit file.
var Header = []string{"Old IP", "New IP", "Start Time", "End Time"}

// Record is one completed rotation.
//
// Only OldIP, NewIP, StartTime and EndTime are written to the CSV file.
// RotationID, Status and Attempts are carried for stores that keep them.
type Record struct {
	RotationID string
	OldIP      string
	NewIP      string
	StartTime  time.Time
	EndTime    time.Time
	Status     string
	Attempts   int
}

// RecordFromResult builds a Record from an engine result.
func RecordFromResult(result *rotation.Result) Record {
	return Record{
		RotationID: result.ID,
		OldIP:      result.Prior.String(),
		NewIP:      result.Current.String(),
		StartTime:  result.StartedAt,
		EndTime:    result.FinishedAt,
		Status:     result.Status.String(),
		Attempts:   len(result.Attempts),
	}
}

// row returns the CSV columns in Header order.
func (r Record) row() []string {
	return []string{r.OldIP, r.NewIP, FormatTimestamp(r.StartTime), FormatTimestamp(r.EndTime)}
}

// FormatTimestamp renders t as Unix seconds with a microsecond fraction,
// for example "1718000000.123456".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

// ParseTimestamp is the inverse of FormatTimestamp. It also accepts integer
// seconds and fewer fraction digits.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrMalformedRow, s)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)), nil
}

func parseRow(fields []string) (Record, error) {
	if len(fields) != len(Header) {
		return Record{}, fmt.Errorf("%w: expected %d columns, got %d", ErrMalformedRow, len(Header), len(fields))
	}
	start, err := ParseTimestamp(fields[2])
	if err != nil {
		return Record{}, err
	}
	end, err := ParseTimestamp(fields[3])
	if err != nil {
		return Record{}, err
	}
	return Record{OldIP: fields[0], NewIP: fields[1], StartTime: start, EndTime: end}, nil
}
