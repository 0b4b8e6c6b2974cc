package audit

import (
	"context"
	"errors"
)

// Recorder persists audit records.
type Recorder interface {
	Append(ctx context.Context, record Record) error
}

// MultiRecorder appends to every recorder in order. All recorders are tried;
// the errors are joined.
type MultiRecorder []Recorder

// Append implements Recorder.
func (m MultiRecorder) Append(ctx context.Context, record Record) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Append(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
