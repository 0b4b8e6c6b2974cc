package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// CSVStore appends records to a CSV file. The file and its parent directory
// are created on the first Append; the header is written only then.
type CSVStore struct {
	mu   sync.Mutex
	path string
}

// NewCSVStore creates a store for path. Nothing is touched on disk until the
// first Append.
func NewCSVStore(path string) (*CSVStore, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &CSVStore{path: path}, nil
}

// Path returns the file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Append writes one row. It implements Recorder.
func (s *CSVStore) Append(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat audit file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write audit header: %w", err)
		}
	}
	if err := w.Write(record.row()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write audit row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush audit file: %w", err)
	}

	return f.Close()
}

// ReadAll returns every record in file order, without the header. A missing
// file yields no records.
func (s *CSVStore) ReadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit header: %w", err)
	}
	if !slices.Equal(header, Header) {
		return nil, ErrHeaderMismatch
	}

	var records []Record
	for line := 2; ; line++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read audit row %d: %w", line, err)
		}
		record, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		records = append(records, record)
	}
	return records, nil
}
