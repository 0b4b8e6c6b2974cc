package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// sinkFileMode is owner read/write only. The diagnostic log records the
// exit addresses the operator used, which is not something to share.
const sinkFileMode = 0o600

// ErrSinkClosed is returned when writing to a closed DiagnosticSink.
var ErrSinkClosed = errors.New("diagnostic sink is closed")

// SinkOptions configures a DiagnosticSink.
type SinkOptions struct {
	// Level is the minimum level written to the file.
	// The zero value is replaced by slog.LevelError.
	Level slog.Leveler

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// Tee receives a copy of every record written to the file (e.g. os.Stderr
	// in verbose mode). It may be nil.
	Tee io.Writer
}

// DiagnosticSink is the explicitly owned, append-only diagnostic log.
// Each record carries time, level, the originating operation (attribute
// "op") and the message.
type DiagnosticSink struct {
	path   string
	file   *os.File
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// OpenDiagnosticSink opens (creating if needed) the diagnostic log at path.
// The file is created with owner-only permissions and the permissions are
// re-applied when the file already exists.
func OpenDiagnosticSink(path string, opts SinkOptions) (*DiagnosticSink, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, sinkFileMode) //nolint:gosec // operator-chosen path
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostic log: %w", err)
	}
	if err := os.Chmod(path, sinkFileMode); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to restrict diagnostic log permissions: %w", err)
	}

	s := &DiagnosticSink{path: path, file: f}

	var level slog.Leveler = slog.LevelError
	if opts.Level != nil {
		level = opts.Level
	}

	var w io.Writer = &sinkWriter{sink: s}
	if opts.Tee != nil {
		w = io.MultiWriter(w, opts.Tee)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	s.logger = slog.New(NewSecureHandler(handler))

	return s, nil
}

// Logger returns the logger bound to the sink.
func (s *DiagnosticSink) Logger() *slog.Logger {
	return s.logger
}

// Path returns the diagnostic log path.
func (s *DiagnosticSink) Path() string {
	return s.path
}

// Close flushes and closes the underlying file. It is safe to call twice.
func (s *DiagnosticSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// sinkWriter serializes writes from concurrent handlers and rejects writes
// after Close.
type sinkWriter struct {
	sink *DiagnosticSink
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()

	if w.sink.closed {
		return 0, ErrSinkClosed
	}
	return w.sink.file.Write(p)
}
