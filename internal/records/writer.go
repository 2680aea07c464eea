package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("output is closed")

// Writer appends (url, content) rows, flushing after each so rows already
// written survive an aborted run.
type Writer struct {
	csv    *csv.Writer
	closer io.Closer
	path   string
	rows   int
	closed bool
}

// NewWriter wraps w. Close flushes but does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w), path: "-"}
}

// Create opens path for writing, creating parent directories. An empty path
// or "-" writes to stdout.
func Create(path string) (*Writer, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return NewWriter(os.Stdout), nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}

	writer := NewWriter(file)
	writer.closer = file
	writer.path = trimmed
	return writer, nil
}

// Write appends one row.
func (w *Writer) Write(url, content string) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.csv.Write([]string{url, content}); err != nil {
		return err
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns how many rows were written.
func (w *Writer) Rows() int {
	return w.rows
}

// Path returns the output path, "-" for stdout.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the output. Only the first call has an effect.
func (w *Writer) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true

	w.csv.Flush()
	err := w.csv.Error()
	if w.closer != nil {
		if closeErr := w.closer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
