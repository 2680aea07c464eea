// Package records reads bookmark URLs from CSV input and appends
// (url, content) rows to CSV output.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tootfill/tootfill/internal/core"
)

// ReaderOptions controls how input rows are interpreted.
type ReaderOptions struct {
	// Column is the zero-based index of the bookmark URL field.
	Column int
	// SkipHeader drops the first row.
	SkipHeader bool
}

// Reader yields one bookmark URL per CSV row, front to back, exactly once.
type Reader struct {
	csv     *csv.Reader
	closer  io.Closer
	opts    ReaderOptions
	row     int
	skipped bool
}

// NewReader wraps r. The caller keeps ownership of r.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return &Reader{csv: cr, opts: opts}
}

// Open opens path ("-" for stdin) for reading.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return NewReader(os.Stdin, opts), nil
	}

	file, err := os.Open(trimmed)
	if err != nil {
		return nil, err
	}
	reader := NewReader(file, opts)
	reader.closer = file
	return reader, nil
}

// Next returns the next bookmark URL. It returns io.EOF when the input is
// exhausted and an error wrapping core.ErrInvalidRow for a row that cannot
// be used; reading may continue after the latter.
func (r *Reader) Next() (string, error) {
	for {
		fields, err := r.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			r.row++
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return "", fmt.Errorf("row %d: %w: %v", r.row, core.ErrInvalidRow, err)
			}
			return "", err
		}
		r.row++

		if r.opts.SkipHeader && !r.skipped {
			r.skipped = true
			continue
		}

		if r.opts.Column < 0 || r.opts.Column >= len(fields) {
			return "", fmt.Errorf("row %d: %w: no column %d", r.row, core.ErrInvalidRow, r.opts.Column)
		}
		return fields[r.opts.Column], nil
	}
}

// Row returns the number of rows consumed so far, including a skipped header.
func (r *Reader) Row() int {
	return r.row
}

// Close releases the underlying file, if Open created one.
func (r *Reader) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	closer := r.closer
	r.closer = nil
	return closer.Close()
}
