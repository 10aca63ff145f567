package event

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"

	"github.com/c360/semrelay/errors"
)

// Reader turns a newline-delimited stream of JSON documents into events.
//
// Blank lines are skipped silently. Lines that fail to parse are logged, counted,
// and skipped; only an I/O failure of the underlying source stops the reader.
// Reader is not safe for concurrent use.
type Reader struct {
	src    *bufio.Reader
	logger *slog.Logger

	line        int
	parseErrors int
	current     Event
	err         error
	done        bool
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithLogger sets the logger used to report malformed lines
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReader creates a Reader over r
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{
		src:    bufio.NewReaderSize(r, 64*1024),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Next advances to the next event. It returns false at end of input or on a
// read error; check Err to tell them apart.
func (r *Reader) Next() bool {
	for !r.done {
		raw, readErr := r.src.ReadBytes('\n')
		if readErr != nil {
			r.done = true
			if readErr != io.EOF {
				r.err = errors.Wrap(readErr, "Reader", "Next", "read input")
				return false
			}
		}

		if len(raw) == 0 && r.done {
			return false
		}
		r.line++

		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		ev, err := Parse(line)
		if err != nil {
			r.parseErrors++
			r.logger.Warn("Skipping malformed line", "line", r.line, "error", err)
			continue
		}

		r.current = ev
		return true
	}
	return false
}

// Event returns the event produced by the last successful call to Next
func (r *Reader) Event() Event {
	return r.current
}

// Err returns the first non-EOF read error
func (r *Reader) Err() error {
	return r.err
}

// ParseErrors returns the number of lines skipped because they were not valid JSON
func (r *Reader) ParseErrors() int {
	return r.parseErrors
}

// Lines returns the number of lines consumed so far, blank lines included
func (r *Reader) Lines() int {
	return r.line
}

// ReadAll drains r and returns the events in input order together with the
// count of malformed lines.
func ReadAll(r io.Reader, opts ...ReaderOption) ([]Event, int, error) {
	rd := NewReader(r, opts...)

	var events []Event
	for rd.Next() {
		events = append(events, rd.Event())
	}
	return events, rd.ParseErrors(), rd.Err()
}
