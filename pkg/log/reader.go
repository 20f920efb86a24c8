package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrTruncated reports a trace that ends inside an event, as left behind when
// the writer dies between buffer flushes. Events before it are intact.
var ErrTruncated = errors.New("trace ends mid-event")

// Filter selects trace events. Zero fields match everything.
type Filter struct {
	RunID     string
	Subsystem string
	Direction *Direction
	Layer     *Layer
	Category  *Category

	// Since and Until bound the half-open window [Since, Until).
	Since time.Time
	Until time.Time
}

// Matches reports whether event passes every set criterion.
func (f Filter) Matches(event Event) bool {
	switch {
	case f.RunID != "" && event.RunID != f.RunID,
		f.Subsystem != "" && event.Subsystem != f.Subsystem,
		f.Direction != nil && event.Direction != *f.Direction,
		f.Layer != nil && event.Layer != *f.Layer,
		f.Category != nil && event.Category != *f.Category:
		return false
	}
	if !f.Since.IsZero() && event.Timestamp.Before(f.Since) {
		return false
	}
	return f.Until.IsZero() || event.Timestamp.Before(f.Until)
}

// Reader streams events from a trace file.
type Reader struct {
	file   *os.File
	dec    *cbor.Decoder
	filter Filter
	read   int
}

// NewReader opens path and yields every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and yields the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, dec: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event. It returns io.EOF at a clean end of
// file and ErrTruncated when the last event is incomplete.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.dec.Decode(&event)
		switch {
		case err == io.EOF:
			return Event{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Event{}, fmt.Errorf("%w after %d events", ErrTruncated, r.read)
		case err != nil:
			return Event{}, fmt.Errorf("event %d: %w", r.read+1, err)
		}
		r.read++
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
