package log

import (
	"bufio"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// DefaultFlushEvery is how many buffered events FileLogger holds before
// writing them out.
const DefaultFlushEvery = 64

const fileBufferSize = 64 << 10

// FileLogger appends events to a CBOR trace file. Emergency and error events
// flush the buffer at once. It is safe for concurrent use.
type FileLogger struct {
	mu         sync.Mutex
	file       *os.File
	buf        *bufio.Writer
	enc        *cbor.Encoder
	pending    int
	flushEvery int
	closed     bool
	dropped    uint64
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriterSize(f, fileBufferSize)
	return &FileLogger{
		file:       f,
		buf:        buf,
		enc:        NewEncoder(buf),
		flushEvery: DefaultFlushEvery,
	}, nil
}

// Log buffers one event. A failed encode or flush is counted, never
// returned.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.dropped++
		return
	}
	l.pending++

	urgent := event.Category == CategoryEmergency || event.Category == CategoryError
	if urgent || l.pending >= l.flushEvery {
		l.flushLocked()
	}
}

func (l *FileLogger) flushLocked() {
	if err := l.buf.Flush(); err != nil {
		l.dropped += uint64(l.pending)
		l.buf.Reset(l.file)
	}
	l.pending = 0
}

// Dropped returns how many events were lost to encode or write failures.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close flushes and closes the file. Later calls to Log are ignored and
// later calls to Close return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.flushLocked()
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
