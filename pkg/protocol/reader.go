package protocol

import (
	"errors"
	"io"
)

// FrameReader splits a byte stream into frames using the per-action
// payload size. It is not safe for concurrent use.
type FrameReader struct {
	r   io.Reader
	buf [MaxFrameSize]byte
}

// NewFrameReader creates a frame reader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads and decodes the next frame. It returns io.EOF at a clean
// frame boundary and ErrTruncated when the stream ends mid-frame. After an
// ErrUnknownAction the stream position is undefined; callers should resync
// or drop the link.
func (fr *FrameReader) ReadFrame() (Message, error) {
	if _, err := io.ReadFull(fr.r, fr.buf[:HeaderSize]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, ErrTruncated
		}
		return Message{}, err
	}

	size, ok := Action(fr.buf[0]).PayloadSize()
	if !ok {
		return Message{}, ErrUnknownAction
	}

	n := MinFrameSize + size
	if _, err := io.ReadFull(fr.r, fr.buf[HeaderSize:n]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return Message{}, ErrTruncated
		}
		return Message{}, err
	}
	return Decode(fr.buf[:n])
}
