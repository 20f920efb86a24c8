package transport

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
)

// DefaultBaud is used when a serial endpoint does not specify one.
const DefaultBaud = 115200

// SerialConfig describes a serial endpoint.
type SerialConfig struct {
	Path string
	Baud int
}

// ParseSerialEndpoint parses "serial:/dev/ttyUSB0?baud=9600".
func ParseSerialEndpoint(endpoint string) (SerialConfig, error) {
	_, rest, err := SplitEndpoint(endpoint)
	if err != nil {
		return SerialConfig{}, err
	}

	u, err := url.Parse(rest)
	if err != nil || u.Path == "" {
		return SerialConfig{}, fmt.Errorf("%w: %q", ErrBadEndpoint, endpoint)
	}

	cfg := SerialConfig{Path: u.Path, Baud: DefaultBaud}
	if b := u.Query().Get("baud"); b != "" {
		baud, err := strconv.Atoi(b)
		if err != nil || baud <= 0 {
			return SerialConfig{}, fmt.Errorf("%w: baud %q", ErrBadEndpoint, b)
		}
		cfg.Baud = baud
	}
	return cfg, nil
}

// SerialLink is a Link over a serial device configured for raw 8N1.
type SerialLink struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Transmit writes one frame.
func (l *SerialLink) Transmit(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLinkClosed
	}
	if _, err := l.file.Write(frame); err != nil {
		return fmt.Errorf("serial transmit: %w", err)
	}
	return nil
}

// Close closes the device.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Link = (*SerialLink)(nil)
