package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Link errors.
var (
	// ErrUnsupportedScheme indicates an endpoint with no registered opener.
	ErrUnsupportedScheme = errors.New("unsupported link scheme")

	// ErrLinkClosed indicates a transmit on a closed link.
	ErrLinkClosed = errors.New("link closed")

	// ErrBadEndpoint indicates an endpoint string that cannot be parsed.
	ErrBadEndpoint = errors.New("malformed endpoint")
)

// Link carries encoded frames to one actuator controller.
type Link interface {
	// Transmit writes one complete frame.
	Transmit(frame []byte) error

	// Close releases the link. Transmit after Close returns ErrLinkClosed.
	Close() error
}

// Opener opens a link for an endpoint.
type Opener func(ctx context.Context, endpoint string) (Link, error)

// SplitEndpoint splits "scheme:address" into its parts.
func SplitEndpoint(endpoint string) (scheme, address string, err error) {
	scheme, address, ok := strings.Cut(endpoint, ":")
	if !ok || scheme == "" || address == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadEndpoint, endpoint)
	}
	return scheme, address, nil
}

// Dialer dispatches endpoints to the opener registered for their scheme.
type Dialer struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewDialer creates a Dialer with the tcp and serial schemes registered.
func NewDialer() *Dialer {
	d := &Dialer{openers: make(map[string]Opener)}
	d.Register("tcp", OpenTCP)
	d.Register("serial", OpenSerial)
	return d
}

// Register installs or replaces the opener for scheme.
func (d *Dialer) Register(scheme string, open Opener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openers[scheme] = open
}

// Schemes returns the registered schemes in sorted order.
func (d *Dialer) Schemes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.openers))
	for s := range d.openers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open opens a link for endpoint.
func (d *Dialer) Open(ctx context.Context, endpoint string) (Link, error) {
	scheme, _, err := SplitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	open, ok := d.openers[scheme]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return open(ctx, endpoint)
}
