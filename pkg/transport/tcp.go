package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marscolony/airlock-go/pkg/protocol"
)

// Default TCP link timeouts.
const (
	DefaultDialTimeout  = 2 * time.Second
	DefaultWriteTimeout = 200 * time.Millisecond
)

// Feedback summarizes what the actuator controller has sent back.
type Feedback struct {
	Acks   int     `json:"acks"`
	Nacks  int     `json:"nacks"`
	Status float64 `json:"status"`

	// HasStatus is false until the first status frame arrives.
	HasStatus bool `json:"has_status"`

	// LastCode is the code of the most recent non-OK ack.
	LastCode uint8 `json:"last_code,omitempty"`
}

// FeedbackSource is implemented by links that read replies from the
// actuator controller.
type FeedbackSource interface {
	Feedback() Feedback
}

// TCPLink is a Link over a TCP stream, used for networked actuator
// controllers and bench setups. Frames the controller sends back are read
// in the background and summarized by Feedback.
type TCPLink struct {
	mu           sync.Mutex
	conn         net.Conn
	writeTimeout time.Duration
	closed       bool
	feedback     Feedback

	done chan struct{}
}

// OpenTCP dials a "tcp:host:port" endpoint.
func OpenTCP(ctx context.Context, endpoint string) (Link, error) {
	_, addr, err := SplitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewTCPLink(conn), nil
}

// NewTCPLink wraps an established connection and starts reading replies.
func NewTCPLink(conn net.Conn) *TCPLink {
	l := &TCPLink{conn: conn, writeTimeout: DefaultWriteTimeout, done: make(chan struct{})}
	go l.receive()
	return l
}

// Transmit writes one frame within the write timeout.
func (l *TCPLink) Transmit(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLinkClosed
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
		return err
	}
	if _, err := l.conn.Write(frame); err != nil {
		return fmt.Errorf("tcp transmit: %w", err)
	}
	return nil
}

// Feedback returns a copy of the reply summary.
func (l *TCPLink) Feedback() Feedback {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feedback
}

// Close closes the connection and waits for the reply reader to exit.
func (l *TCPLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	err := l.conn.Close()
	l.mu.Unlock()

	<-l.done
	return err
}

// receive stops at the first read error. A framing error leaves the stream
// position undefined, so nothing after it is trusted.
func (l *TCPLink) receive() {
	defer close(l.done)

	fr := protocol.NewFrameReader(l.conn)
	for {
		msg, err := fr.ReadFrame()
		if err != nil {
			return
		}

		l.mu.Lock()
		switch msg.Action {
		case protocol.ActionAck:
			if code, err := msg.Code(); err == nil && code == protocol.AckOK {
				l.feedback.Acks++
			} else {
				l.feedback.Nacks++
				l.feedback.LastCode = code
			}
		case protocol.ActionStatus:
			if v, err := msg.Value(); err == nil {
				l.feedback.Status = v
				l.feedback.HasStatus = true
			}
		}
		l.mu.Unlock()
	}
}

var (
	_ Link           = (*TCPLink)(nil)
	_ FeedbackSource = (*TCPLink)(nil)
)
