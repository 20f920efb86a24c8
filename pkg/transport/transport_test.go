package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marscolony/airlock-go/pkg/protocol"
)

func TestSplitEndpoint(t *testing.T) {
	scheme, addr, err := SplitEndpoint("tcp:127.0.0.1:7000")
	require.NoError(t, err)
	assert.Equal(t, "tcp", scheme)
	assert.Equal(t, "127.0.0.1:7000", addr)

	for _, bad := range []string{"", "tcp", ":x", "tcp:"} {
		_, _, err := SplitEndpoint(bad)
		assert.ErrorIs(t, err, ErrBadEndpoint, bad)
	}
}

func TestParseSerialEndpoint(t *testing.T) {
	cfg, err := ParseSerialEndpoint("serial:/dev/ttyUSB0?baud=9600")
	require.NoError(t, err)
	assert.Equal(t, SerialConfig{Path: "/dev/ttyUSB0", Baud: 9600}, cfg)

	cfg, err = ParseSerialEndpoint("serial:/dev/ttyAMA0")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaud, cfg.Baud)

	_, err = ParseSerialEndpoint("serial:/dev/ttyUSB0?baud=fast")
	assert.ErrorIs(t, err, ErrBadEndpoint)
}

func TestDialerDispatch(t *testing.T) {
	d := NewDialer()
	assert.Equal(t, []string{"serial", "tcp"}, d.Schemes())

	var got string
	d.Register("sim", func(_ context.Context, endpoint string) (Link, error) {
		got = endpoint
		return nil, nil
	})

	_, err := d.Open(context.Background(), "sim:pressure")
	require.NoError(t, err)
	assert.Equal(t, "sim:pressure", got)

	_, err = d.Open(context.Background(), "can:bus0")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestTCPLinkTransmit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := io.ReadFull(conn, buf); err == nil {
			received <- buf
		}
	}()

	link, err := OpenTCP(context.Background(), "tcp:"+ln.Addr().String())
	require.NoError(t, err)

	frame := []byte{0x04, 0x02, 0x07, 0x0d, 0x00}
	require.NoError(t, link.Transmit(frame))

	select {
	case got := <-received:
		assert.True(t, bytes.Equal(frame, got))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}

	require.NoError(t, link.Close())
	assert.NoError(t, link.Close())
	assert.ErrorIs(t, link.Transmit(frame), ErrLinkClosed)
}

func TestTCPLinkReadsFeedback(t *testing.T) {
	local, peer := net.Pipe()
	link := NewTCPLink(local)

	for _, msg := range []protocol.Message{
		protocol.Ack(1, protocol.AckOK),
		protocol.Status(1, 512.5),
		protocol.Ack(1, protocol.AckRejected),
	} {
		frame, err := protocol.Encode(msg)
		require.NoError(t, err)
		_, err = peer.Write(frame)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return link.Feedback().Nacks == 1
	}, 2*time.Second, time.Millisecond)
	fb := link.Feedback()
	assert.Equal(t, 1, fb.Acks)
	assert.True(t, fb.HasStatus)
	assert.Equal(t, 512.5, fb.Status)
	assert.Equal(t, protocol.AckRejected, fb.LastCode)

	// Garbage ends the reader; the link still closes cleanly.
	_, err := peer.Write([]byte{0x7f, 0x00})
	require.NoError(t, err)
	require.NoError(t, link.Close())
	peer.Close()
}

func TestOpenTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = OpenTCP(context.Background(), "tcp:"+addr)
	assert.Error(t, err)
}

func TestBackoffSequence(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{Initial: 100 * time.Millisecond, Max: 500 * time.Millisecond})

	var got []time.Duration
	for range 5 {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}, got)
	assert.Equal(t, 5, b.Attempts())

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Current())
	assert.Zero(t, b.Attempts())
}

func TestBackoffMultiplierOneIsConstant(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{Initial: 50 * time.Millisecond, Max: time.Second, Multiplier: 1})
	for range 4 {
		assert.Equal(t, 50*time.Millisecond, b.Next())
	}

	// Zero still selects the default growth.
	b = NewBackoffWithConfig(BackoffConfig{Initial: 50 * time.Millisecond, Max: time.Second})
	b.Next()
	assert.Equal(t, 100*time.Millisecond, b.Next())
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff()
	for range 20 {
		base := b.Current()
		d := b.Next()
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+time.Duration(float64(base)*JitterFactor))
	}
}
