package sim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marscolony/airlock-go/pkg/door"
	"github.com/marscolony/airlock-go/pkg/pressure"
	"github.com/marscolony/airlock-go/pkg/protocol"
	"github.com/marscolony/airlock-go/pkg/transport"
)

func sendConn(t *testing.T, conn net.Conn, msg protocol.Message) {
	t.Helper()
	frame, err := protocol.Encode(msg)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func serveActuator(t *testing.T, p *Plant, name string) (net.Conn, *protocol.FrameReader) {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- p.ServeConn(server, name) }()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	return client, protocol.NewFrameReader(client)
}

func TestServeConnAcksAndReportsStatus(t *testing.T) {
	p, clock := newPlant(t)
	conn, fr := serveActuator(t, p, Pressure)

	sendConn(t, conn, protocol.Apply(pressure.ProcPressurize, 1013))

	ack, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionAck, ack.Action)
	code, err := ack.Code()
	require.NoError(t, err)
	assert.Equal(t, protocol.AckOK, code)

	status, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionStatus, status.Action)
	v, err := status.Value()
	require.NoError(t, err)
	assert.InDelta(t, DefaultInitialPressure, v, 0.001)

	clock.Advance(time.Second)
	sendConn(t, conn, protocol.Apply(pressure.ProcPressurize, 1013))
	_, err = fr.ReadFrame()
	require.NoError(t, err)
	status, err = fr.ReadFrame()
	require.NoError(t, err)
	v, err = status.Value()
	require.NoError(t, err)
	assert.InDelta(t, DefaultInitialPressure+DefaultPressureRate, v, 0.001)
	assert.Equal(t, 2, p.Frames(Pressure))
}

func TestServeConnAnswersAbortWithAckOnly(t *testing.T) {
	p, _ := newPlant(t)
	conn, fr := serveActuator(t, p, Door)

	sendConn(t, conn, protocol.Abort(door.ProcHalt))
	ack, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionAck, ack.Action)
	assert.Equal(t, door.ProcHalt, ack.Procedure)

	// No status follows the abort, so the next frame is the apply's ack.
	sendConn(t, conn, protocol.Apply(door.ProcOpen, 90))
	next, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionAck, next.Action)
	assert.Equal(t, door.ProcOpen, next.Procedure)
}

func TestServeConnRejectsBadChecksum(t *testing.T) {
	p, _ := newPlant(t)
	conn, fr := serveActuator(t, p, Pressure)

	frame, err := protocol.Encode(protocol.Apply(pressure.ProcPressurize, 1013))
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xff
	_, err = conn.Write(frame)
	require.NoError(t, err)

	ack, err := fr.ReadFrame()
	require.NoError(t, err)
	code, err := ack.Code()
	require.NoError(t, err)
	assert.Equal(t, protocol.AckFraming, code)
	assert.Zero(t, p.Frames(Pressure))

	// The stream stays aligned after a checksum failure.
	sendConn(t, conn, protocol.Apply(pressure.ProcPressurize, 1013))
	ack, err = fr.ReadFrame()
	require.NoError(t, err)
	code, err = ack.Code()
	require.NoError(t, err)
	assert.Equal(t, protocol.AckOK, code)
}

func TestServeConnInjectedFailureIsRejected(t *testing.T) {
	p, _ := newPlant(t)
	p.FailNext(Pressure, 1)
	conn, fr := serveActuator(t, p, Pressure)

	sendConn(t, conn, protocol.Apply(pressure.ProcPressurize, 1013))
	ack, err := fr.ReadFrame()
	require.NoError(t, err)
	code, err := ack.Code()
	require.NoError(t, err)
	assert.Equal(t, protocol.AckRejected, code)
	assert.Zero(t, p.Frames(Pressure))
}

func TestServeOverTCPLink(t *testing.T) {
	p, _ := newPlant(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- p.Serve(ctx, ln, Door) }()

	link, err := transport.OpenTCP(ctx, "tcp:"+addr)
	require.NoError(t, err)

	frame, err := protocol.Encode(protocol.Apply(door.ProcOpen, door.DefaultOpenAngle))
	require.NoError(t, err)
	require.NoError(t, link.Transmit(frame))

	src, ok := link.(transport.FeedbackSource)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		fb := src.Feedback()
		return fb.Acks == 1 && fb.HasStatus
	}, 2*time.Second, time.Millisecond)
	assert.Zero(t, src.Feedback().Nacks)
	assert.Equal(t, 1, p.Frames(Door))
	_, doorMoving := p.Moving()
	assert.True(t, doorMoving)

	require.NoError(t, link.Close())
	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeRejectsUnknownActuator(t *testing.T) {
	p, _ := newPlant(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = p.Serve(context.Background(), ln, "hatch")
	assert.ErrorIs(t, err, transport.ErrBadEndpoint)
}
