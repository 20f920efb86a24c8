package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marscolony/airlock-go/pkg/door"
	"github.com/marscolony/airlock-go/pkg/light"
	"github.com/marscolony/airlock-go/pkg/pressure"
	"github.com/marscolony/airlock-go/pkg/protocol"
	"github.com/marscolony/airlock-go/pkg/transport"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newPlant(t *testing.T) (*Plant, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(Config{Now: clock.Now}), clock
}

func send(t *testing.T, l transport.Link, m protocol.Message) {
	t.Helper()
	frame, err := protocol.Encode(m)
	require.NoError(t, err)
	require.NoError(t, l.Transmit(frame))
}

func TestOpen(t *testing.T) {
	p, _ := newPlant(t)
	ctx := context.Background()

	for _, name := range []string{Pressure, Door, Light} {
		l, err := p.Open(ctx, "sim:"+name)
		require.NoError(t, err, name)
		require.NoError(t, l.Close())
		assert.ErrorIs(t, l.Transmit([]byte{1}), transport.ErrLinkClosed)
	}

	_, err := p.Open(ctx, "sim:hatch")
	assert.ErrorIs(t, err, transport.ErrBadEndpoint)
	_, err = p.Open(ctx, "tcp:door")
	assert.ErrorIs(t, err, transport.ErrUnsupportedScheme)

	d := transport.NewDialer()
	d.Register(Scheme, p.Open)
	_, err = d.Open(ctx, "sim:door")
	assert.NoError(t, err)
}

func TestPressureRamp(t *testing.T) {
	p, clock := newPlant(t)
	ctx := context.Background()
	l, err := p.Open(ctx, "sim:pressure")
	require.NoError(t, err)

	send(t, l, protocol.Apply(pressure.ProcPressurize, 1013))

	clock.Advance(time.Second)
	r, err := p.Read(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 506.0, r.Pressure, 0.001)

	clock.Advance(5 * time.Second)
	r, err = p.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1013.0, r.Pressure)

	valves, _ := p.Moving()
	assert.False(t, valves)
	assert.Equal(t, 1, p.Frames(Pressure))
}

func TestAbortStopsMotion(t *testing.T) {
	p, clock := newPlant(t)
	ctx := context.Background()
	l, err := p.Open(ctx, "sim:door")
	require.NoError(t, err)

	send(t, l, protocol.Apply(door.ProcOpen, 90))
	clock.Advance(500 * time.Millisecond)
	send(t, l, protocol.Abort(door.ProcHalt))
	clock.Advance(time.Second)

	r, err := p.Read(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 45.0, r.DoorAngle, 0.001)

	_, moving := p.Moving()
	assert.False(t, moving)
}

func TestLight(t *testing.T) {
	p, _ := newPlant(t)
	l, err := p.Open(context.Background(), "sim:light")
	require.NoError(t, err)

	send(t, l, protocol.Apply(light.ProcOn, 80))
	on, level := p.LightOn()
	assert.True(t, on)
	assert.Equal(t, 80.0, level)

	send(t, l, protocol.Apply(light.ProcOff, 0))
	on, _ = p.LightOn()
	assert.False(t, on)
}

func TestFaultInjection(t *testing.T) {
	p, _ := newPlant(t)
	ctx := context.Background()
	l, err := p.Open(ctx, "sim:pressure")
	require.NoError(t, err)

	frame, err := protocol.Encode(protocol.Apply(pressure.ProcHold, 500))
	require.NoError(t, err)

	p.FailNext(Pressure, 1)
	assert.ErrorIs(t, l.Transmit(frame), ErrInjected)
	assert.NoError(t, l.Transmit(frame))

	corrupt := append([]byte(nil), frame...)
	corrupt[2] ^= 0xff
	assert.ErrorIs(t, l.Transmit(corrupt), protocol.ErrFraming)

	p.SetSensorFault(true)
	_, err = p.Read(ctx)
	assert.ErrorIs(t, err, ErrSensorFault)
	p.SetSensorFault(false)
	_, err = p.Read(ctx)
	assert.NoError(t, err)
}
