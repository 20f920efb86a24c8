package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marscolony/airlock-go/mocks"
	"github.com/marscolony/airlock-go/pkg/door"
	"github.com/marscolony/airlock-go/pkg/log"
	"github.com/marscolony/airlock-go/pkg/panel"
	"github.com/marscolony/airlock-go/pkg/pressure"
	"github.com/marscolony/airlock-go/pkg/sensor"
	"github.com/marscolony/airlock-go/pkg/sim"
	"github.com/marscolony/airlock-go/pkg/subsystem"
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

type memTrace struct {
	mu     sync.Mutex
	events []log.Event
}

func (m *memTrace) Log(e log.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *memTrace) transitions(machine string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, e := range m.events {
		if e.Transition != nil && e.Transition.Machine == machine {
			names = append(names, e.Transition.Name)
		}
	}
	return names
}

func (m *memTrace) latches() []log.EmergencyLatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []log.EmergencyLatch
	for _, e := range m.events {
		if e.Emergency != nil {
			out = append(out, e.Emergency.Latch)
		}
	}
	return out
}

type rig struct {
	clock *manualClock
	plant *sim.Plant
	pool  *subsystem.Pool
	board *panel.Switchboard
	sink  *panel.LogSink
	trace *memTrace
	sup   *Supervisor
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRig(t *testing.T, endpoints map[string]string) *rig {
	t.Helper()
	return newRigTargets(t, endpoints, pressure.DefaultTargets())
}

func newRigTargets(t *testing.T, endpoints map[string]string, targets pressure.Targets) *rig {
	t.Helper()

	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	plant := sim.New(sim.Config{Now: clock.Now})
	pool := subsystem.NewPool(nil)

	if endpoints == nil {
		endpoints = map[string]string{
			Pressure: "sim:pressure",
			Door:     "sim:door",
			Light:    "sim:light",
		}
	}
	cfgs := SubsystemConfigs(endpoints, Worker{Period: time.Millisecond})
	subsystem.Launch(context.Background(), pool, cfgs, plant.Open)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.StopAll(ctx)
	})

	r := &rig{
		clock: clock,
		plant: plant,
		pool:  pool,
		board: panel.NewSwitchboard(),
		sink:  panel.NewLogSink(discard()),
		trace: &memTrace{},
	}

	sup, err := New(Config{
		Pool:       pool,
		Panel:      r.board,
		Sensor:     plant,
		Sink:       r.sink,
		Targets:    targets,
		Angles:     door.DefaultAngles(),
		LightLevel: 100,
		Trace:      r.trace,
		Now:        clock.Now,
	})
	require.NoError(t, err)
	r.sup = sup
	return r
}

func (r *rig) cycle(t *testing.T) Report {
	t.Helper()
	require.NoError(t, r.sup.Cycle(context.Background()))
	return r.sup.Report()
}

// waitSent blocks until the named actuator has accepted at least n frames.
func (r *rig) waitSent(t *testing.T, name string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.plant.Frames(name) >= n
	}, 2*time.Second, time.Millisecond, "%s frames", name)
}

func TestPressurizeConvergesAtTarget(t *testing.T) {
	r := newRig(t, nil)

	r.board.Set(panel.Enable, true)
	r.board.Press(panel.Pressurize)
	rep := r.cycle(t)
	require.Equal(t, "Pressurizing", rep.Pressure)
	assert.True(t, rep.Outputs.InProgress)
	assert.True(t, rep.Outputs.EnableActive)
	r.waitSent(t, sim.Pressure, 1)

	for range 20 {
		r.clock.Advance(500 * time.Millisecond)
		rep = r.cycle(t)
		if rep.Pressure != "Pressurizing" {
			break
		}
	}

	assert.Equal(t, "Idle", rep.Pressure)
	assert.Equal(t, "Idle", rep.Door)
	assert.True(t, rep.Outputs.Pressurized)
	assert.False(t, rep.Outputs.InProgress)
	assert.False(t, rep.Emergency)
	assert.False(t, rep.Outputs.Emergency)
	assert.GreaterOrEqual(t, rep.Reading.Pressure, pressure.DefaultPressurizeTarget)
	assert.Contains(t, r.trace.transitions(Pressure), "done_pressurize")
	assert.Empty(t, r.trace.latches())
	assert.NotContains(t, r.trace.transitions(Pressure), "detected_emergency")
	assert.NotContains(t, r.trace.transitions(Door), "detected_emergency")

	// The hold command that follows convergence reaches the valves.
	r.waitSent(t, sim.Pressure, 2)
	require.Eventually(t, func() bool {
		valves, _ := r.plant.Moving()
		return !valves
	}, time.Second, time.Millisecond)

	ss, ok := r.pool.Get(Pressure)
	require.True(t, ok)
	assert.Equal(t, "Idle", ss.State())
}

func TestPressurizeConvergesAtUnrepresentableTarget(t *testing.T) {
	// Neither target is exact in float32: 1000.1 rounds down, 6.3 rounds up.
	r := newRigTargets(t, nil, pressure.Targets{Pressurize: 1000.1, Depressurize: 6.3})

	r.board.Set(panel.Enable, true)
	r.board.Press(panel.Pressurize)
	rep := r.cycle(t)
	require.Equal(t, "Pressurizing", rep.Pressure)
	r.waitSent(t, sim.Pressure, 1)

	for range 40 {
		r.clock.Advance(500 * time.Millisecond)
		rep = r.cycle(t)
		if rep.Pressure != "Pressurizing" {
			break
		}
	}
	require.Equal(t, "Idle", rep.Pressure, "plant at %g", r.plant.Pressure())
	assert.True(t, rep.Outputs.Pressurized)
	r.waitSent(t, sim.Pressure, 2)

	sent := r.plant.Frames(sim.Pressure)
	r.board.Press(panel.Depressurize)
	rep = r.cycle(t)
	require.Equal(t, "Depressurizing", rep.Pressure)
	r.waitSent(t, sim.Pressure, sent+1)

	for range 40 {
		r.clock.Advance(500 * time.Millisecond)
		rep = r.cycle(t)
		if rep.Pressure != "Depressurizing" {
			break
		}
	}
	assert.Equal(t, "Idle", rep.Pressure, "plant at %g", r.plant.Pressure())
	assert.True(t, rep.Outputs.Depressurized)
}

func TestEmergencyPreemptsCommandInSameCycle(t *testing.T) {
	r := newRig(t, nil)

	r.board.Set(panel.Enable, true)
	r.board.Press(panel.Emergency)
	r.board.Press(panel.Pressurize)
	r.board.Press(panel.Open)

	rep := r.cycle(t)
	assert.Equal(t, "Emergency", rep.Pressure)
	assert.Equal(t, "Emergency", rep.Door)
	assert.True(t, rep.Emergency)
	assert.Equal(t, "channel", rep.Cause)
	assert.True(t, rep.Outputs.Emergency)

	assert.NotContains(t, r.trace.transitions(Pressure), "start_pressurize")
	assert.NotContains(t, r.trace.transitions(Door), "start_open")
	assert.Equal(t, []log.EmergencyLatch{log.LatchRaised}, r.trace.latches())
}

func TestEmergencyLatchedUntilReleased(t *testing.T) {
	r := newRig(t, nil)
	r.board.Set(panel.Enable, true)
	r.board.Set(panel.Emergency, false)
	r.board.Press(panel.Pressurize)

	for range 5 {
		rep := r.cycle(t)
		assert.Equal(t, "Emergency", rep.Pressure)
	}
	assert.Equal(t, 4, countOf(r.trace.transitions(Pressure), "emergency_unresolved"))

	// Releasing the button clears the latch; that cycle still suppresses commands.
	r.board.Set(panel.Emergency, true)
	r.board.Press(panel.Pressurize)
	rep := r.cycle(t)
	assert.Equal(t, "Idle", rep.Pressure)
	assert.Equal(t, "Idle", rep.Door)
	assert.False(t, rep.Emergency)
	assert.False(t, rep.Outputs.Emergency)

	// The operator must re-issue the command.
	r.cycle(t)
	r.board.Press(panel.Pressurize)
	rep = r.cycle(t)
	assert.Equal(t, "Pressurizing", rep.Pressure)
	assert.Equal(t, []log.EmergencyLatch{log.LatchRaised, log.LatchCleared}, r.trace.latches())
}

func TestEmergencyAbortsActuators(t *testing.T) {
	r := newRig(t, nil)
	r.board.Set(panel.Enable, true)

	r.board.Press(panel.Open)
	r.cycle(t)
	r.waitSent(t, sim.Door, 1)
	r.clock.Advance(200 * time.Millisecond)

	r.board.Press(panel.Emergency)
	rep := r.cycle(t)
	require.Equal(t, "Emergency", rep.Door)
	r.waitSent(t, sim.Door, 2)

	require.Eventually(t, func() bool {
		_, moving := r.plant.Moving()
		return !moving
	}, time.Second, time.Millisecond)

	// The door stays where the halt caught it.
	angle := r.plant.DoorAngle()
	r.clock.Advance(time.Second)
	r.cycle(t)
	assert.Equal(t, angle, r.plant.DoorAngle())
}

func TestEnableGatesPressureCommands(t *testing.T) {
	r := newRig(t, nil)

	r.board.Press(panel.Pressurize)
	rep := r.cycle(t)
	assert.Equal(t, "Idle", rep.Pressure)
	assert.False(t, rep.Outputs.EnableActive)

	// Door commands are not gated.
	r.board.Press(panel.Open)
	rep = r.cycle(t)
	assert.Equal(t, "Opening", rep.Door)
}

func TestConflictingButtonsIgnored(t *testing.T) {
	r := newRig(t, nil)
	r.board.Set(panel.Enable, true)

	r.board.Press(panel.Pressurize)
	r.board.Press(panel.Depressurize)
	r.board.Press(panel.Open)
	r.board.Press(panel.Close)
	rep := r.cycle(t)

	assert.Equal(t, "Idle", rep.Pressure)
	assert.Equal(t, "Idle", rep.Door)
}

func TestHoldPausesAndResumes(t *testing.T) {
	r := newRig(t, nil)
	r.board.Set(panel.Enable, true)

	r.board.Press(panel.Pressurize)
	r.cycle(t)
	r.waitSent(t, sim.Pressure, 1)
	r.clock.Advance(500 * time.Millisecond)
	r.cycle(t)

	r.board.Set(panel.Hold, true)
	rep := r.cycle(t)
	require.Equal(t, "Paused", rep.Pressure)
	assert.True(t, rep.Outputs.Hold)
	assert.False(t, rep.Outputs.InProgress)
	r.waitSent(t, sim.Pressure, 2)

	// While held, time passes without progress.
	before := r.plant.Pressure()
	r.clock.Advance(5 * time.Second)
	rep = r.cycle(t)
	assert.Equal(t, "Paused", rep.Pressure)
	assert.Equal(t, before, r.plant.Pressure())

	// Commands are ignored while paused.
	r.board.Press(panel.Depressurize)
	rep = r.cycle(t)
	assert.Equal(t, "Paused", rep.Pressure)

	r.board.Set(panel.Hold, false)
	rep = r.cycle(t)
	require.Equal(t, "Pressurizing", rep.Pressure)
	assert.Contains(t, r.trace.transitions(Pressure), "resume_pressurize")
	r.waitSent(t, sim.Pressure, 3)

	for range 20 {
		r.clock.Advance(500 * time.Millisecond)
		if rep = r.cycle(t); rep.Pressure != "Pressurizing" {
			break
		}
	}
	assert.Equal(t, "Idle", rep.Pressure)
	assert.True(t, rep.Outputs.Pressurized)
}

func TestDoorTravelAndReversal(t *testing.T) {
	r := newRig(t, nil)

	r.board.Press(panel.Open)
	rep := r.cycle(t)
	require.Equal(t, "Opening", rep.Door)
	r.waitSent(t, sim.Door, 1)

	r.board.Press(panel.Close)
	rep = r.cycle(t)
	assert.Equal(t, "Opening", rep.Door)
	assert.Contains(t, r.trace.transitions(Door), "reject_reversal")

	r.clock.Advance(1100 * time.Millisecond)
	rep = r.cycle(t)
	assert.Equal(t, "Open", rep.Door)
	assert.InDelta(t, door.DefaultOpenAngle, rep.Reading.DoorAngle, door.DefaultTolerance)

	r.board.Press(panel.Close)
	rep = r.cycle(t)
	require.Equal(t, "Closing", rep.Door)
	r.waitSent(t, sim.Door, 2)
	r.clock.Advance(1100 * time.Millisecond)
	rep = r.cycle(t)
	assert.Equal(t, "Closed", rep.Door)
}

func TestLightFollowsSwitchDuringEmergency(t *testing.T) {
	r := newRig(t, nil)
	r.board.Set(panel.Emergency, false)
	r.board.Set(panel.Light, true)

	rep := r.cycle(t)
	assert.True(t, rep.Emergency)
	assert.Equal(t, "On", rep.Light)

	r.waitSent(t, sim.Light, 1)
	on, level := r.plant.LightOn()
	assert.True(t, on)
	assert.Equal(t, 100.0, level)

	r.board.Set(panel.Light, false)
	rep = r.cycle(t)
	assert.Equal(t, "Off", rep.Light)
}

func TestWatchdogRaisesEmergencyOnSensorLoss(t *testing.T) {
	r := newRig(t, nil)
	r.board.Set(panel.Enable, true)

	r.board.Press(panel.Pressurize)
	r.cycle(t)

	r.plant.SetSensorFault(true)
	r.clock.Advance(100 * time.Millisecond)
	rep := r.cycle(t)
	assert.Equal(t, "FAILING", rep.Watchdog)
	assert.Equal(t, int64(500), rep.WatchdogRemainingMS)
	assert.False(t, rep.Emergency)

	for range 5 {
		r.clock.Advance(100 * time.Millisecond)
		rep = r.cycle(t)
	}
	assert.Equal(t, "TRIPPED", rep.Watchdog)
	assert.Zero(t, rep.WatchdogRemainingMS)
	assert.True(t, rep.Emergency)
	assert.Equal(t, "watchdog", rep.Cause)
	assert.Equal(t, "Emergency", rep.Pressure)
	assert.Equal(t, 1, r.sup.Watchdog().Trips())

	r.plant.SetSensorFault(false)
	r.clock.Advance(100 * time.Millisecond)
	rep = r.cycle(t)
	assert.Equal(t, "NORMAL", rep.Watchdog)
	assert.False(t, rep.Emergency)
	assert.Equal(t, "Idle", rep.Pressure)
	assert.Equal(t, []string{"failing", "tripped", "normal"}, r.trace.transitions(WatchdogMachine))
}

func TestMissingSubsystemIsSkipped(t *testing.T) {
	r := newRig(t, map[string]string{
		Pressure: "sim:pressure",
		Door:     "sim:hatch",
		Light:    "sim:light",
	})

	assert.Equal(t, 2, r.pool.Len())
	assert.Equal(t, []string{Door}, r.sup.Report().Skipped)

	r.board.Set(panel.Enable, true)
	r.board.Press(panel.Pressurize)
	r.board.Press(panel.Open)
	rep := r.cycle(t)
	assert.Equal(t, "Pressurizing", rep.Pressure)
	assert.Equal(t, "Idle", rep.Door)

	r.board.Press(panel.Emergency)
	rep = r.cycle(t)
	assert.Equal(t, "Emergency", rep.Pressure)
	assert.True(t, rep.Outputs.Emergency)
}

func TestPanelFailureKeepsMaintainedLevels(t *testing.T) {
	pool := subsystem.NewPool(nil)
	plant := sim.New(sim.Config{})
	subsystem.Launch(context.Background(), pool, SubsystemConfigs(map[string]string{Light: "sim:light"}, Worker{}), plant.Open)
	t.Cleanup(func() { _ = pool.StopAll(context.Background()) })

	provider := mocks.NewMockProvider(t)
	provider.EXPECT().Snapshot(mock.Anything).Return(panel.Released().With(panel.Light, true), nil).Once()
	provider.EXPECT().Snapshot(mock.Anything).Return(panel.Snapshot{}, errors.New("bus error"))

	reader := mocks.NewMockReader(t)
	reader.EXPECT().Read(mock.Anything).Return(sensor.Reading{Pressure: 6}, nil)

	sup, err := New(Config{
		Pool:       pool,
		Panel:      provider,
		Sensor:     reader,
		Targets:    pressure.DefaultTargets(),
		Angles:     door.DefaultAngles(),
		LightLevel: 50,
	})
	require.NoError(t, err)

	require.NoError(t, sup.Cycle(context.Background()))
	require.Equal(t, "On", sup.Report().Light)

	// A failed read must neither flip the light nor raise the emergency.
	require.NoError(t, sup.Cycle(context.Background()))
	rep := sup.Report()
	assert.Equal(t, "On", rep.Light)
	assert.False(t, rep.Emergency)
	assert.Equal(t, "FAILING", rep.Watchdog)
}

func TestSinkReceivesOutputs(t *testing.T) {
	pool := subsystem.NewPool(nil)
	sink := mocks.NewMockSink(t)
	sink.EXPECT().Write(panel.Outputs{EnableActive: true, Confirm: true}).Return(nil).Once()

	sup, err := New(Config{
		Pool:       pool,
		Panel:      panel.NewScript(panel.Released().With(panel.Enable, true).With(panel.Confirm, true)),
		Sensor:     sensor.ReaderFunc(func(context.Context) (sensor.Reading, error) { return sensor.Reading{}, nil }),
		Sink:       sink,
		Targets:    pressure.DefaultTargets(),
		Angles:     door.DefaultAngles(),
		LightLevel: 100,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{Pressure, Door, Light}, sup.Report().Skipped)
	require.NoError(t, sup.Cycle(context.Background()))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(Config{
		Pool:       subsystem.NewPool(nil),
		Panel:      panel.NewScript(),
		Sensor:     sim.New(sim.Config{}),
		Targets:    pressure.Targets{Pressurize: 5, Depressurize: 10},
		Angles:     door.DefaultAngles(),
		LightLevel: 100,
	})
	assert.ErrorIs(t, err, pressure.ErrInvalidTargets)
}

func TestRunStopsSubsystemsOnCancel(t *testing.T) {
	plant := sim.New(sim.Config{})
	pool := subsystem.NewPool(nil)
	failed := subsystem.Launch(context.Background(), pool, SubsystemConfigs(map[string]string{
		Pressure: "sim:pressure",
		Door:     "sim:door",
		Light:    "sim:light",
	}, Worker{Period: time.Millisecond}), plant.Open)
	require.Empty(t, failed)

	sup, err := New(Config{
		Pool:       pool,
		Panel:      panel.NewSwitchboard(),
		Sensor:     plant,
		Targets:    pressure.DefaultTargets(),
		Angles:     door.DefaultAngles(),
		LightLevel: 100,
		Period:     2 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return sup.Report().Cycle >= 5 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	for _, st := range pool.Snapshot() {
		assert.False(t, st.Running, st.Name)
	}
}

func TestSubsystemConfigs(t *testing.T) {
	cfgs := SubsystemConfigs(map[string]string{Light: "tcp:lamp:1", Pressure: "serial:/dev/ttyS0", "fan": "tcp:x:1"}, Worker{Period: 5 * time.Millisecond})
	require.Len(t, cfgs, 2)
	assert.Equal(t, Pressure, cfgs[0].Name)
	assert.Equal(t, pressure.ProcAbort, cfgs[0].Limits.AbortProcedure)
	assert.Equal(t, Light, cfgs[1].Name)
	assert.Zero(t, cfgs[1].Limits.AbortProcedure)
	assert.Equal(t, 5*time.Millisecond, cfgs[1].Period)

	_, ok := Limits("fan")
	assert.False(t, ok)
}

func countOf(names []string, want string) int {
	return len(slices.DeleteFunc(slices.Clone(names), func(n string) bool { return n != want }))
}
