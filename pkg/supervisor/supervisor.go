package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marscolony/airlock-go/pkg/door"
	"github.com/marscolony/airlock-go/pkg/emergency"
	"github.com/marscolony/airlock-go/pkg/failsafe"
	"github.com/marscolony/airlock-go/pkg/fsm"
	"github.com/marscolony/airlock-go/pkg/light"
	"github.com/marscolony/airlock-go/pkg/log"
	"github.com/marscolony/airlock-go/pkg/panel"
	"github.com/marscolony/airlock-go/pkg/pressure"
	"github.com/marscolony/airlock-go/pkg/sensor"
	"github.com/marscolony/airlock-go/pkg/subsystem"
)

// Defaults.
const (
	DefaultPeriod      = 10 * time.Millisecond
	DefaultStopTimeout = 2 * time.Second
)

// ErrConfig indicates a supervisor config missing a required collaborator.
var ErrConfig = errors.New("invalid supervisor config")

// Recorder receives cycle metrics. *metrics.Metrics implements it.
type Recorder interface {
	ObserveCycle(d, period time.Duration)
	SetEmergency(active bool)
	EmergencyRaised(cause string)
	WatchdogTripped()
	ReadFailed(source string)
	Transition(machine, name string)
	Reading(pressure, doorAngle float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCycle(time.Duration, time.Duration) {}
func (nopRecorder) SetEmergency(bool)                         {}
func (nopRecorder) EmergencyRaised(string)                    {}
func (nopRecorder) WatchdogTripped()                          {}
func (nopRecorder) ReadFailed(string)                         {}
func (nopRecorder) Transition(string, string)                 {}
func (nopRecorder) Reading(float64, float64)                  {}

// Config configures a Supervisor.
type Config struct {
	// Pool holds the subsystems that were started. A machine whose
	// subsystem is missing is not stepped.
	Pool   *subsystem.Pool
	Panel  panel.Provider
	Sensor sensor.Reader

	// Sink receives the indicator levels. Nil discards them.
	Sink panel.Sink

	Targets    pressure.Targets
	Angles     door.Angles
	LightLevel float64

	// Period is the cycle length (default 10ms).
	Period time.Duration

	// StopTimeout bounds the subsystem join after Run is cancelled.
	StopTimeout time.Duration

	Watchdog failsafe.Config

	Metrics Recorder
	Trace   log.Logger
	RunID   string
	Logger  *slog.Logger

	// Now overrides the clock used for readings and the watchdog, for tests.
	Now func() time.Time
}

// Report is the supervisor's view published for diagnostics.
type Report struct {
	Cycle     uint64 `json:"cycle"`
	Pressure  string `json:"pressure"`
	Door      string `json:"door"`
	Light     string `json:"light"`
	Emergency bool   `json:"emergency"`
	Cause     string `json:"cause,omitempty"`
	Watchdog  string `json:"watchdog"`
	// WatchdogRemainingMS is the time left before a failing watchdog trips.
	WatchdogRemainingMS int64          `json:"watchdog_remaining_ms,omitempty"`
	Reading             sensor.Reading `json:"reading"`
	Outputs             panel.Outputs  `json:"outputs"`
	Skipped             []string       `json:"skipped,omitempty"`
}

// Supervisor drives the control cycle.
type Supervisor struct {
	cfg     Config
	logger  *slog.Logger
	trace   log.Logger
	metrics Recorder
	now     func() time.Time

	arbiter  *emergency.Arbiter
	watchdog *failsafe.Watchdog

	pressure *pressure.Machine
	door     *door.Machine
	light    *light.Machine

	pressureSS *subsystem.Subsystem
	doorSS     *subsystem.Subsystem
	lightSS    *subsystem.Subsystem
	skipped    []string

	// Owned by the goroutine calling Cycle.
	cycle   uint64
	prev    panel.Snapshot
	reading sensor.Reading
	holding bool

	mu     sync.Mutex
	report Report
}

// New creates a supervisor. The pool should already hold the started
// subsystems.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Pool == nil || cfg.Panel == nil || cfg.Sensor == nil {
		return nil, fmt.Errorf("%w: pool, panel and sensor are required", ErrConfig)
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	pm, err := pressure.New(cfg.Targets)
	if err != nil {
		return nil, err
	}
	dm, err := door.New(cfg.Angles)
	if err != nil {
		return nil, err
	}
	lm, err := light.New(cfg.LightLevel)
	if err != nil {
		return nil, err
	}
	wd, err := failsafe.NewWatchdogWithConfig(cfg.Watchdog)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = nopRecorder{}
	}

	s := &Supervisor{
		cfg:      cfg,
		logger:   logger.With("component", "supervisor"),
		trace:    log.OrNoop(cfg.Trace),
		metrics:  rec,
		now:      cfg.Now,
		arbiter:  emergency.NewArbiter(),
		watchdog: wd,
		pressure: pm,
		door:     dm,
		light:    lm,
		prev:     panel.Released(),
	}

	bind := func(name string) *subsystem.Subsystem {
		ss, ok := cfg.Pool.Get(name)
		if !ok {
			s.skipped = append(s.skipped, name)
			s.logger.Warn("subsystem unavailable, machine will not be stepped", "subsystem", name)
			return nil
		}
		return ss
	}
	wd.OnStateChange(s.watchdogChanged)

	s.pressureSS = bind(Pressure)
	s.doorSS = bind(Door)
	s.lightSS = bind(Light)

	s.report = s.buildReport(emergency.Verdict{}, panel.Outputs{})
	return s, nil
}

// Report returns the latest published view.
func (s *Supervisor) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Arbiter exposes the emergency latch, for diagnostics.
func (s *Supervisor) Arbiter() *emergency.Arbiter {
	return s.arbiter
}

// Watchdog exposes the input watchdog, for diagnostics.
func (s *Supervisor) Watchdog() *failsafe.Watchdog {
	return s.watchdog
}

// Run executes cycles on the configured period until ctx is cancelled, then
// stops every subsystem.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started", "period", s.cfg.Period, "run_id", s.cfg.RunID)

	timer := time.NewTimer(0)
	defer timer.Stop()
	next := time.Now()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-timer.C:
		}

		if err := s.Cycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("cycle failed", "error", err)
		}

		next = next.Add(s.cfg.Period)
		now := time.Now()
		if d := next.Sub(now); d > 0 {
			timer.Reset(d)
		} else {
			// Overrun: start the next cycle immediately and re-anchor.
			next = now
			timer.Reset(0)
		}
	}
}

func (s *Supervisor) shutdown() error {
	s.logger.Info("supervisor stopping", "cycles", s.cycle)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()
	return s.cfg.Pool.StopAll(ctx)
}

// Cycle runs exactly one control cycle.
func (s *Supervisor) Cycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := s.now()
	s.cycle++

	snap, panelOK := s.readPanel(ctx)
	reading, sensorOK := s.readSensor(ctx)

	s.watchdog.Observe(panelOK && sensorOK, start)

	verdict := s.arbiter.Evaluate(snap.EmergencyAsserted(), s.watchdog.Tripped())
	s.recordVerdict(verdict, start)

	s.dispatchEmergency(verdict)
	if !verdict.Suppress {
		s.dispatchCommands(snap)
	}
	if sensorOK {
		s.dispatchTicks(reading)
	}
	s.dispatchLight(snap)

	out := s.outputs(snap, verdict)
	if s.cfg.Sink != nil {
		if err := s.cfg.Sink.Write(out); err != nil {
			s.logger.Warn("output write failed", "error", err)
		}
	}

	s.prev = snap
	s.metrics.SetEmergency(out.Emergency)
	s.metrics.ObserveCycle(s.now().Sub(start), s.cfg.Period)

	r := s.buildReport(verdict, out)
	s.mu.Lock()
	s.report = r
	s.mu.Unlock()
	return nil
}

// readPanel returns this cycle's snapshot. When the panel cannot be read the
// maintained levels of the previous snapshot are kept and every momentary
// button reads released.
func (s *Supervisor) readPanel(ctx context.Context) (panel.Snapshot, bool) {
	snap, err := s.cfg.Panel.Snapshot(ctx)
	if err == nil {
		return snap, true
	}

	s.metrics.ReadFailed("panel")
	s.logger.Debug("panel read failed", "error", err)
	s.traceError("panel", err)

	held := panel.Released()
	held.EmergencyLevel = s.prev.EmergencyLevel
	held.Light = s.prev.Light
	held.Enable = s.prev.Enable
	held.Hold = s.prev.Hold
	held.At = s.now()
	return held, false
}

func (s *Supervisor) readSensor(ctx context.Context) (sensor.Reading, bool) {
	r, err := s.cfg.Sensor.Read(ctx)
	if err != nil {
		s.metrics.ReadFailed("sensor")
		s.logger.Debug("sensor read failed", "error", err)
		s.traceError("sensor", err)
		return s.reading, false
	}
	s.reading = r
	s.metrics.Reading(r.Pressure, r.DoorAngle)
	return r, true
}

func (s *Supervisor) recordVerdict(v emergency.Verdict, at time.Time) {
	switch {
	case v.Raised:
		s.metrics.EmergencyRaised(v.Cause)
		s.logger.Warn("emergency raised", "cause", v.Cause, "cycle", s.cycle)
		s.trace.Log(log.Event{
			Timestamp: at,
			RunID:     s.cfg.RunID,
			Direction: log.DirectionOut,
			Layer:     log.LayerControl,
			Category:  log.CategoryEmergency,
			Cycle:     s.cycle,
			Emergency: &log.EmergencyEvent{Latch: log.LatchRaised, Cause: v.Cause},
		})
	case v.Cleared:
		s.logger.Info("emergency cleared", "cycle", s.cycle)
		s.trace.Log(log.Event{
			Timestamp: at,
			RunID:     s.cfg.RunID,
			Direction: log.DirectionOut,
			Layer:     log.LayerControl,
			Category:  log.CategoryEmergency,
			Cycle:     s.cycle,
			Emergency: &log.EmergencyEvent{Latch: log.LatchCleared},
		})
	}
}

func (s *Supervisor) dispatchEmergency(v emergency.Verdict) {
	if s.pressureSS != nil {
		switch emergency.Decide(v.Asserted, s.pressure.InEmergency()) {
		case emergency.Assert, emergency.Unresolved:
			s.firePressure(pressure.On(pressure.EmergencyAsserted))
		case emergency.Clear:
			s.firePressure(pressure.On(pressure.EmergencyCleared))
		}
	}
	if s.doorSS != nil {
		switch emergency.Decide(v.Asserted, s.door.InEmergency()) {
		case emergency.Assert, emergency.Unresolved:
			s.fireDoor(door.On(door.EmergencyAsserted))
		case emergency.Clear:
			s.fireDoor(door.On(door.EmergencyCleared))
		}
	}
}

// dispatchCommands turns operator input into command events. Momentary
// buttons act on their rising edge; Enable gates pressurize, depressurize
// and hold.
func (s *Supervisor) dispatchCommands(snap panel.Snapshot) {
	pressed := func(c panel.Channel) bool {
		return snap.Level(c) && !s.prev.Level(c)
	}

	if s.pressureSS != nil {
		if s.pressure.Phase() != pressure.Paused {
			s.holding = false
		}

		p := snap.Enable && pressed(panel.Pressurize)
		d := snap.Enable && pressed(panel.Depressurize)
		switch {
		case p && d:
			s.logger.Warn("pressurize and depressurize pressed together, ignoring both")
		case p:
			s.firePressure(pressure.On(pressure.StartPressurize))
		case d:
			s.firePressure(pressure.On(pressure.StartDepressurize))
		}

		hold := snap.Enable && snap.Hold
		switch {
		case hold && s.pressure.Phase().InProgress():
			s.firePressure(pressure.On(pressure.Pause))
			s.holding = s.pressure.Phase() == pressure.Paused
		case !hold && s.holding:
			s.firePressure(pressure.On(pressure.Resume))
			s.holding = false
		}
	}

	if s.doorSS != nil {
		o, c := pressed(panel.Open), pressed(panel.Close)
		switch {
		case o && c:
			s.logger.Warn("open and close pressed together, ignoring both")
		case o:
			s.fireDoor(door.On(door.StartOpen))
		case c:
			s.fireDoor(door.On(door.StartClose))
		}
	}
}

func (s *Supervisor) dispatchTicks(r sensor.Reading) {
	if s.pressureSS != nil {
		s.firePressure(pressure.TickAt(r.Pressure))
	}
	if s.doorSS != nil {
		s.fireDoor(door.TickReached(s.door.Reached(r.DoorAngle)))
	}
}

func (s *Supervisor) dispatchLight(snap panel.Snapshot) {
	if s.lightSS == nil {
		return
	}
	kind := light.Switch(snap.Light)
	step(s, Light, kind, s.lightSS, func() (fsm.Result[light.Phase], error) {
		return s.light.Fire(kind)
	})
}

func (s *Supervisor) firePressure(ev pressure.Event) {
	step(s, Pressure, ev.Kind, s.pressureSS, func() (fsm.Result[pressure.Phase], error) {
		return s.pressure.Fire(ev)
	})
}

func (s *Supervisor) fireDoor(ev door.Event) {
	step(s, Door, ev.Kind, s.doorSS, func() (fsm.Result[door.Phase], error) {
		return s.door.Fire(ev)
	})
}

// step fires one event under the subsystem lock, then records the transition
// and executes its effects against the committed state.
func step[P interface {
	comparable
	fmt.Stringer
}](s *Supervisor, machine string, event fmt.Stringer, ss *subsystem.Subsystem, fire func() (fsm.Result[P], error)) {
	var (
		r   fsm.Result[P]
		err error
	)
	ss.Update(func() string {
		r, err = fire()
		return r.To.String()
	})

	if err != nil {
		s.logger.Error("transition missing", "machine", machine, "state", r.From, "event", event, "error", err)
		s.trace.Log(log.Event{
			Timestamp: s.now(),
			RunID:     s.cfg.RunID,
			Subsystem: machine,
			Direction: log.DirectionOut,
			Layer:     log.LayerControl,
			Category:  log.CategoryError,
			Cycle:     s.cycle,
			Error:     &log.ErrorEventData{Layer: log.LayerControl, Message: err.Error(), Context: event.String()},
		})
		return
	}

	s.metrics.Transition(machine, r.Transition)
	if r.Changed() || len(r.Effects) > 0 {
		effects := make([]string, len(r.Effects))
		for i, e := range r.Effects {
			effects[i] = e.String()
		}
		s.trace.Log(log.Event{
			Timestamp: s.now(),
			RunID:     s.cfg.RunID,
			Subsystem: machine,
			Direction: log.DirectionOut,
			Layer:     log.LayerControl,
			Category:  log.CategoryTransition,
			Cycle:     s.cycle,
			Transition: &log.TransitionEvent{
				Machine: machine,
				From:    r.From.String(),
				Event:   event.String(),
				To:      r.To.String(),
				Name:    r.Transition,
				Effects: effects,
			},
		})
	}
	if r.Changed() {
		s.logger.Info("state changed", "machine", machine, "from", r.From, "to", r.To, "transition", r.Transition)
	}

	s.execute(machine, ss, r.Effects)
}

func (s *Supervisor) execute(machine string, ss *subsystem.Subsystem, effects []fsm.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case fsm.EffectCommand, fsm.EffectAbort:
			req := subsystem.Request{Procedure: e.Procedure, Target: e.Target, IssuedAt: s.now()}
			if err := ss.RequestNewState(req); err != nil {
				s.logger.Error("request refused", "machine", machine, "effect", e.String(), "error", err)
			}
		case fsm.EffectDone:
			s.logger.Info("procedure complete", "machine", machine, "procedure", e.Name)
		case fsm.EffectRejected:
			s.logger.Warn("command rejected", "machine", machine, "reason", e.Name)
		case fsm.EffectIndicator:
			// Indicators are derived from machine state in outputs.
		}
	}
}

func (s *Supervisor) outputs(snap panel.Snapshot, v emergency.Verdict) panel.Outputs {
	ps := s.pressure.State()
	return panel.Outputs{
		Pressurized:   ps.Pressurized,
		InProgress:    ps.Phase.InProgress() || s.door.Phase().Moving(),
		Depressurized: ps.Depressurized,
		EnableActive:  snap.Enable,
		Confirm:       snap.Confirm,
		Emergency:     v.Asserted || s.pressure.InEmergency() || s.door.InEmergency(),
		Hold:          ps.Phase == pressure.Paused,
	}
}

func (s *Supervisor) buildReport(v emergency.Verdict, out panel.Outputs) Report {
	return Report{
		Cycle:     s.cycle,
		Pressure:  s.pressure.Phase().String(),
		Door:      s.door.Phase().String(),
		Light:     s.light.Phase().String(),
		Emergency: v.Asserted,
		Cause:     v.Cause,
		Watchdog:  s.watchdog.State().String(),

		WatchdogRemainingMS: s.watchdog.RemainingTime(s.now()).Milliseconds(),
		Reading:             s.reading,
		Outputs:             out,
		Skipped:             s.skipped,
	}
}

// watchdogChanged is called from Observe on the cycle goroutine.
func (s *Supervisor) watchdogChanged(from, to failsafe.State) {
	event := "reads_ok"
	if to == failsafe.StateFailing || to == failsafe.StateTripped {
		event = "read_failed"
	}
	s.trace.Log(log.Event{
		Timestamp: s.now(),
		RunID:     s.cfg.RunID,
		Direction: log.DirectionIn,
		Layer:     log.LayerControl,
		Category:  log.CategoryTransition,
		Cycle:     s.cycle,
		Transition: &log.TransitionEvent{
			Machine: WatchdogMachine,
			From:    from.String(),
			Event:   event,
			To:      to.String(),
			Name:    strings.ToLower(to.String()),
		},
	})

	if to == failsafe.StateTripped && from != failsafe.StateRecovering {
		s.metrics.WatchdogTripped()
		s.logger.Warn("input watchdog tripped", "timeout", s.watchdog.Duration(), "trips", s.watchdog.Trips())
		return
	}
	s.logger.Debug("input watchdog state changed", "from", from, "to", to)
}

func (s *Supervisor) traceError(source string, err error) {
	s.trace.Log(log.Event{
		Timestamp: s.now(),
		RunID:     s.cfg.RunID,
		Direction: log.DirectionIn,
		Layer:     log.LayerControl,
		Category:  log.CategoryError,
		Cycle:     s.cycle,
		Error:     &log.ErrorEventData{Layer: log.LayerControl, Message: err.Error(), Context: source + " read"},
	})
}
