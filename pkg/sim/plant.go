// Package sim simulates the airlock plant: the pressure valves, the door
// drive and the lights. It consumes the same frames the subsystems send to
// real actuator controllers and reports the resulting chamber readings.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/marscolony/airlock-go/pkg/door"
	"github.com/marscolony/airlock-go/pkg/light"
	"github.com/marscolony/airlock-go/pkg/pressure"
	"github.com/marscolony/airlock-go/pkg/protocol"
	"github.com/marscolony/airlock-go/pkg/sensor"
	"github.com/marscolony/airlock-go/pkg/transport"
)

// Scheme is the endpoint scheme served by Plant.Open.
const Scheme = "sim"

// Actuator names addressable as "sim:<name>".
const (
	Pressure = "pressure"
	Door     = "door"
	Light    = "light"
)

// Defaults.
const (
	DefaultPressureRate    = 500.0 // hPa/s
	DefaultDoorRate        = 90.0  // deg/s
	DefaultInitialPressure = pressure.DefaultDepressurizeTarget
)

var (
	// ErrInjected is returned by a transmit the test asked to fail.
	ErrInjected = errors.New("injected link failure")

	// ErrSensorFault is returned by Read while a sensor fault is injected.
	ErrSensorFault = errors.New("sensor fault")
)

// Config configures a Plant. Zero values select the defaults.
type Config struct {
	PressureRate    float64
	DoorRate        float64
	InitialPressure float64
	InitialAngle    float64

	// Now overrides the clock, for tests.
	Now    func() time.Time
	Logger *slog.Logger
}

type axis struct {
	value  float64
	target float64
	moving bool
	rate   float64
}

func (a *axis) advance(dt time.Duration) {
	if !a.moving {
		return
	}
	step := a.rate * dt.Seconds()
	diff := a.target - a.value
	if math.Abs(diff) <= step {
		a.value = a.target
		a.moving = false
		return
	}
	a.value += math.Copysign(step, diff)
}

func (a *axis) drive(target float64) {
	a.target = target
	a.moving = a.value != target
}

// Plant is the simulated chamber. It is safe for concurrent use.
type Plant struct {
	now    func() time.Time
	logger *slog.Logger

	mu          sync.Mutex
	pressure    axis
	door        axis
	lightOn     bool
	lightLevel  float64
	last        time.Time
	frames      map[string]int
	failNext    map[string]int
	sensorFault bool
}

var _ sensor.Reader = (*Plant)(nil)

// New creates a plant.
func New(cfg Config) *Plant {
	if cfg.PressureRate <= 0 {
		cfg.PressureRate = DefaultPressureRate
	}
	if cfg.DoorRate <= 0 {
		cfg.DoorRate = DefaultDoorRate
	}
	if cfg.InitialPressure == 0 {
		cfg.InitialPressure = DefaultInitialPressure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Plant{
		now:      cfg.Now,
		logger:   cfg.Logger.With("component", "sim"),
		pressure: axis{value: cfg.InitialPressure, target: cfg.InitialPressure, rate: cfg.PressureRate},
		door:     axis{value: cfg.InitialAngle, target: cfg.InitialAngle, rate: cfg.DoorRate},
		last:     cfg.Now(),
		frames:   make(map[string]int),
		failNext: make(map[string]int),
	}
}

// Open returns a link to one simulated actuator. It has the shape of a
// transport.Opener so it can be registered for the "sim" scheme.
func (p *Plant) Open(ctx context.Context, endpoint string) (transport.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scheme, name, err := transport.SplitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if scheme != Scheme {
		return nil, fmt.Errorf("%w: %q", transport.ErrUnsupportedScheme, scheme)
	}
	if !validActuator(name) {
		return nil, fmt.Errorf("%w: no simulated actuator %q", transport.ErrBadEndpoint, name)
	}
	return &link{plant: p, name: name}, nil
}

// Read advances the simulation to now and samples it.
func (p *Plant) Read(ctx context.Context) (sensor.Reading, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Reading{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sensorFault {
		return sensor.Reading{}, ErrSensorFault
	}
	now := p.advance()
	return sensor.Reading{Pressure: p.pressure.value, DoorAngle: p.door.value, At: now}, nil
}

// Pressure returns the current chamber pressure without advancing time.
func (p *Plant) Pressure() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pressure.value
}

// DoorAngle returns the current door angle without advancing time.
func (p *Plant) DoorAngle() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.door.value
}

// Moving reports whether the valves or the door drive are active.
func (p *Plant) Moving() (valves, door bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pressure.moving, p.door.moving
}

// LightOn reports the lamp state and level.
func (p *Plant) LightOn() (bool, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lightOn, p.lightLevel
}

// Frames returns how many frames the named actuator accepted.
func (p *Plant) Frames(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[name]
}

// FailNext makes the next n transmits to the named actuator fail.
func (p *Plant) FailNext(name string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext[name] = n
}

// SetSensorFault makes Read fail until cleared.
func (p *Plant) SetSensorFault(fault bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sensorFault = fault
}

// advance must be called with p.mu held.
func (p *Plant) advance() time.Time {
	now := p.now()
	if dt := now.Sub(p.last); dt > 0 {
		p.pressure.advance(dt)
		p.door.advance(dt)
	}
	p.last = now
	return now
}

func (p *Plant) accept(name string, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.failNext[name]; n > 0 {
		p.failNext[name] = n - 1
		return ErrInjected
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	p.apply(name, msg)
	return nil
}

// apply must be called with p.mu held.
func (p *Plant) apply(name string, msg protocol.Message) {
	p.advance()
	p.frames[name]++

	switch name {
	case Pressure:
		p.applyPressure(msg)
	case Door:
		p.applyDoor(msg)
	case Light:
		p.applyLight(msg)
	}
	p.logger.Debug("frame applied", "actuator", name, "msg", msg.String())
}

func (p *Plant) applyPressure(msg protocol.Message) {
	if msg.Action == protocol.ActionAbort {
		p.pressure.moving = false
		return
	}
	v, err := msg.Value()
	if err != nil {
		return
	}
	switch msg.Procedure {
	case pressure.ProcPressurize, pressure.ProcDepressurize:
		p.pressure.drive(v)
	case pressure.ProcHold, pressure.ProcAbort:
		p.pressure.moving = false
	}
}

func (p *Plant) applyDoor(msg protocol.Message) {
	if msg.Action == protocol.ActionAbort {
		p.door.moving = false
		return
	}
	v, err := msg.Value()
	if err != nil {
		return
	}
	switch msg.Procedure {
	case door.ProcOpen, door.ProcClose:
		p.door.drive(v)
	case door.ProcHalt:
		p.door.moving = false
	}
}

func (p *Plant) applyLight(msg protocol.Message) {
	v, err := msg.Value()
	if err != nil {
		return
	}
	switch msg.Procedure {
	case light.ProcOn:
		p.lightOn = true
		p.lightLevel = v
	case light.ProcOff:
		p.lightOn = false
		p.lightLevel = 0
	}
}

type link struct {
	plant *Plant
	name  string

	mu     sync.Mutex
	closed bool
}

func (l *link) Transmit(frame []byte) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return transport.ErrLinkClosed
	}
	return l.plant.accept(l.name, frame)
}

func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
