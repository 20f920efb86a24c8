package pressure

import (
	"errors"
	"fmt"
)

// Procedure identifiers understood by the pressure valve controller.
const (
	ProcPressurize   uint8 = 1
	ProcDepressurize uint8 = 2
	ProcHold         uint8 = 3
	ProcAbort        uint8 = 4

	// MaxProcedure is the highest valid procedure id.
	MaxProcedure = ProcAbort
)

// Safe target bounds in hPa.
const (
	MinTarget = 0.0
	MaxTarget = 1100.0

	// DefaultPressurizeTarget is nominal habitat pressure.
	DefaultPressurizeTarget = 1013.0

	// DefaultDepressurizeTarget is roughly ambient Martian surface pressure.
	DefaultDepressurizeTarget = 6.0
)

// ErrInvalidTargets is returned by New for out-of-range or inverted targets.
var ErrInvalidTargets = errors.New("invalid pressure targets")

// Phase is the state of the pressure machine.
type Phase uint8

const (
	Idle Phase = iota
	Pressurizing
	Depressurizing
	Paused
	Emergency
)

var phaseNames = [...]string{
	Idle:           "Idle",
	Pressurizing:   "Pressurizing",
	Depressurizing: "Depressurizing",
	Paused:         "Paused",
	Emergency:      "Emergency",
}

// String returns the phase name.
func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// InProgress reports whether a procedure is actively running.
func (p Phase) InProgress() bool {
	return p == Pressurizing || p == Depressurizing
}

// EventKind identifies an input to the pressure machine.
type EventKind uint8

const (
	StartPressurize EventKind = iota + 1
	StartDepressurize
	Tick
	Pause
	Resume
	EmergencyAsserted
	EmergencyCleared
)

var eventNames = [...]string{
	StartPressurize:   "StartPressurize",
	StartDepressurize: "StartDepressurize",
	Tick:              "Tick",
	Pause:             "Pause",
	Resume:            "Resume",
	EmergencyAsserted: "EmergencyAsserted",
	EmergencyCleared:  "EmergencyCleared",
}

// String returns the event name.
func (k EventKind) String() string {
	if k > 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is an input with its payload. Reading is only meaningful for Tick.
type Event struct {
	Kind    EventKind
	Reading float64
}

// On returns a payload-free event.
func On(kind EventKind) Event {
	return Event{Kind: kind}
}

// TickAt returns a Tick carrying the current chamber reading in hPa.
func TickAt(reading float64) Event {
	return Event{Kind: Tick, Reading: reading}
}

// Targets holds the convergence thresholds in hPa.
type Targets struct {
	Pressurize   float64
	Depressurize float64
}

// DefaultTargets returns the nominal thresholds.
func DefaultTargets() Targets {
	return Targets{
		Pressurize:   DefaultPressurizeTarget,
		Depressurize: DefaultDepressurizeTarget,
	}
}

// Validate checks the thresholds against the valve bounds.
func (t Targets) Validate() error {
	for _, v := range []float64{t.Pressurize, t.Depressurize} {
		if v != v || v < MinTarget || v > MaxTarget {
			return fmt.Errorf("%w: %g outside [%g, %g]", ErrInvalidTargets, v, MinTarget, MaxTarget)
		}
	}
	if t.Depressurize >= t.Pressurize {
		return fmt.Errorf("%w: depressurize %g must be below pressurize %g", ErrInvalidTargets, t.Depressurize, t.Pressurize)
	}
	return nil
}

// Quantized returns the targets rounded to the float32 precision of an
// apply frame.
func (t Targets) Quantized() Targets {
	return Targets{
		Pressurize:   float64(float32(t.Pressurize)),
		Depressurize: float64(float32(t.Depressurize)),
	}
}

// State is a consistent copy of the machine's data.
type State struct {
	Phase Phase

	// ResumeInto is the procedure a Paused machine returns to.
	ResumeInto Phase

	// Target is the threshold of the in-flight procedure, zero when idle.
	Target float64

	// Reading is the last reading seen on a Tick.
	Reading float64

	// Pressurized and Depressurized record the last completed procedure.
	// Both are cleared when a new procedure starts or an emergency hits.
	Pressurized   bool
	Depressurized bool
}
