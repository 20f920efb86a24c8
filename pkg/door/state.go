package door

import (
	"errors"
	"fmt"
	"math"
)

// Procedure identifiers understood by the door controller.
const (
	ProcOpen  uint8 = 1
	ProcClose uint8 = 2
	ProcHalt  uint8 = 3

	// MaxProcedure is the highest valid procedure id.
	MaxProcedure = ProcHalt
)

// Safe angle bounds in degrees.
const (
	MinAngle = 0.0
	MaxAngle = 90.0

	DefaultOpenAngle   = 90.0
	DefaultClosedAngle = 0.0
	DefaultTolerance   = 1.0
)

// ErrInvalidAngles is returned by New for unusable angle settings.
var ErrInvalidAngles = errors.New("invalid door angles")

// Phase is the state of the door machine.
type Phase uint8

const (
	Idle Phase = iota
	Opening
	Closing
	Open
	Closed
	Emergency
)

var phaseNames = [...]string{
	Idle:      "Idle",
	Opening:   "Opening",
	Closing:   "Closing",
	Open:      "Open",
	Closed:    "Closed",
	Emergency: "Emergency",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// Moving reports whether the door is travelling.
func (p Phase) Moving() bool {
	return p == Opening || p == Closing
}

// EventKind identifies an input to the door machine.
type EventKind uint8

const (
	StartOpen EventKind = iota + 1
	StartClose
	Tick
	EmergencyAsserted
	EmergencyCleared
)

var eventNames = [...]string{
	StartOpen:         "StartOpen",
	StartClose:        "StartClose",
	Tick:              "Tick",
	EmergencyAsserted: "EmergencyAsserted",
	EmergencyCleared:  "EmergencyCleared",
}

func (k EventKind) String() string {
	if k > 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is an input with its payload. Reached is only meaningful for Tick.
type Event struct {
	Kind    EventKind
	Reached bool
}

// On returns a payload-free event.
func On(kind EventKind) Event {
	return Event{Kind: kind}
}

// TickReached returns a Tick reporting whether the commanded angle was reached.
func TickReached(reached bool) Event {
	return Event{Kind: Tick, Reached: reached}
}

// Angles holds the commanded end positions in degrees.
type Angles struct {
	Open   float64
	Closed float64

	// Tolerance is how close the measured angle must be to count as reached.
	Tolerance float64
}

// DefaultAngles returns the nominal end positions.
func DefaultAngles() Angles {
	return Angles{Open: DefaultOpenAngle, Closed: DefaultClosedAngle, Tolerance: DefaultTolerance}
}

// Quantized returns the end positions rounded to the float32 precision of an
// apply frame.
func (a Angles) Quantized() Angles {
	a.Open = float64(float32(a.Open))
	a.Closed = float64(float32(a.Closed))
	return a
}

// Validate checks the angles against the mechanism bounds.
func (a Angles) Validate() error {
	for _, v := range []float64{a.Open, a.Closed} {
		if math.IsNaN(v) || v < MinAngle || v > MaxAngle {
			return fmt.Errorf("%w: %g outside [%g, %g]", ErrInvalidAngles, v, MinAngle, MaxAngle)
		}
	}
	if !(a.Tolerance > 0) || a.Tolerance >= math.Abs(a.Open-a.Closed) {
		return fmt.Errorf("%w: tolerance %g", ErrInvalidAngles, a.Tolerance)
	}
	return nil
}

// State is a consistent copy of the machine's data.
type State struct {
	Phase Phase

	// Target is the angle of the last commanded travel.
	Target float64
}
