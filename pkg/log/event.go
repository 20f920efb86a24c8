package log

import (
	"time"
)

// Event is one trace record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// RunID identifies one controller process lifetime (UUID).
	RunID string `cbor:"2,keyasint,omitempty"`

	// Subsystem is the subsystem name, empty for system-wide events.
	Subsystem string `cbor:"3,keyasint,omitempty"`

	// Direction of frame flow; OUT for everything the controller originates.
	Direction Direction `cbor:"4,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"5,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"6,keyasint"`

	// Cycle is the supervisor cycle number, zero outside the control loop.
	Cycle uint64 `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame      *FrameEvent      `cbor:"10,keyasint,omitempty"`
	Transition *TransitionEvent `cbor:"11,keyasint,omitempty"`
	Emergency  *EmergencyEvent  `cbor:"12,keyasint,omitempty"`
	Request    *RequestEvent    `cbor:"13,keyasint,omitempty"`
	Error      *ErrorEventData  `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of frame flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where an event was captured.
type Layer uint8

const (
	// LayerLink is the actuator link (encoded frames).
	LayerLink Layer = 0

	// LayerSubsystem is the subsystem request boundary.
	LayerSubsystem Layer = 1

	// LayerControl is the supervisor, the arbiter and the state machines.
	LayerControl Layer = 2
)

func (l Layer) String() string {
	switch l {
	case LayerLink:
		return "LINK"
	case LayerSubsystem:
		return "SUBSYSTEM"
	case LayerControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryFrame      Category = 0
	CategoryTransition Category = 1
	CategoryEmergency  Category = 2
	CategoryRequest    Category = 3
	CategoryError      Category = 4
)

func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryTransition:
		return "TRANSITION"
	case CategoryEmergency:
		return "EMERGENCY"
	case CategoryRequest:
		return "REQUEST"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one encoded actuator frame.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Action    uint8  `cbor:"3,keyasint"`
	Procedure uint8  `cbor:"4,keyasint"`
}

// TransitionEvent captures one state machine step.
type TransitionEvent struct {
	// Machine is "pressure", "door", "light" or "watchdog".
	Machine string `cbor:"1,keyasint"`

	From  string `cbor:"2,keyasint"`
	Event string `cbor:"3,keyasint"`
	To    string `cbor:"4,keyasint"`

	// Name is the transition name, e.g. "keep_pressurize".
	Name string `cbor:"5,keyasint"`

	// Effects lists the emitted effects in execution order.
	Effects []string `cbor:"6,keyasint,omitempty"`
}

// EmergencyEvent captures a change of the emergency latch.
type EmergencyEvent struct {
	Latch EmergencyLatch `cbor:"1,keyasint"`

	// Cause names the inputs that hold the latch, e.g. "channel+watchdog".
	Cause string `cbor:"2,keyasint,omitempty"`
}

// EmergencyLatch is the latch transition being recorded.
type EmergencyLatch uint8

const (
	LatchRaised  EmergencyLatch = 0
	LatchCleared EmergencyLatch = 1
)

func (l EmergencyLatch) String() string {
	switch l {
	case LatchRaised:
		return "RAISED"
	case LatchCleared:
		return "CLEARED"
	default:
		return "UNKNOWN"
	}
}

// RequestEvent captures a procedure request at the subsystem boundary.
type RequestEvent struct {
	Procedure uint8   `cbor:"1,keyasint"`
	Target    float64 `cbor:"2,keyasint"`

	// Rejected holds the validation failure, empty when installed.
	Rejected string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
