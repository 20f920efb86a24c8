package door

import (
	"math"

	"github.com/marscolony/airlock-go/pkg/fsm"
)

type step struct {
	state  State
	event  Event
	angles Angles
}

type transition = fsm.Transition[Phase, EventKind, *step]

var table = fsm.MustNew(tableSpec())

// Rows returns the transition table for diagnostics.
func Rows() []fsm.Row {
	return table.Rows()
}

// Machine is the door state machine. Callers serialize access through the
// owning subsystem.
type Machine struct {
	angles Angles
	state  State
}

// New creates a machine in Idle with its angles rounded to wire precision.
func New(angles Angles) (*Machine, error) {
	if err := angles.Validate(); err != nil {
		return nil, err
	}
	angles = angles.Quantized()
	return &Machine{angles: angles, state: State{Phase: Idle, Target: angles.Closed}}, nil
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Phase() Phase {
	return m.state.Phase
}

// Target returns the commanded angle.
func (m *Machine) Target() float64 {
	return m.state.Target
}

// InEmergency reports whether the machine is latched in Emergency.
func (m *Machine) InEmergency() bool {
	return m.state.Phase == Emergency
}

// Reached reports whether a measured angle is within tolerance of the target.
func (m *Machine) Reached(angle float64) bool {
	return math.Abs(angle-m.state.Target) <= m.angles.Tolerance
}

// Fire applies one event and commits the resulting state.
func (m *Machine) Fire(ev Event) (fsm.Result[Phase], error) {
	s := &step{state: m.state, event: ev, angles: m.angles}
	r, err := table.Apply(m.state.Phase, ev.Kind, s)
	if err != nil {
		return r, err
	}
	s.state.Phase = r.To
	m.state = s.state
	return r, nil
}

func tableSpec() fsm.Spec[Phase, EventKind, *step] {
	states := []Phase{Idle, Opening, Closing, Open, Closed, Emergency}

	ts := []transition{
		{Name: "start_open", From: Idle, On: StartOpen, To: Opening, Do: travel(ProcOpen)},
		{Name: "start_close", From: Idle, On: StartClose, To: Closing, Do: travel(ProcClose)},
		stay(Idle, Tick, "keep_idling"),

		stay(Opening, StartOpen, "keep_opening"),
		reject(Opening, StartClose),
		{Name: "done_open", From: Opening, On: Tick, To: Open, Guard: reached, Do: done("done_open")},
		stay(Opening, Tick, "keep_opening"),

		stay(Closing, StartClose, "keep_closing"),
		reject(Closing, StartOpen),
		{Name: "done_close", From: Closing, On: Tick, To: Closed, Guard: reached, Do: done("done_close")},
		stay(Closing, Tick, "keep_closing"),

		stay(Open, StartOpen, "keep_open"),
		{Name: "start_close", From: Open, On: StartClose, To: Closing, Do: travel(ProcClose)},
		stay(Open, Tick, "keep_open"),

		{Name: "start_open", From: Closed, On: StartOpen, To: Opening, Do: travel(ProcOpen)},
		stay(Closed, StartClose, "keep_closed"),
		stay(Closed, Tick, "keep_closed"),

		stay(Emergency, StartOpen, "keep_emergency"),
		stay(Emergency, StartClose, "keep_emergency"),
		stay(Emergency, Tick, "keep_emergency"),
		{Name: "emergency_unresolved", From: Emergency, On: EmergencyAsserted, To: Emergency, Do: halt},
		{Name: "emergency_cleared", From: Emergency, On: EmergencyCleared, To: Idle},
	}
	for _, p := range states[:len(states)-1] {
		ts = append(ts,
			transition{Name: "detected_emergency", From: p, On: EmergencyAsserted, To: Emergency},
			stay(p, EmergencyCleared, "no_emergency"),
		)
	}

	return fsm.Spec[Phase, EventKind, *step]{
		States:      states,
		Events:      []EventKind{StartOpen, StartClose, Tick, EmergencyAsserted, EmergencyCleared},
		Transitions: ts,
		Enter: map[Phase]func(*step) []fsm.Effect{
			Emergency: func(*step) []fsm.Effect {
				return []fsm.Effect{fsm.Abort("halt_door", ProcHalt), fsm.Indicator("emergency")}
			},
		},
	}
}

func stay(p Phase, on EventKind, name string) transition {
	return transition{Name: name, From: p, On: on, To: p}
}

func reject(p Phase, on EventKind) transition {
	return transition{Name: "reject_reversal", From: p, On: on, To: p, Do: func(*step) []fsm.Effect {
		return []fsm.Effect{fsm.Rejected("reject_reversal")}
	}}
}

func travel(proc uint8) func(*step) []fsm.Effect {
	return func(s *step) []fsm.Effect {
		if proc == ProcOpen {
			s.state.Target = s.angles.Open
			return []fsm.Effect{fsm.Command("open_door", proc, s.state.Target)}
		}
		s.state.Target = s.angles.Closed
		return []fsm.Effect{fsm.Command("close_door", proc, s.state.Target)}
	}
}

func reached(s *step) bool {
	return s.event.Reached
}

func done(name string) func(*step) []fsm.Effect {
	return func(*step) []fsm.Effect {
		return []fsm.Effect{fsm.Done(name)}
	}
}

func halt(*step) []fsm.Effect {
	return []fsm.Effect{fsm.Abort("halt_door", ProcHalt)}
}
