package pressure

import (
	"github.com/marscolony/airlock-go/pkg/fsm"
)

// step is the working context handed to guards and effects. Effects mutate
// the copy in state; Fire commits it only after the table accepted the event.
type step struct {
	state   State
	event   Event
	targets Targets
}

type transition = fsm.Transition[Phase, EventKind, *step]

var table = fsm.MustNew(tableSpec())

// Rows returns the transition table for diagnostics.
func Rows() []fsm.Row {
	return table.Rows()
}

// Machine is the pressure state machine. It is not safe for concurrent use;
// callers serialize access through the owning subsystem.
type Machine struct {
	targets Targets
	state   State
}

// New creates a machine in Idle. The targets are rounded to wire precision so
// readings are compared against exactly what the actuator is sent.
func New(targets Targets) (*Machine, error) {
	if err := targets.Validate(); err != nil {
		return nil, err
	}
	return &Machine{targets: targets.Quantized(), state: State{Phase: Idle}}, nil
}

// State returns a copy of the machine's data.
func (m *Machine) State() State {
	return m.state
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.state.Phase
}

// Targets returns the configured thresholds.
func (m *Machine) Targets() Targets {
	return m.targets
}

// InEmergency reports whether the machine is latched in Emergency.
func (m *Machine) InEmergency() bool {
	return m.state.Phase == Emergency
}

// Fire applies one event. The new state is committed before the effects are
// returned, so the caller executes them against a consistent machine.
func (m *Machine) Fire(ev Event) (fsm.Result[Phase], error) {
	s := &step{state: m.state, event: ev, targets: m.targets}
	if ev.Kind == Tick {
		s.state.Reading = ev.Reading
	}

	r, err := table.Apply(m.state.Phase, ev.Kind, s)
	if err != nil {
		return r, err
	}
	s.state.Phase = r.To
	m.state = s.state
	return r, nil
}

func tableSpec() fsm.Spec[Phase, EventKind, *step] {
	states := []Phase{Idle, Pressurizing, Depressurizing, Paused, Emergency}
	events := []EventKind{StartPressurize, StartDepressurize, Tick, Pause, Resume, EmergencyAsserted, EmergencyCleared}

	ts := []transition{
		{Name: "start_pressurize", From: Idle, On: StartPressurize, To: Pressurizing, Do: start(ProcPressurize)},
		{Name: "start_depressurize", From: Idle, On: StartDepressurize, To: Depressurizing, Do: start(ProcDepressurize)},
		stay(Idle, Tick, "keep_idling"),
		stay(Idle, Pause, "ignore_pause"),
		stay(Idle, Resume, "ignore_resume"),
		stay(Idle, EmergencyCleared, "no_emergency"),

		stay(Pressurizing, StartPressurize, "keep_pressurize"),
		reject(Pressurizing, StartDepressurize),
		{Name: "done_pressurize", From: Pressurizing, On: Tick, To: Idle, Guard: aboveTarget, Do: done(ProcPressurize)},
		stay(Pressurizing, Tick, "keep_pressurize"),
		{Name: "pause_pressurize", From: Pressurizing, On: Pause, To: Paused, Do: pause(Pressurizing)},
		stay(Pressurizing, Resume, "keep_pressurize"),
		stay(Pressurizing, EmergencyCleared, "no_emergency"),

		stay(Depressurizing, StartDepressurize, "keep_depressurize"),
		reject(Depressurizing, StartPressurize),
		{Name: "done_depressurize", From: Depressurizing, On: Tick, To: Idle, Guard: belowTarget, Do: done(ProcDepressurize)},
		stay(Depressurizing, Tick, "keep_depressurize"),
		{Name: "pause_depressurize", From: Depressurizing, On: Pause, To: Paused, Do: pause(Depressurizing)},
		stay(Depressurizing, Resume, "keep_depressurize"),
		stay(Depressurizing, EmergencyCleared, "no_emergency"),

		stay(Paused, StartPressurize, "keep_pausing"),
		stay(Paused, StartDepressurize, "keep_pausing"),
		stay(Paused, Tick, "keep_pausing"),
		stay(Paused, Pause, "keep_pausing"),
		{Name: "resume_pressurize", From: Paused, On: Resume, To: Pressurizing, Guard: resumes(Pressurizing), Do: resume(ProcPressurize)},
		{Name: "resume_depressurize", From: Paused, On: Resume, To: Depressurizing, Guard: resumes(Depressurizing), Do: resume(ProcDepressurize)},
		stay(Paused, Resume, "keep_pausing"),
		stay(Paused, EmergencyCleared, "no_emergency"),

		{Name: "emergency_unresolved", From: Emergency, On: EmergencyAsserted, To: Emergency, Do: abort},
		{Name: "emergency_cleared", From: Emergency, On: EmergencyCleared, To: Idle},
	}
	for _, e := range []EventKind{StartPressurize, StartDepressurize, Tick, Pause, Resume} {
		ts = append(ts, stay(Emergency, e, "keep_emergency"))
	}
	for _, p := range states[:len(states)-1] {
		ts = append(ts, transition{Name: "detected_emergency", From: p, On: EmergencyAsserted, To: Emergency, Do: detected})
	}

	return fsm.Spec[Phase, EventKind, *step]{
		States:      states,
		Events:      events,
		Transitions: ts,
		Enter: map[Phase]func(*step) []fsm.Effect{
			Emergency: func(s *step) []fsm.Effect {
				return []fsm.Effect{fsm.Abort("abort_actuation", ProcAbort), fsm.Indicator("emergency")}
			},
		},
	}
}

func stay(p Phase, on EventKind, name string) transition {
	return transition{Name: name, From: p, On: on, To: p}
}

// reject ignores a request to reverse an in-flight procedure.
func reject(p Phase, on EventKind) transition {
	return transition{Name: "reject_reversal", From: p, On: on, To: p, Do: func(*step) []fsm.Effect {
		return []fsm.Effect{fsm.Rejected("reject_reversal")}
	}}
}

func start(proc uint8) func(*step) []fsm.Effect {
	return func(s *step) []fsm.Effect {
		s.state.Target = s.targets.Pressurize
		name := "start_pressurize"
		if proc == ProcDepressurize {
			s.state.Target = s.targets.Depressurize
			name = "start_depressurize"
		}
		s.state.Pressurized = false
		s.state.Depressurized = false
		s.state.ResumeInto = Idle
		return []fsm.Effect{fsm.Command(name, proc, s.state.Target)}
	}
}

func aboveTarget(s *step) bool {
	return s.event.Reading >= s.state.Target
}

func belowTarget(s *step) bool {
	return s.event.Reading <= s.state.Target
}

func done(proc uint8) func(*step) []fsm.Effect {
	return func(s *step) []fsm.Effect {
		target := s.state.Target
		s.state.Target = 0
		name := "done_pressurize"
		if proc == ProcDepressurize {
			s.state.Depressurized = true
			name = "done_depressurize"
		} else {
			s.state.Pressurized = true
		}
		return []fsm.Effect{fsm.Done(name), fsm.Command("hold_valves", ProcHold, target)}
	}
}

func pause(from Phase) func(*step) []fsm.Effect {
	return func(s *step) []fsm.Effect {
		s.state.ResumeInto = from
		return []fsm.Effect{fsm.Command("hold_valves", ProcHold, s.state.Target)}
	}
}

func resumes(into Phase) func(*step) bool {
	return func(s *step) bool {
		return s.state.ResumeInto == into
	}
}

func resume(proc uint8) func(*step) []fsm.Effect {
	return func(s *step) []fsm.Effect {
		s.state.ResumeInto = Idle
		name := "resume_pressurize"
		if proc == ProcDepressurize {
			name = "resume_depressurize"
		}
		return []fsm.Effect{fsm.Command(name, proc, s.state.Target)}
	}
}

func detected(s *step) []fsm.Effect {
	s.state.Target = 0
	s.state.ResumeInto = Idle
	s.state.Pressurized = false
	s.state.Depressurized = false
	return nil
}

func abort(*step) []fsm.Effect {
	return []fsm.Effect{fsm.Abort("abort_actuation", ProcAbort)}
}
