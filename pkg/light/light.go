// Package light implements the chamber lighting state machine.
//
// Lighting has no emergency handling of its own. The emergency indicator is
// driven by the pressure and door machines through the output panel.
package light

import (
	"errors"
	"fmt"
	"math"

	"github.com/marscolony/airlock-go/pkg/fsm"
)

// Procedure identifiers understood by the lighting driver.
const (
	ProcOn  uint8 = 1
	ProcOff uint8 = 2

	MaxProcedure = ProcOff
)

// Brightness bounds in percent.
const (
	MinLevel     = 0.0
	MaxLevel     = 100.0
	DefaultLevel = 100.0
)

var ErrInvalidLevel = errors.New("invalid light level")

// Phase is the state of the light machine.
type Phase uint8

const (
	Off Phase = iota
	On
)

func (p Phase) String() string {
	switch p {
	case Off:
		return "Off"
	case On:
		return "On"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// EventKind identifies an input to the light machine.
type EventKind uint8

const (
	TurnOn EventKind = iota + 1
	TurnOff
)

func (k EventKind) String() string {
	switch k {
	case TurnOn:
		return "TurnOn"
	case TurnOff:
		return "TurnOff"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Switch maps a switch level to the matching event.
func Switch(on bool) EventKind {
	if on {
		return TurnOn
	}
	return TurnOff
}

type step struct {
	level float64
}

var table = fsm.MustNew(fsm.Spec[Phase, EventKind, *step]{
	States: []Phase{Off, On},
	Events: []EventKind{TurnOn, TurnOff},
	Transitions: []fsm.Transition[Phase, EventKind, *step]{
		{Name: "turn_on", From: Off, On: TurnOn, To: On, Do: func(s *step) []fsm.Effect {
			return []fsm.Effect{fsm.Command("lights_on", ProcOn, s.level)}
		}},
		{Name: "keep_off", From: Off, On: TurnOff, To: Off},
		{Name: "keep_on", From: On, On: TurnOn, To: On},
		{Name: "turn_off", From: On, On: TurnOff, To: Off, Do: func(*step) []fsm.Effect {
			return []fsm.Effect{fsm.Command("lights_off", ProcOff, 0)}
		}},
	},
})

// Rows returns the transition table for diagnostics.
func Rows() []fsm.Row {
	return table.Rows()
}

// Machine is the light state machine. It starts Off.
type Machine struct {
	level float64
	phase Phase
}

// New creates a machine that switches on at level percent.
func New(level float64) (*Machine, error) {
	if math.IsNaN(level) || level < MinLevel || level > MaxLevel {
		return nil, fmt.Errorf("%w: %g outside [%g, %g]", ErrInvalidLevel, level, MinLevel, MaxLevel)
	}
	return &Machine{level: level, phase: Off}, nil
}

func (m *Machine) Phase() Phase {
	return m.phase
}

// Fire applies one event and commits the resulting phase.
func (m *Machine) Fire(kind EventKind) (fsm.Result[Phase], error) {
	r, err := table.Apply(m.phase, kind, &step{level: m.level})
	if err != nil {
		return r, err
	}
	m.phase = r.To
	return r, nil
}
