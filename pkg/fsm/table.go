package fsm

import (
	"errors"
	"fmt"
)

// Table errors.
var (
	// ErrIncomplete indicates a declared (state, event) pair without a total transition.
	ErrIncomplete = errors.New("incomplete transition table")

	// ErrUndeclared indicates a transition that references an undeclared state or event.
	ErrUndeclared = errors.New("undeclared state or event")

	// ErrShadowed indicates a transition that can never be selected.
	ErrShadowed = errors.New("unreachable transition")

	// ErrNoTransition indicates a Step on a pair with no matching transition.
	ErrNoTransition = errors.New("no transition")
)

// TransitionError describes a table defect or a lookup miss.
type TransitionError struct {
	State any
	Event any
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("fsm: %v on %v: %v", e.State, e.Event, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Transition is one candidate edge for a (From, On) pair.
type Transition[S, E comparable, C any] struct {
	// Name identifies the transition in logs, e.g. "keep_pressurize".
	Name string

	From S
	On   E

	// Guard selects this transition. Nil means always.
	Guard func(C) bool

	To S

	// Do returns the transition's effects. It may update the context's
	// working data; the caller decides whether to commit it.
	Do func(C) []Effect
}

// Spec declares a table.
type Spec[S, E comparable, C any] struct {
	States      []S
	Events      []E
	Transitions []Transition[S, E, C]

	// Enter and Exit effects run only when the state actually changes.
	Enter map[S]func(C) []Effect
	Exit  map[S]func(C) []Effect
}

// Pair is a (state, event) combination declared by a table.
type Pair[S, E comparable] struct {
	State S
	Event E
}

// Table is a validated transition table.
// It is immutable after New and safe for concurrent use.
type Table[S, E comparable, C any] struct {
	states []S
	events []E
	rules  map[Pair[S, E]][]Transition[S, E, C]
	enter  map[S]func(C) []Effect
	exit   map[S]func(C) []Effect
}

// New builds a table from spec and validates that it is total over the
// declared states and events.
func New[S, E comparable, C any](spec Spec[S, E, C]) (*Table[S, E, C], error) {
	if len(spec.States) == 0 || len(spec.Events) == 0 {
		return nil, fmt.Errorf("%w: no states or events declared", ErrIncomplete)
	}

	states := make(map[S]bool, len(spec.States))
	for _, s := range spec.States {
		states[s] = true
	}
	events := make(map[E]bool, len(spec.Events))
	for _, e := range spec.Events {
		events[e] = true
	}

	t := &Table[S, E, C]{
		states: append([]S(nil), spec.States...),
		events: append([]E(nil), spec.Events...),
		rules:  make(map[Pair[S, E]][]Transition[S, E, C]),
		enter:  spec.Enter,
		exit:   spec.Exit,
	}

	for _, tr := range spec.Transitions {
		if !states[tr.From] || !states[tr.To] || !events[tr.On] {
			return nil, &TransitionError{State: tr.From, Event: tr.On, Err: ErrUndeclared}
		}
		p := Pair[S, E]{tr.From, tr.On}
		t.rules[p] = append(t.rules[p], tr)
	}
	for s := range t.enter {
		if !states[s] {
			return nil, &TransitionError{State: s, Event: "enter", Err: ErrUndeclared}
		}
	}
	for s := range t.exit {
		if !states[s] {
			return nil, &TransitionError{State: s, Event: "exit", Err: ErrUndeclared}
		}
	}

	for _, p := range t.Pairs() {
		candidates := t.rules[p]
		if len(candidates) == 0 {
			return nil, &TransitionError{State: p.State, Event: p.Event, Err: ErrIncomplete}
		}
		for i, tr := range candidates {
			if tr.Guard == nil && i != len(candidates)-1 {
				return nil, &TransitionError{State: p.State, Event: p.Event, Err: ErrShadowed}
			}
		}
		if candidates[len(candidates)-1].Guard != nil {
			return nil, &TransitionError{State: p.State, Event: p.Event, Err: ErrIncomplete}
		}
	}

	return t, nil
}

// MustNew is like New but panics on an invalid table.
// Use it for package-level tables whose validity is covered by tests.
func MustNew[S, E comparable, C any](spec Spec[S, E, C]) *Table[S, E, C] {
	t, err := New(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// Result describes one applied transition.
type Result[S comparable] struct {
	From       S
	To         S
	Transition string
	Effects    []Effect
}

// Changed reports whether the transition left the state.
func (r Result[S]) Changed() bool {
	return r.From != r.To
}

// Step selects the transition for (state, event) and returns the next state
// and the effects to execute once that state has been committed.
func (t *Table[S, E, C]) Step(state S, event E, c C) (S, []Effect, error) {
	r, err := t.Apply(state, event, c)
	return r.To, r.Effects, err
}

// Apply is Step with the transition name attached.
func (t *Table[S, E, C]) Apply(state S, event E, c C) (Result[S], error) {
	tr, ok := t.match(state, event, c)
	if !ok {
		return Result[S]{From: state, To: state}, &TransitionError{State: state, Event: event, Err: ErrNoTransition}
	}

	var effects []Effect
	changed := tr.To != state
	if changed {
		if fn := t.exit[state]; fn != nil {
			effects = append(effects, fn(c)...)
		}
	}
	if tr.Do != nil {
		effects = append(effects, tr.Do(c)...)
	}
	if changed {
		if fn := t.enter[tr.To]; fn != nil {
			effects = append(effects, fn(c)...)
		}
	}
	return Result[S]{From: state, To: tr.To, Transition: tr.Name, Effects: effects}, nil
}

// Lookup returns the name of the transition Step would take, without running it.
func (t *Table[S, E, C]) Lookup(state S, event E, c C) (string, S, bool) {
	tr, ok := t.match(state, event, c)
	if !ok {
		return "", state, false
	}
	return tr.Name, tr.To, true
}

func (t *Table[S, E, C]) match(state S, event E, c C) (Transition[S, E, C], bool) {
	for _, tr := range t.rules[Pair[S, E]{state, event}] {
		if tr.Guard == nil || tr.Guard(c) {
			return tr, true
		}
	}
	return Transition[S, E, C]{}, false
}

// Pairs returns every declared (state, event) pair in declaration order.
func (t *Table[S, E, C]) Pairs() []Pair[S, E] {
	pairs := make([]Pair[S, E], 0, len(t.states)*len(t.events))
	for _, s := range t.states {
		for _, e := range t.events {
			pairs = append(pairs, Pair[S, E]{s, e})
		}
	}
	return pairs
}

// Transitions returns the candidates registered for a pair.
func (t *Table[S, E, C]) Transitions(state S, event E) []Transition[S, E, C] {
	return append([]Transition[S, E, C](nil), t.rules[Pair[S, E]{state, event}]...)
}

// States returns the declared states.
func (t *Table[S, E, C]) States() []S {
	return append([]S(nil), t.states...)
}

// Events returns the declared events.
func (t *Table[S, E, C]) Events() []E {
	return append([]E(nil), t.events...)
}

// Row is a printable view of one transition.
type Row struct {
	From    string
	Event   string
	To      string
	Name    string
	Guarded bool
}

// Rows returns every transition in pair order, for diagnostics.
func (t *Table[S, E, C]) Rows() []Row {
	var rows []Row
	for _, p := range t.Pairs() {
		for _, tr := range t.rules[p] {
			rows = append(rows, Row{
				From:    fmt.Sprint(tr.From),
				Event:   fmt.Sprint(tr.On),
				To:      fmt.Sprint(tr.To),
				Name:    tr.Name,
				Guarded: tr.Guard != nil,
			})
		}
	}
	return rows
}
