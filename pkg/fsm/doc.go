// Package fsm implements the table-driven state machine engine shared by the
// airlock's domain machines (pressure, door, lighting).
//
// A Table maps (state, event) pairs to transitions. Each transition names its
// target state and an optional list of effects; guards select between
// several transitions registered for the same pair. The first matching
// transition wins, so guarded candidates must precede the unguarded fallback.
//
// # Completeness
//
// New validates the table against the declared states and events. Every pair
// must resolve to a transition for every possible guard outcome, which means
// the last candidate for each pair must be unguarded. A table that fails this
// check is a configuration defect and New returns a *TransitionError; Step on a
// validated table never misses.
//
// # Effects
//
// Step only computes the next state and the effects of the transition. The
// caller commits the new state first and executes the effects afterwards, so
// an effect that fails part way cannot leave the recorded state out of step
// with what was attempted.
package fsm
