// Package emergency decides how an emergency condition is dispatched to the
// domain state machines.
//
// Emergency pre-empts everything. Once asserted the system verdict stays
// latched until the emergency channel is released and the input watchdog is
// healthy again; only then is a clear dispatched. Commands are suppressed for
// every cycle the latch holds, including the cycle in which it releases.
package emergency

import (
	"strings"
	"sync"
	"time"
)

// Action is the emergency event a single machine must receive this cycle.
type Action uint8

const (
	// None means no emergency event is dispatched.
	None Action = iota

	// Assert moves a machine into Emergency.
	Assert

	// Unresolved re-presents the emergency to a machine already in it.
	Unresolved

	// Clear releases a machine from Emergency.
	Clear
)

func (a Action) String() string {
	switch a {
	case None:
		return "NONE"
	case Assert:
		return "ASSERT"
	case Unresolved:
		return "UNRESOLVED"
	case Clear:
		return "CLEAR"
	default:
		return "UNKNOWN"
	}
}

// Decide returns the action for one machine given the system verdict and
// whether that machine is currently in its Emergency state.
func Decide(asserted, inEmergency bool) Action {
	switch {
	case asserted && inEmergency:
		return Unresolved
	case asserted:
		return Assert
	case inEmergency:
		return Clear
	default:
		return None
	}
}

// ChannelAsserted interprets the active-low emergency input level.
func ChannelAsserted(level bool) bool {
	return !level
}

// Verdict is the system-level emergency decision for one cycle.
type Verdict struct {
	// Asserted is true while the latch holds.
	Asserted bool

	// Raised is true only in the cycle the latch engaged.
	Raised bool

	// Cleared is true only in the cycle the latch released.
	Cleared bool

	// Suppress forbids command-intent events this cycle.
	Suppress bool

	// Cause names the inputs holding the latch, e.g. "channel+watchdog".
	Cause string
}

// Arbiter holds the emergency latch.
type Arbiter struct {
	mu      sync.Mutex
	latched bool
	since   time.Time
	raised  uint64
	now     func() time.Time
}

// NewArbiter creates an unlatched arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{now: time.Now}
}

// Evaluate updates the latch from this cycle's inputs.
func (a *Arbiter) Evaluate(channelAsserted, watchdogTripped bool) Verdict {
	a.mu.Lock()
	defer a.mu.Unlock()

	if channelAsserted || watchdogTripped {
		v := Verdict{Asserted: true, Suppress: true, Cause: cause(channelAsserted, watchdogTripped)}
		if !a.latched {
			a.latched = true
			a.since = a.now()
			a.raised++
			v.Raised = true
		}
		return v
	}

	if a.latched {
		a.latched = false
		a.since = time.Time{}
		return Verdict{Cleared: true, Suppress: true}
	}
	return Verdict{}
}

// Latched reports whether an emergency is currently held.
func (a *Arbiter) Latched() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latched
}

// Since returns when the current latch engaged, or zero.
func (a *Arbiter) Since() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.since
}

// Raised returns how many times the latch has engaged.
func (a *Arbiter) Raised() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raised
}

func cause(channel, watchdog bool) string {
	var parts []string
	if channel {
		parts = append(parts, "channel")
	}
	if watchdog {
		parts = append(parts, "watchdog")
	}
	return strings.Join(parts, "+")
}
