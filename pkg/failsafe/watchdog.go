package failsafe

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Watchdog constants.
const (
	// MinDuration is the shortest accepted trip duration.
	MinDuration = 50 * time.Millisecond

	// MaxDuration is the longest accepted trip duration.
	MaxDuration = 10 * time.Second

	// DefaultDuration is the default trip duration.
	DefaultDuration = 500 * time.Millisecond

	// MaxGracePeriod bounds the recovery hold-off.
	MaxGracePeriod = time.Minute
)

// Watchdog errors.
var (
	ErrInvalidDuration    = errors.New("invalid watchdog duration")
	ErrInvalidGracePeriod = errors.New("invalid watchdog grace period")
)

// State represents the watchdog state.
type State uint8

const (
	// StateNormal indicates healthy reads.
	StateNormal State = iota

	// StateFailing indicates reads are failing but the duration has not elapsed.
	StateFailing

	// StateTripped indicates reads failed for at least the duration.
	StateTripped

	// StateRecovering indicates healthy reads after a trip, inside the grace period.
	StateRecovering
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateFailing:
		return "FAILING"
	case StateTripped:
		return "TRIPPED"
	case StateRecovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// Config holds watchdog configuration. Zero values select the defaults.
type Config struct {
	Duration    time.Duration
	GracePeriod time.Duration
}

// Validate checks the configured durations.
func (c Config) Validate() error {
	if c.Duration != 0 && (c.Duration < MinDuration || c.Duration > MaxDuration) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidDuration, c.Duration, MinDuration, MaxDuration)
	}
	if c.GracePeriod < 0 || c.GracePeriod > MaxGracePeriod {
		return fmt.Errorf("%w: %s", ErrInvalidGracePeriod, c.GracePeriod)
	}
	return nil
}

// Watchdog trips when the control loop's reads fail for too long.
type Watchdog struct {
	mu sync.RWMutex

	state State

	duration    time.Duration
	gracePeriod time.Duration

	// since is when the current Failing or Recovering stretch began.
	since time.Time

	trips int

	onStateChange func(oldState, newState State)
}

// NewWatchdogWithConfig creates a watchdog. A zero Config selects the
// default duration and no grace period.
func NewWatchdogWithConfig(cfg Config) (*Watchdog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &Watchdog{
		state:       StateNormal,
		duration:    cfg.Duration,
		gracePeriod: cfg.GracePeriod,
	}
	if w.duration == 0 {
		w.duration = DefaultDuration
	}
	return w, nil
}

// State returns the current watchdog state.
func (w *Watchdog) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Tripped reports whether the watchdog currently demands an emergency.
// A watchdog in its grace period still counts as tripped.
func (w *Watchdog) Tripped() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state == StateTripped || w.state == StateRecovering
}

// Trips returns how many times the watchdog has tripped.
func (w *Watchdog) Trips() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trips
}

// Duration returns the configured trip duration.
func (w *Watchdog) Duration() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.duration
}

// Observe records one cycle's read outcome at now and returns the resulting
// state.
func (w *Watchdog) Observe(healthy bool, now time.Time) State {
	w.mu.Lock()

	old := w.state
	switch {
	case healthy && old == StateFailing:
		w.state = StateNormal
	case healthy && old == StateTripped:
		w.since = now
		if w.gracePeriod > 0 {
			w.state = StateRecovering
		} else {
			w.state = StateNormal
		}
	case healthy && old == StateRecovering:
		if now.Sub(w.since) >= w.gracePeriod {
			w.state = StateNormal
		}
	case !healthy && old == StateNormal:
		w.since = now
		w.state = StateFailing
		if w.duration <= 0 {
			w.state = StateTripped
		}
	case !healthy && old == StateFailing:
		if now.Sub(w.since) >= w.duration {
			w.state = StateTripped
		}
	case !healthy && old == StateRecovering:
		w.state = StateTripped
	}

	if w.state == StateTripped && old != StateTripped && old != StateRecovering {
		w.trips++
	}

	newState := w.state
	fn := w.onStateChange
	w.mu.Unlock()

	if fn != nil && newState != old {
		fn(old, newState)
	}
	return newState
}

// RemainingTime returns the time left at now before a failing watchdog trips.
// Returns 0 if the watchdog is not failing.
func (w *Watchdog) RemainingTime(now time.Time) time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state != StateFailing {
		return 0
	}
	remaining := w.duration - now.Sub(w.since)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// OnStateChange sets a callback for state changes. It runs outside the lock
// on the goroutine calling Observe.
func (w *Watchdog) OnStateChange(fn func(oldState, newState State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStateChange = fn
}
