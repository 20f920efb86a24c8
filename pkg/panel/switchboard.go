package panel

import (
	"context"
	"sync"
	"time"
)

// Switchboard is a manually operated panel: maintained levels set with Set
// or Toggle, and momentary presses that last for exactly one snapshot.
// It is safe for concurrent use.
type Switchboard struct {
	mu     sync.Mutex
	levels Snapshot
	pulses map[Channel]bool
}

// NewSwitchboard creates a switchboard with every input released.
func NewSwitchboard() *Switchboard {
	return &Switchboard{levels: Released(), pulses: make(map[Channel]bool)}
}

// Set holds channel c at level.
func (b *Switchboard) Set(c Channel, level bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levels = b.levels.With(c, level)
}

// Toggle inverts channel c and returns the new level.
func (b *Switchboard) Toggle(c Channel) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	level := !b.levels.Level(c)
	b.levels = b.levels.With(c, level)
	return level
}

// Press activates channel c for the next snapshot only. For the active-low
// emergency channel that means driving it low.
func (b *Switchboard) Press(c Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pulses[c] = true
}

// Levels returns the maintained levels without consuming presses.
func (b *Switchboard) Levels() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels
}

// Snapshot returns the current levels with pending presses applied.
func (b *Switchboard) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.levels
	for c := range b.pulses {
		s = s.With(c, c != Emergency)
	}
	clear(b.pulses)
	s.At = time.Now()
	return s, nil
}
