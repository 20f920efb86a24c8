package panel

import (
	"context"
	"sync"
)

// Script replays a fixed sequence of snapshots, one per call. Once the
// sequence is exhausted the last snapshot repeats. It is the deterministic
// provider used by tests and dry runs.
type Script struct {
	mu    sync.Mutex
	steps []Snapshot
	next  int
}

// NewScript creates a script. An empty script yields Released forever.
func NewScript(steps ...Snapshot) *Script {
	return &Script{steps: steps}
}

// Snapshot returns the next step.
func (s *Script) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.steps) == 0 {
		return Released(), nil
	}
	i := s.next
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	} else {
		s.next++
	}
	return s.steps[i], nil
}

// Remaining returns how many steps have not been replayed yet.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}
