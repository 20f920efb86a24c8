package panel

import (
	"log/slog"
	"sync"
)

// LogSink reports indicator changes through slog. It stands in for the
// physical indicator board.
type LogSink struct {
	logger *slog.Logger

	mu   sync.Mutex
	last Outputs
	seen bool
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Write logs the outputs when they differ from the previous write.
func (s *LogSink) Write(out Outputs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen && out == s.last {
		return nil
	}
	s.last = out
	s.seen = true

	s.logger.Info("indicators",
		"pressurized", out.Pressurized,
		"in_progress", out.InProgress,
		"depressurized", out.Depressurized,
		"enable", out.EnableActive,
		"confirm", out.Confirm,
		"emergency", out.Emergency,
		"hold", out.Hold,
	)
	return nil
}

// Last returns the most recent outputs written.
func (s *LogSink) Last() Outputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
