package log

import (
	"context"
	"log/slog"
	"strings"
)

// SlogAdapter writes trace events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Subsystem != "" {
		attrs = append(attrs, slog.String("subsystem", event.Subsystem))
	}
	if event.Cycle != 0 {
		attrs = append(attrs, slog.Uint64("cycle", event.Cycle))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("frame_size", event.Frame.Size),
			slog.Uint64("action", uint64(event.Frame.Action)),
			slog.Uint64("procedure", uint64(event.Frame.Procedure)),
		)
	case event.Transition != nil:
		attrs = append(attrs,
			slog.String("machine", event.Transition.Machine),
			slog.String("from", event.Transition.From),
			slog.String("event", event.Transition.Event),
			slog.String("to", event.Transition.To),
			slog.String("transition", event.Transition.Name),
		)
		if len(event.Transition.Effects) > 0 {
			attrs = append(attrs, slog.String("effects", strings.Join(event.Transition.Effects, ",")))
		}
	case event.Emergency != nil:
		attrs = append(attrs, slog.String("latch", event.Emergency.Latch.String()))
		if event.Emergency.Cause != "" {
			attrs = append(attrs, slog.String("cause", event.Emergency.Cause))
		}
	case event.Request != nil:
		attrs = append(attrs,
			slog.Uint64("procedure", uint64(event.Request.Procedure)),
			slog.Float64("target", event.Request.Target),
		)
		if event.Request.Rejected != "" {
			attrs = append(attrs, slog.String("rejected", event.Request.Rejected))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
