package log

// Tee returns a Logger that hands every event to each non-nil logger in
// order. With nothing to fan out it returns NoopLogger or the single logger
// itself.
func Tee(loggers ...Logger) Logger {
	var out tee
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return NoopLogger{}
	case 1:
		return out[0]
	}
	return out
}

type tee []Logger

func (t tee) Log(event Event) {
	for _, l := range t {
		l.Log(event)
	}
}

// Excluding returns a Logger that passes to l every event outside layer.
// airlockd uses it to keep per-frame LINK events, which arrive every worker
// period, out of the operational log.
func Excluding(l Logger, layer Layer) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return excluding{next: l, layer: layer}
}

type excluding struct {
	next  Logger
	layer Layer
}

func (e excluding) Log(event Event) {
	if event.Layer != e.layer {
		e.next.Log(event)
	}
}
