package fsm

import "fmt"

// EffectKind classifies a side effect emitted by a transition.
type EffectKind uint8

const (
	// EffectCommand asks the subsystem's actuator to run a procedure.
	EffectCommand EffectKind = iota + 1

	// EffectDone reports that a convergence loop reached its target.
	EffectDone

	// EffectAbort asks the actuator to abort whatever it is doing.
	EffectAbort

	// EffectIndicator drives an indicator from the output layer.
	EffectIndicator

	// EffectRejected reports an input that the current state refuses.
	EffectRejected
)

// String returns the effect kind name.
func (k EffectKind) String() string {
	switch k {
	case EffectCommand:
		return "COMMAND"
	case EffectDone:
		return "DONE"
	case EffectAbort:
		return "ABORT"
	case EffectIndicator:
		return "INDICATOR"
	case EffectRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Effect is a side-effecting command produced by a transition.
// Procedure and Target are only meaningful for EffectCommand and EffectAbort.
type Effect struct {
	Kind      EffectKind
	Name      string
	Procedure uint8
	Target    float64
}

// Command returns an EffectCommand for the given procedure and target.
func Command(name string, procedure uint8, target float64) Effect {
	return Effect{Kind: EffectCommand, Name: name, Procedure: procedure, Target: target}
}

// Abort returns an EffectAbort that runs the given abort procedure.
func Abort(name string, procedure uint8) Effect {
	return Effect{Kind: EffectAbort, Name: name, Procedure: procedure}
}

// Done returns an EffectDone.
func Done(name string) Effect {
	return Effect{Kind: EffectDone, Name: name}
}

// Indicator returns an EffectIndicator.
func Indicator(name string) Effect {
	return Effect{Kind: EffectIndicator, Name: name}
}

// Rejected returns an EffectRejected.
func Rejected(name string) Effect {
	return Effect{Kind: EffectRejected, Name: name}
}

// String returns a compact description used in logs and traces.
func (e Effect) String() string {
	switch e.Kind {
	case EffectCommand:
		return fmt.Sprintf("%s(%s proc=%d target=%g)", e.Kind, e.Name, e.Procedure, e.Target)
	case EffectAbort:
		return fmt.Sprintf("%s(%s proc=%d)", e.Kind, e.Name, e.Procedure)
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Name)
	}
}

// Names returns the effect names in order.
func Names(effects []Effect) []string {
	if len(effects) == 0 {
		return nil
	}
	names := make([]string, len(effects))
	for i, e := range effects {
		names[i] = e.Name
	}
	return names
}
