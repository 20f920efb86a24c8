package subsystem

import (
	"math"
	"time"
)

// Request is a procedure the actuator should run.
type Request struct {
	Procedure uint8
	Target    float64
	IssuedAt  time.Time
}

// NewRequest stamps a request with the current time.
func NewRequest(procedure uint8, target float64) Request {
	return Request{Procedure: procedure, Target: target, IssuedAt: time.Now()}
}

// Limits bounds what a subsystem's actuator accepts.
type Limits struct {
	// MaxProcedure is the highest valid procedure id; ids start at 1.
	MaxProcedure uint8

	// MinTarget and MaxTarget are the hardware-safe target bounds.
	MinTarget float64
	MaxTarget float64

	// AbortProcedure is sent as an abort frame instead of an apply frame.
	// Zero means the subsystem has no abort procedure.
	AbortProcedure uint8
}

// Validate checks req against the limits.
func (l Limits) Validate(name string, req Request) error {
	if req.Procedure < 1 || req.Procedure > l.MaxProcedure {
		return &ValidationError{
			Subsystem: name,
			Field:     "procedure",
			Value:     float64(req.Procedure),
			Reason:    "out of range",
		}
	}
	if math.IsNaN(req.Target) || math.IsInf(req.Target, 0) {
		return &ValidationError{Subsystem: name, Field: "target", Value: req.Target, Reason: "not a number"}
	}
	if req.Target < l.MinTarget || req.Target > l.MaxTarget {
		return &ValidationError{
			Subsystem: name,
			Field:     "target",
			Value:     req.Target,
			Reason:    "outside safe bounds",
		}
	}
	return nil
}
