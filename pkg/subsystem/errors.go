package subsystem

import (
	"errors"
	"fmt"
)

// Subsystem errors.
var (
	// ErrValidation indicates a request outside the subsystem's limits.
	ErrValidation = errors.New("invalid procedure request")

	// ErrStartup indicates a subsystem that could not be brought up.
	ErrStartup = errors.New("subsystem startup failed")

	// ErrNoLink indicates a subsystem constructed without a link.
	ErrNoLink = errors.New("no actuator link")

	// ErrDuplicate indicates a second subsystem registered under one name.
	ErrDuplicate = errors.New("subsystem already registered")

	// ErrStopped indicates a request to a subsystem that has been stopped.
	ErrStopped = errors.New("subsystem stopped")
)

// ValidationError describes a rejected request.
type ValidationError struct {
	Subsystem string
	Field     string
	Value     float64
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %g: %s", e.Subsystem, e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StartupError describes a subsystem that was skipped at startup.
type StartupError struct {
	Name string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("subsystem %s: startup failed: %v", e.Name, e.Err)
}

// Unwrap exposes both ErrStartup and the underlying cause.
func (e *StartupError) Unwrap() []error {
	return []error{ErrStartup, e.Err}
}
