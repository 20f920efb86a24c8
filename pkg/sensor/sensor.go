// Package sensor defines the measurement contract the controller consumes.
// The physical sampling path lives outside this module.
package sensor

import (
	"context"
	"time"
)

// Reading is one consistent sample of the chamber.
type Reading struct {
	// Pressure is the chamber pressure in hPa.
	Pressure float64 `json:"pressure_hpa"`

	// DoorAngle is the door position in degrees, 0 fully closed.
	DoorAngle float64 `json:"door_angle"`

	At time.Time `json:"at"`
}

// Reader samples the chamber.
type Reader interface {
	Read(ctx context.Context) (Reading, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context) (Reading, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context) (Reading, error) {
	return f(ctx)
}
