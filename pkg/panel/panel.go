// Package panel defines the operator input and indicator contracts.
//
// The controller needs one level per input channel per cycle. Debouncing and
// edge detection belong to whatever produces the Snapshot.
package panel

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Channel names one operator input.
type Channel uint8

const (
	// Emergency is active-low: false means the button is pressed.
	Emergency Channel = iota
	Pressurize
	Depressurize
	Light
	Open
	Close
	Enable
	Hold
	Confirm
)

var channelNames = [...]string{
	Emergency:    "emergency",
	Pressurize:   "pressurize",
	Depressurize: "depressurize",
	Light:        "light",
	Open:         "open",
	Close:        "close",
	Enable:       "enable",
	Hold:         "hold",
	Confirm:      "confirm",
}

// Channels lists every input channel.
func Channels() []Channel {
	return []Channel{Emergency, Pressurize, Depressurize, Light, Open, Close, Enable, Hold, Confirm}
}

func (c Channel) String() string {
	if int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// ParseChannel accepts a channel name or its first letter (E, P, D, L, O,
// C); "en", "h" and "cf" select enable, hold and confirm.
func ParseChannel(s string) (Channel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "e":
		return Emergency, nil
	case "p":
		return Pressurize, nil
	case "d":
		return Depressurize, nil
	case "l":
		return Light, nil
	case "o":
		return Open, nil
	case "c":
		return Close, nil
	case "en":
		return Enable, nil
	case "h":
		return Hold, nil
	case "cf":
		return Confirm, nil
	}
	for i, name := range channelNames {
		if s == name {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Snapshot is one consistent read of every input for a cycle.
type Snapshot struct {
	// EmergencyLevel is the raw active-low level: false while pressed.
	EmergencyLevel bool

	Pressurize   bool
	Depressurize bool
	Light        bool
	Open         bool
	Close        bool
	Enable       bool
	Hold         bool
	Confirm      bool

	At time.Time
}

// Released returns a snapshot with every input idle.
func Released() Snapshot {
	return Snapshot{EmergencyLevel: true}
}

// EmergencyAsserted interprets the active-low emergency level.
func (s Snapshot) EmergencyAsserted() bool {
	return !s.EmergencyLevel
}

// Level returns the raw level of one channel.
func (s Snapshot) Level(c Channel) bool {
	switch c {
	case Emergency:
		return s.EmergencyLevel
	case Pressurize:
		return s.Pressurize
	case Depressurize:
		return s.Depressurize
	case Light:
		return s.Light
	case Open:
		return s.Open
	case Close:
		return s.Close
	case Enable:
		return s.Enable
	case Hold:
		return s.Hold
	case Confirm:
		return s.Confirm
	default:
		return false
	}
}

// With returns a copy of s with channel c set to level.
func (s Snapshot) With(c Channel, level bool) Snapshot {
	switch c {
	case Emergency:
		s.EmergencyLevel = level
	case Pressurize:
		s.Pressurize = level
	case Depressurize:
		s.Depressurize = level
	case Light:
		s.Light = level
	case Open:
		s.Open = level
	case Close:
		s.Close = level
	case Enable:
		s.Enable = level
	case Hold:
		s.Hold = level
	case Confirm:
		s.Confirm = level
	}
	return s
}

// Provider produces one Snapshot per control cycle.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Outputs are the indicator levels driven once per cycle.
type Outputs struct {
	Pressurized   bool `json:"pressurized"`
	InProgress    bool `json:"in_progress"`
	Depressurized bool `json:"depressurized"`
	EnableActive  bool `json:"enable_active"`
	Confirm       bool `json:"confirm"`
	Emergency     bool `json:"emergency"`
	Hold          bool `json:"hold"`
}

// Sink drives the indicators.
type Sink interface {
	Write(out Outputs) error
}
