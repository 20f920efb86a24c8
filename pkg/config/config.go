// Package config loads the controller configuration from YAML.
//
// Every field has a default, so an empty file (or no file at all) yields a
// runnable configuration. Durations are Go duration strings ("10ms", "2s").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marscolony/airlock-go/pkg/door"
	"github.com/marscolony/airlock-go/pkg/failsafe"
	"github.com/marscolony/airlock-go/pkg/light"
	"github.com/marscolony/airlock-go/pkg/pressure"
	"github.com/marscolony/airlock-go/pkg/sim"
	"github.com/marscolony/airlock-go/pkg/subsystem"
	"github.com/marscolony/airlock-go/pkg/transport"
	"github.com/marscolony/airlock-go/pkg/version"
)

// Cycle period bounds.
const (
	MinCyclePeriod     = time.Millisecond
	MaxCyclePeriod     = time.Second
	DefaultCyclePeriod = 10 * time.Millisecond
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete controller configuration.
type Config struct {
	// ProtocolVersion is the actuator protocol version the hardware speaks.
	ProtocolVersion string `yaml:"protocol_version"`

	// CyclePeriod is the supervisor cycle length. It bounds emergency
	// response latency.
	CyclePeriod time.Duration `yaml:"cycle_period"`

	Watchdog WatchdogConfig `yaml:"watchdog"`
	Worker   WorkerConfig   `yaml:"worker"`

	Pressure PressureConfig `yaml:"pressure"`
	Door     DoorConfig     `yaml:"door"`
	Light    LightConfig    `yaml:"light"`

	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Simulate SimulateConfig `yaml:"simulate"`
}

// WatchdogConfig configures the input watchdog.
type WatchdogConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// WorkerConfig configures the subsystem workers.
type WorkerConfig struct {
	Period  time.Duration           `yaml:"period"`
	Backoff transport.BackoffConfig `yaml:"backoff"`
}

// PressureConfig configures the pressure subsystem.
type PressureConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Pressurize   float64 `yaml:"pressurize"`
	Depressurize float64 `yaml:"depressurize"`
}

// DoorConfig configures the door subsystem.
type DoorConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	Open      float64 `yaml:"open"`
	Closed    float64 `yaml:"closed"`
	Tolerance float64 `yaml:"tolerance"`
}

// LightConfig configures the lighting subsystem.
type LightConfig struct {
	Endpoint string  `yaml:"endpoint"`
	Level    float64 `yaml:"level"`
}

// LogConfig configures operational logging and trace capture.
type LogConfig struct {
	Level string `yaml:"level"`

	// Trace is a CBOR trace file path. Empty disables capture.
	Trace string `yaml:"trace"`
}

// MetricsConfig configures the diagnostics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /status, /healthz and /metrics.
	// Empty disables the server.
	Addr string `yaml:"addr"`
}

// SimulateConfig replaces the hardware with the plant simulator.
type SimulateConfig struct {
	Enabled      bool    `yaml:"enabled"`
	PressureRate float64 `yaml:"pressure_rate"`
	DoorRate     float64 `yaml:"door_rate"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ProtocolVersion: version.Current,
		CyclePeriod:     DefaultCyclePeriod,
		Watchdog: WatchdogConfig{
			Timeout: failsafe.DefaultDuration,
		},
		Worker: WorkerConfig{
			Period:  subsystem.DefaultPeriod,
			Backoff: transport.DefaultBackoffConfig(),
		},
		Pressure: PressureConfig{
			Endpoint:     "serial:/dev/ttyUSB0",
			Pressurize:   pressure.DefaultPressurizeTarget,
			Depressurize: pressure.DefaultDepressurizeTarget,
		},
		Door: DoorConfig{
			Endpoint:  "serial:/dev/ttyUSB1",
			Open:      door.DefaultOpenAngle,
			Closed:    door.DefaultClosedAngle,
			Tolerance: door.DefaultTolerance,
		},
		Light: LightConfig{
			Endpoint: "serial:/dev/ttyUSB2",
			Level:    light.DefaultLevel,
		},
		Log: LogConfig{Level: "info"},
		Simulate: SimulateConfig{
			PressureRate: sim.DefaultPressureRate,
			DoorRate:     sim.DefaultDoorRate,
		},
	}
}

// LoadError describes a configuration file that could not be used.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	file := e.File
	if file == "" {
		file = "<config>"
	}
	if e.Cause != nil {
		return file + ": " + e.Message + ": " + e.Cause.Error()
	}
	return file + ": " + e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "validation failed", Cause: err}
	}
	return cfg, nil
}

// Load reads and parses a configuration file. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its bounds.
func (c *Config) Validate() error {
	var errs []error

	if _, err := version.Check(c.ProtocolVersion); err != nil {
		errs = append(errs, fmt.Errorf("protocol_version: %w", err))
	}
	if c.CyclePeriod < MinCyclePeriod || c.CyclePeriod > MaxCyclePeriod {
		errs = append(errs, fmt.Errorf("%w: cycle_period %s not in [%s, %s]", ErrInvalid, c.CyclePeriod, MinCyclePeriod, MaxCyclePeriod))
	}

	wd := c.WatchdogConfig()
	if err := wd.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("watchdog: %w", err))
	} else if wd.Duration != 0 && wd.Duration <= c.CyclePeriod {
		errs = append(errs, fmt.Errorf("%w: watchdog timeout %s must exceed cycle_period %s", ErrInvalid, wd.Duration, c.CyclePeriod))
	}

	if c.Worker.Period <= 0 {
		errs = append(errs, fmt.Errorf("%w: worker period must be positive", ErrInvalid))
	}
	if b := c.Worker.Backoff; b.Multiplier != 0 && b.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("%w: backoff multiplier %g below 1", ErrInvalid, b.Multiplier))
	}

	if err := c.PressureTargets().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pressure: %w", err))
	}
	if err := c.DoorAngles().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("door: %w", err))
	}
	if l := c.Light.Level; math.IsNaN(l) || l < light.MinLevel || l > light.MaxLevel {
		errs = append(errs, fmt.Errorf("light: %w: level %g", light.ErrInvalidLevel, l))
	}

	if !c.Simulate.Enabled {
		for name, ep := range map[string]string{
			"pressure": c.Pressure.Endpoint,
			"door":     c.Door.Endpoint,
			"light":    c.Light.Endpoint,
		} {
			if _, _, err := transport.SplitEndpoint(ep); err != nil {
				errs = append(errs, fmt.Errorf("%s endpoint: %w", name, err))
			}
		}
	}
	if c.Simulate.PressureRate < 0 || c.Simulate.DoorRate < 0 {
		errs = append(errs, fmt.Errorf("%w: simulator rates must not be negative", ErrInvalid))
	}

	return errors.Join(errs...)
}

// PressureTargets returns the configured pressure targets.
func (c *Config) PressureTargets() pressure.Targets {
	return pressure.Targets{Pressurize: c.Pressure.Pressurize, Depressurize: c.Pressure.Depressurize}
}

// DoorAngles returns the configured door angles.
func (c *Config) DoorAngles() door.Angles {
	return door.Angles{Open: c.Door.Open, Closed: c.Door.Closed, Tolerance: c.Door.Tolerance}
}

// WatchdogConfig returns the watchdog settings.
func (c *Config) WatchdogConfig() failsafe.Config {
	return failsafe.Config{Duration: c.Watchdog.Timeout, GracePeriod: c.Watchdog.GracePeriod}
}

// Endpoints returns the actuator endpoint per subsystem. In simulation every
// subsystem is served by the plant.
func (c *Config) Endpoints() map[string]string {
	if c.Simulate.Enabled {
		return map[string]string{
			sim.Pressure: sim.Scheme + ":" + sim.Pressure,
			sim.Door:     sim.Scheme + ":" + sim.Door,
			sim.Light:    sim.Scheme + ":" + sim.Light,
		}
	}
	return map[string]string{
		sim.Pressure: c.Pressure.Endpoint,
		sim.Door:     c.Door.Endpoint,
		sim.Light:    c.Light.Endpoint,
	}
}
