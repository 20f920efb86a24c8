package supervisor

import (
	"time"

	"github.com/marscolony/airlock-go/pkg/door"
	"github.com/marscolony/airlock-go/pkg/light"
	"github.com/marscolony/airlock-go/pkg/pressure"
	"github.com/marscolony/airlock-go/pkg/subsystem"
	"github.com/marscolony/airlock-go/pkg/transport"
)

// Subsystem names.
const (
	Pressure = "pressure"
	Door     = "door"
	Light    = "light"
)

// WatchdogMachine names the input watchdog in transition traces.
const WatchdogMachine = "watchdog"

// Names lists the subsystems in dispatch order.
func Names() []string {
	return []string{Pressure, Door, Light}
}

// Limits returns the actuator limits for a subsystem name.
func Limits(name string) (subsystem.Limits, bool) {
	switch name {
	case Pressure:
		return subsystem.Limits{
			MaxProcedure:   pressure.MaxProcedure,
			MinTarget:      pressure.MinTarget,
			MaxTarget:      pressure.MaxTarget,
			AbortProcedure: pressure.ProcAbort,
		}, true
	case Door:
		return subsystem.Limits{
			MaxProcedure:   door.MaxProcedure,
			MinTarget:      door.MinAngle,
			MaxTarget:      door.MaxAngle,
			AbortProcedure: door.ProcHalt,
		}, true
	case Light:
		return subsystem.Limits{
			MaxProcedure: light.MaxProcedure,
			MinTarget:    light.MinLevel,
			MaxTarget:    light.MaxLevel,
		}, true
	}
	return subsystem.Limits{}, false
}

// Worker holds the settings shared by every subsystem worker.
type Worker struct {
	Period   time.Duration
	Backoff  transport.BackoffConfig
	Observer subsystem.Observer
}

// SubsystemConfigs builds one subsystem config per known name found in
// endpoints, in dispatch order. Logger, Trace and RunID are left for the
// caller.
func SubsystemConfigs(endpoints map[string]string, w Worker) []subsystem.Config {
	var cfgs []subsystem.Config
	for _, name := range Names() {
		ep, ok := endpoints[name]
		if !ok {
			continue
		}
		limits, _ := Limits(name)
		cfgs = append(cfgs, subsystem.Config{
			Name:     name,
			Endpoint: ep,
			Limits:   limits,
			Period:   w.Period,
			Backoff:  w.Backoff,
			Observer: w.Observer,
		})
	}
	return cfgs
}
