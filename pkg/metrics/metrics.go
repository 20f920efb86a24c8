// Package metrics exposes controller activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marscolony/airlock-go/pkg/protocol"
	"github.com/marscolony/airlock-go/pkg/subsystem"
)

const namespace = "airlock"

// Metrics owns a registry and the controller's collectors. Each instance
// registers into its own registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	framesSent       *prometheus.CounterVec
	transmitFailures *prometheus.CounterVec
	linkReopens      *prometheus.CounterVec
	requestsRejected *prometheus.CounterVec

	cycles        prometheus.Counter
	cycleOverruns prometheus.Counter
	cycleDuration prometheus.Histogram

	emergencyActive prometheus.Gauge
	emergencies     *prometheus.CounterVec
	watchdogTrips   prometheus.Counter
	readFailures    *prometheus.CounterVec

	transitions *prometheus.CounterVec

	pressure  prometheus.Gauge
	doorAngle prometheus.Gauge
}

var _ subsystem.Observer = (*Metrics)(nil)

// New creates the collectors and registers them, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames transmitted to actuator controllers.",
		}, []string{"subsystem", "action"}),
		transmitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transmit_failures_total",
			Help:      "Frame transmits that failed.",
		}, []string{"subsystem"}),
		linkReopens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_reopens_total",
			Help:      "Actuator links reopened after a failure.",
		}, []string{"subsystem"}),
		requestsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Procedure requests rejected by validation.",
		}, []string{"subsystem"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Control cycles completed.",
		}),
		cycleOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_overruns_total",
			Help:      "Control cycles that took longer than the cycle period.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent in one control cycle, excluding the sleep.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		emergencyActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emergency_active",
			Help:      "1 while the emergency latch is held.",
		}),
		emergencies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergencies_total",
			Help:      "Emergency latches raised, by cause.",
		}, []string{"cause"}),
		watchdogTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_trips_total",
			Help:      "Input watchdog trips.",
		}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Failed panel or sensor reads.",
		}, []string{"source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "State machine transitions taken.",
		}, []string{"machine", "transition"}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pressure_hpa",
			Help:      "Last chamber pressure reading.",
		}),
		doorAngle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "door_angle_degrees",
			Help:      "Last door angle reading.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.framesSent,
		m.transmitFailures,
		m.linkReopens,
		m.requestsRejected,
		m.cycles,
		m.cycleOverruns,
		m.cycleDuration,
		m.emergencyActive,
		m.emergencies,
		m.watchdogTrips,
		m.readFailures,
		m.transitions,
		m.pressure,
		m.doorAngle,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// FrameSent implements subsystem.Observer.
func (m *Metrics) FrameSent(name string, action protocol.Action) {
	m.framesSent.WithLabelValues(name, action.String()).Inc()
}

// TransmitFailed implements subsystem.Observer.
func (m *Metrics) TransmitFailed(name string) {
	m.transmitFailures.WithLabelValues(name).Inc()
}

// LinkReopened implements subsystem.Observer.
func (m *Metrics) LinkReopened(name string) {
	m.linkReopens.WithLabelValues(name).Inc()
}

// RequestRejected implements subsystem.Observer.
func (m *Metrics) RequestRejected(name string) {
	m.requestsRejected.WithLabelValues(name).Inc()
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(d, period time.Duration) {
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
	if period > 0 && d > period {
		m.cycleOverruns.Inc()
	}
}

// SetEmergency reports the latch state.
func (m *Metrics) SetEmergency(active bool) {
	if active {
		m.emergencyActive.Set(1)
	} else {
		m.emergencyActive.Set(0)
	}
}

// EmergencyRaised counts a newly raised latch.
func (m *Metrics) EmergencyRaised(cause string) {
	m.emergencies.WithLabelValues(cause).Inc()
}

// WatchdogTripped counts a watchdog trip.
func (m *Metrics) WatchdogTripped() {
	m.watchdogTrips.Inc()
}

// ReadFailed counts a failed read from source ("panel" or "sensor").
func (m *Metrics) ReadFailed(source string) {
	m.readFailures.WithLabelValues(source).Inc()
}

// Transition counts a transition taken by machine.
func (m *Metrics) Transition(machine, name string) {
	m.transitions.WithLabelValues(machine, name).Inc()
}

// Reading records the latest sensor values.
func (m *Metrics) Reading(pressure, doorAngle float64) {
	m.pressure.Set(pressure)
	m.doorAngle.Set(doorAngle)
}
