package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marscolony/airlock-go/pkg/protocol"
)

func TestObserverCounters(t *testing.T) {
	m := New()

	m.FrameSent("pressure", protocol.ActionApply)
	m.FrameSent("pressure", protocol.ActionApply)
	m.FrameSent("door", protocol.ActionAbort)
	m.TransmitFailed("door")
	m.LinkReopened("door")
	m.RequestRejected("light")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesSent.WithLabelValues("pressure", "APPLY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesSent.WithLabelValues("door", "ABORT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transmitFailures.WithLabelValues("door")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkReopens.WithLabelValues("door")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsRejected.WithLabelValues("light")))
}

func TestCycleAndEmergency(t *testing.T) {
	m := New()

	m.ObserveCycle(2*time.Millisecond, 10*time.Millisecond)
	m.ObserveCycle(15*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycleOverruns))

	m.SetEmergency(true)
	m.EmergencyRaised("channel")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emergencyActive))
	m.SetEmergency(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.emergencyActive))

	m.WatchdogTripped()
	m.ReadFailed("sensor")
	m.Transition("pressure", "start_pressurize")
	m.Reading(1013, 90)
	assert.Equal(t, 1013.0, testutil.ToFloat64(m.pressure))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("pressure", "start_pressurize")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Transition("door", "open_door")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `airlock_transitions_total{machine="door",transition="open_door"} 1`))
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.WatchdogTripped()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.watchdogTrips))
}
