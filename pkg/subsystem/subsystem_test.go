package subsystem

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marscolony/airlock-go/mocks"
	"github.com/marscolony/airlock-go/pkg/protocol"
	"github.com/marscolony/airlock-go/pkg/transport"
)

var testLimits = Limits{MaxProcedure: 4, MinTarget: 0, MaxTarget: 1100, AbortProcedure: 4}

func testConfig(name string) Config {
	return Config{
		Name:     name,
		Endpoint: "test:" + name,
		Limits:   testLimits,
		Period:   time.Millisecond,
		Backoff:  transport.BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond},
	}
}

// recordingLink decodes every frame it receives.
type recordingLink struct {
	mu     sync.Mutex
	frames []protocol.Message
	closed bool
	err    error
}

func (l *recordingLink) Transmit(frame []byte) error {
	m, err := protocol.Decode(frame)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.err = err
		return nil
	}
	l.frames = append(l.frames, m)
	return nil
}

func (l *recordingLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *recordingLink) messages() []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Message(nil), l.frames...)
}

func stopAll(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.StopAll(ctx))
}

func TestNewWithoutLink(t *testing.T) {
	_, err := New(testConfig("pressure"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartup)
	assert.ErrorIs(t, err, ErrNoLink)

	var se *StartupError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "pressure", se.Name)
}

func TestRequestValidation(t *testing.T) {
	s, err := New(testConfig("pressure"), &recordingLink{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"ProcedureZero", NewRequest(0, 10), "procedure"},
		{"ProcedureTooHigh", NewRequest(5, 10), "procedure"},
		{"TargetNaN", NewRequest(1, math.NaN()), "target"},
		{"TargetInf", NewRequest(1, math.Inf(1)), "target"},
		{"TargetTooHigh", NewRequest(1, 1100.5), "target"},
		{"TargetNegative", NewRequest(2, -1), "target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RequestNewState(tt.req)
			require.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)

			_, pending := s.Pending()
			assert.False(t, pending, "rejected request must not be installed")
		})
	}

	require.NoError(t, s.RequestNewState(NewRequest(1, 1100)))
	require.NoError(t, s.RequestNewState(NewRequest(4, 0)))
}

func TestLastWriterWins(t *testing.T) {
	s, err := New(testConfig("door"), &recordingLink{})
	require.NoError(t, err)

	require.NoError(t, s.RequestNewState(NewRequest(1, 90)))
	require.NoError(t, s.RequestNewState(NewRequest(2, 0)))

	req, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, uint8(2), req.Procedure)
	assert.Equal(t, 0.0, req.Target)
}

func TestWorkerTransmitsOnce(t *testing.T) {
	want, err := protocol.Encode(protocol.Apply(1, 1013))
	require.NoError(t, err)

	link := mocks.NewMockLink(t)
	link.EXPECT().Transmit(want).Return(nil).Once()
	link.EXPECT().Close().Return(nil).Once()

	pool := NewPool(nil)
	s, err := New(testConfig("pressure"), link)
	require.NoError(t, err)
	require.NoError(t, pool.Register(s))
	s.Start()

	require.NoError(t, s.RequestNewState(NewRequest(1, 1013)))
	assert.Eventually(t, func() bool { return s.Status().Sent == 1 }, time.Second, time.Millisecond)

	_, pending := s.Pending()
	assert.False(t, pending)

	stopAll(t, pool)
	assert.False(t, s.Running())
}

func TestAbortProcedureEncodesAbortFrame(t *testing.T) {
	link := &recordingLink{}
	pool := NewPool(nil)
	s, err := New(testConfig("pressure"), link)
	require.NoError(t, err)
	require.NoError(t, pool.Register(s))
	s.Start()
	defer stopAll(t, pool)

	require.NoError(t, s.RequestNewState(NewRequest(4, 0)))
	require.Eventually(t, func() bool { return len(link.messages()) == 1 }, time.Second, time.Millisecond)

	m := link.messages()[0]
	assert.Equal(t, protocol.ActionAbort, m.Action)
	assert.Equal(t, uint8(4), m.Procedure)
}

func TestTransmitFailureReopensAndRetries(t *testing.T) {
	want, err := protocol.Encode(protocol.Apply(2, 6))
	require.NoError(t, err)

	broken := mocks.NewMockLink(t)
	broken.EXPECT().Transmit(mock.Anything).Return(errors.New("write: input/output error")).Once()
	broken.EXPECT().Close().Return(nil).Once()

	healthy := mocks.NewMockLink(t)
	healthy.EXPECT().Transmit(want).Return(nil).Once()
	healthy.EXPECT().Close().Return(nil).Once()

	var opens atomic.Int32
	cfg := testConfig("pressure")
	cfg.Open = func(_ context.Context, endpoint string) (transport.Link, error) {
		assert.Equal(t, "test:pressure", endpoint)
		if opens.Add(1) == 1 {
			return nil, errors.New("device busy")
		}
		return healthy, nil
	}

	pool := NewPool(nil)
	s, err := New(cfg, broken)
	require.NoError(t, err)
	require.NoError(t, pool.Register(s))
	s.Start()

	require.NoError(t, s.RequestNewState(NewRequest(2, 6)))
	require.Eventually(t, func() bool { return s.Status().Sent == 1 }, 2*time.Second, time.Millisecond)

	st := s.Status()
	assert.Equal(t, uint64(1), st.Failures)
	assert.True(t, st.LinkUp)
	assert.Equal(t, int32(2), opens.Load())

	stopAll(t, pool)
}

func TestUpdateRecordsState(t *testing.T) {
	s, err := New(testConfig("light"), &recordingLink{})
	require.NoError(t, err)
	assert.Equal(t, "Idle", s.State())

	s.Update(func() string { return "On" })
	assert.Equal(t, "On", s.State())
	assert.Equal(t, "On", s.Status().State)
}

func TestRequestAfterStop(t *testing.T) {
	link := &recordingLink{}
	s, err := New(testConfig("light"), link)
	require.NoError(t, err)

	s.Stop()
	<-s.Done()
	assert.True(t, link.closed)
	assert.ErrorIs(t, s.RequestNewState(NewRequest(1, 50)), ErrStopped)

	// Start after Stop does nothing.
	s.Start()
	assert.False(t, s.Running())
}

// TestConcurrentRequestsNeverTear installs requests whose target is derived
// from the procedure id, from many goroutines, while the worker drains them.
// Every observed request and every transmitted frame must keep the pairing.
func TestConcurrentRequestsNeverTear(t *testing.T) {
	link := &recordingLink{}
	pool := NewPool(nil)
	s, err := New(testConfig("pressure"), link)
	require.NoError(t, err)
	require.NoError(t, pool.Register(s))
	s.Start()

	targetFor := func(proc uint8) float64 { return float64(proc) * 100 }

	ctx, cancel := context.WithCancel(context.Background())
	var torn atomic.Int32
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for ctx.Err() == nil {
			if req, ok := s.Pending(); ok && req.Target != targetFor(req.Procedure) {
				torn.Add(1)
			}
		}
	}()

	var writers sync.WaitGroup
	for w := range 8 {
		writers.Add(1)
		go func() {
			defer writers.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for range 500 {
				proc := uint8(rng.Intn(3) + 1)
				if err := s.RequestNewState(NewRequest(proc, targetFor(proc))); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	writers.Wait()
	cancel()
	readers.Wait()
	stopAll(t, pool)

	assert.Zero(t, torn.Load())
	assert.NoError(t, link.err)
	for _, m := range link.messages() {
		v, err := m.Value()
		require.NoError(t, err)
		assert.InDelta(t, targetFor(m.Procedure), v, 1e-3)
	}
}

// replyingLink reports one ack per frame, rejecting every second one.
type replyingLink struct {
	recordingLink
	fb transport.Feedback
}

func (l *replyingLink) Transmit(frame []byte) error {
	if err := l.recordingLink.Transmit(frame); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames)%2 == 0 {
		l.fb.Nacks++
		l.fb.LastCode = protocol.AckRejected
	} else {
		l.fb.Acks++
	}
	return nil
}

func (l *replyingLink) Feedback() transport.Feedback {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fb
}

func TestStatusCarriesLinkFeedback(t *testing.T) {
	plain, err := New(testConfig("light"), &recordingLink{})
	require.NoError(t, err)
	assert.Nil(t, plain.Status().Feedback)

	link := &replyingLink{}
	pool := NewPool(nil)
	s, err := New(testConfig("pressure"), link)
	require.NoError(t, err)
	require.NoError(t, pool.Register(s))
	s.Start()

	require.NoError(t, s.RequestNewState(NewRequest(1, 1013)))
	require.Eventually(t, func() bool { return s.Status().Sent == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, s.RequestNewState(NewRequest(2, 6)))
	require.Eventually(t, func() bool { return s.Status().Sent == 2 }, 2*time.Second, time.Millisecond)

	fb := s.Status().Feedback
	require.NotNil(t, fb)
	assert.Equal(t, 1, fb.Acks)
	assert.Equal(t, 1, fb.Nacks)
	assert.Equal(t, protocol.AckRejected, fb.LastCode)

	stopAll(t, pool)
}
