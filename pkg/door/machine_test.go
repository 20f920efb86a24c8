package door

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marscolony/airlock-go/pkg/fsm"
)

func fire(t *testing.T, m *Machine, ev Event) fsm.Result[Phase] {
	t.Helper()
	r, err := m.Fire(ev)
	require.NoError(t, err)
	return r
}

func machineIn(t *testing.T, p Phase) *Machine {
	t.Helper()
	m, err := New(DefaultAngles())
	require.NoError(t, err)

	switch p {
	case Opening:
		fire(t, m, On(StartOpen))
	case Closing:
		fire(t, m, On(StartClose))
	case Open:
		fire(t, m, On(StartOpen))
		fire(t, m, TickReached(true))
	case Closed:
		fire(t, m, On(StartClose))
		fire(t, m, TickReached(true))
	case Emergency:
		fire(t, m, On(EmergencyAsserted))
	}
	require.Equal(t, p, m.Phase())
	return m
}

func TestTableComplete(t *testing.T) {
	for _, p := range table.Pairs() {
		s := &step{state: State{Phase: p.State}, event: Event{Kind: p.Event}, angles: DefaultAngles()}
		_, _, err := table.Step(p.State, p.Event, s)
		assert.NoError(t, err, "%s/%s", p.State, p.Event)
	}
	assert.Len(t, table.Pairs(), 6*5)
}

func TestOpenConverges(t *testing.T) {
	m := machineIn(t, Idle)

	r := fire(t, m, On(StartOpen))
	assert.Equal(t, Opening, r.To)
	assert.Equal(t, []fsm.Effect{fsm.Command("open_door", ProcOpen, 90)}, r.Effects)
	assert.Equal(t, 90.0, m.Target())

	for range 5 {
		r = fire(t, m, TickReached(false))
		assert.Equal(t, "keep_opening", r.Transition)
	}

	r = fire(t, m, TickReached(true))
	assert.Equal(t, Open, r.To)
	assert.Equal(t, []string{"done_open"}, fsm.Names(r.Effects))
}

func TestAnglesRoundedToWirePrecision(t *testing.T) {
	m, err := New(Angles{Open: 87.3, Closed: 0.1, Tolerance: 0.5})
	require.NoError(t, err)

	r := fire(t, m, On(StartOpen))
	assert.Equal(t, float64(float32(87.3)), r.Effects[0].Target)
	assert.True(t, m.Reached(float64(float32(87.3))))

	fire(t, m, TickReached(true))
	r = fire(t, m, On(StartClose))
	assert.Equal(t, float64(float32(0.1)), r.Effects[0].Target)
}

func TestCloseFromOpen(t *testing.T) {
	m := machineIn(t, Open)

	r := fire(t, m, On(StartClose))
	assert.Equal(t, Closing, r.To)
	assert.Equal(t, 0.0, m.Target())

	fire(t, m, TickReached(true))
	assert.Equal(t, Closed, m.Phase())
}

func TestReversalRejected(t *testing.T) {
	tests := []struct {
		from Phase
		on   EventKind
	}{
		{Opening, StartClose},
		{Closing, StartOpen},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			m := machineIn(t, tt.from)
			target := m.Target()

			r := fire(t, m, On(tt.on))
			assert.Equal(t, tt.from, r.To)
			assert.Equal(t, "reject_reversal", r.Transition)
			assert.Equal(t, []string{"reject_reversal"}, fsm.Names(r.Effects))
			assert.Equal(t, target, m.Target())
		})
	}
}

func TestEmergencyFromEveryPhase(t *testing.T) {
	for _, p := range []Phase{Idle, Opening, Closing, Open, Closed} {
		t.Run(p.String(), func(t *testing.T) {
			m := machineIn(t, p)

			r := fire(t, m, On(EmergencyAsserted))
			assert.Equal(t, Emergency, r.To)
			require.Len(t, r.Effects, 2)
			assert.Equal(t, fsm.EffectAbort, r.Effects[0].Kind)
			assert.Equal(t, ProcHalt, r.Effects[0].Procedure)

			r = fire(t, m, On(StartOpen))
			assert.Equal(t, Emergency, r.To)
			assert.Empty(t, r.Effects)
		})
	}
}

func TestEmergencyLatchAndClear(t *testing.T) {
	m := machineIn(t, Emergency)

	for range 3 {
		r := fire(t, m, On(EmergencyAsserted))
		assert.Equal(t, Emergency, r.To)
		assert.Equal(t, []string{"halt_door"}, fsm.Names(r.Effects))
	}

	fire(t, m, TickReached(true))
	assert.Equal(t, Emergency, m.Phase())

	r := fire(t, m, On(EmergencyCleared))
	assert.Equal(t, Idle, r.To)
	assert.Empty(t, r.Effects)
}

func TestReached(t *testing.T) {
	m := machineIn(t, Opening)

	assert.False(t, m.Reached(45))
	assert.True(t, m.Reached(89.2))
	assert.True(t, m.Reached(90))
	assert.False(t, m.Reached(88.5))
}

func TestAnglesValidate(t *testing.T) {
	assert.NoError(t, DefaultAngles().Validate())
	assert.ErrorIs(t, Angles{Open: 120, Closed: 0, Tolerance: 1}.Validate(), ErrInvalidAngles)
	assert.ErrorIs(t, Angles{Open: 90, Closed: 0, Tolerance: 0}.Validate(), ErrInvalidAngles)
	assert.ErrorIs(t, Angles{Open: 10, Closed: 10, Tolerance: 1}.Validate(), ErrInvalidAngles)

	_, err := New(Angles{Open: -5, Closed: 0, Tolerance: 1})
	assert.ErrorIs(t, err, ErrInvalidAngles)
}
