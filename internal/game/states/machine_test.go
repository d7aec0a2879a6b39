package states

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
)

func TestSessionPhase_String(t *testing.T) {
	tests := []struct {
		phase    SessionPhase
		expected string
	}{
		{PhaseInitializing, "Initializing"},
		{PhaseLoading, "Loading"},
		{PhaseRunning, "Running"},
		{PhasePaused, "Paused"},
		{PhaseEnded, "Ended"},
		{PhaseError, "Error"},
		{SessionPhase(999), "Unknown(999)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.phase.String())
		})
	}
}

func TestParsePhase(t *testing.T) {
	for p := PhaseInitializing; p <= PhaseError; p++ {
		parsed, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := ParsePhase("Lobby")
	assert.Error(t, err)
}

func TestSessionPhase_Properties(t *testing.T) {
	t.Run("IsTerminal", func(t *testing.T) {
		assert.True(t, PhaseEnded.IsTerminal())
		assert.False(t, PhaseError.IsTerminal())
		assert.False(t, PhaseRunning.IsTerminal())
	})

	t.Run("CanReceiveCommands", func(t *testing.T) {
		assert.True(t, PhaseRunning.CanReceiveCommands())
		assert.False(t, PhaseLoading.CanReceiveCommands())
		assert.False(t, PhasePaused.CanReceiveCommands())
		assert.False(t, PhaseEnded.CanReceiveCommands())
	})

	t.Run("Ticks", func(t *testing.T) {
		assert.True(t, PhaseRunning.Ticks())
		assert.True(t, PhasePaused.Ticks())
		assert.False(t, PhaseLoading.Ticks())
		assert.False(t, PhaseError.Ticks())
	})
}

func TestSessionPhase_Transitions(t *testing.T) {
	allPhases := []SessionPhase{PhaseInitializing, PhaseLoading, PhaseRunning, PhasePaused, PhaseEnded, PhaseError}
	tests := []struct {
		from    SessionPhase
		allowed []SessionPhase
	}{
		{PhaseInitializing, []SessionPhase{PhaseLoading, PhaseError}},
		{PhaseLoading, []SessionPhase{PhaseRunning, PhaseError}},
		{PhaseRunning, []SessionPhase{PhasePaused, PhaseEnded, PhaseError}},
		{PhasePaused, []SessionPhase{PhaseRunning, PhaseEnded, PhaseError}},
		{PhaseEnded, []SessionPhase{}},
		{PhaseError, []SessionPhase{PhaseEnded}},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.AllowedTransitions())
			for _, target := range allPhases {
				assert.Equal(t, containsPhase(tt.allowed, target), tt.from.CanTransitionTo(target), "%s -> %s", tt.from, target)
			}
		})
	}
}

func containsPhase(list []SessionPhase, p SessionPhase) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}

func TestSessionContext(t *testing.T) {
	t.Run("GetElapsedTime", func(t *testing.T) {
		ctx := NewSessionContext("test-session", zerolog.Nop())
		assert.Equal(t, time.Duration(0), ctx.GetElapsedTime())

		ctx.StartTime = time.Now().Add(-10 * time.Second)
		elapsed := ctx.GetElapsedTime()
		assert.Greater(t, elapsed, 9*time.Second)
		assert.Less(t, elapsed, 11*time.Second)

		ctx.TotalPauseDuration = 5 * time.Second
		elapsed = ctx.GetElapsedTime()
		assert.Greater(t, elapsed, 4*time.Second)
		assert.Less(t, elapsed, 6*time.Second)
	})

	t.Run("IsLoaded", func(t *testing.T) {
		ctx := NewSessionContext("test-session", zerolog.Nop())
		assert.False(t, ctx.IsLoaded())
		ctx.SeatCount = 2
		assert.True(t, ctx.IsLoaded())
	})
}

func TestStateMachine(t *testing.T) {
	setup := func() (*StateMachine, *SessionContext, *events.Queue) {
		ctx := NewSessionContext("test-session", zerolog.Nop())
		q := events.NewQueue()
		return NewStateMachine(ctx, q), ctx, q
	}

	t.Run("NewStateMachine", func(t *testing.T) {
		sm, _, _ := setup()
		assert.Equal(t, PhaseInitializing, sm.CurrentPhase())
		assert.Len(t, sm.states, 6)
	})

	t.Run("Valid Transitions", func(t *testing.T) {
		sm, ctx, q := setup()

		ctx.Source = "levels/test.level"
		require.NoError(t, sm.TransitionTo(PhaseLoading, "load requested"))

		ctx.SeatCount = 2
		require.NoError(t, sm.TransitionTo(PhaseRunning, "level loaded"))
		assert.False(t, ctx.StartTime.IsZero())
		started := ctx.StartTime

		require.NoError(t, sm.TransitionTo(PhasePaused, "operator"))
		assert.False(t, ctx.PauseTime.IsZero())

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, sm.TransitionTo(PhaseRunning, "resume"))
		assert.Greater(t, ctx.TotalPauseDuration, time.Duration(0))
		assert.Equal(t, started, ctx.StartTime, "resume keeps the original start time")

		require.NoError(t, sm.End("shutdown"))
		assert.Equal(t, PhaseEnded, sm.CurrentPhase())
		assert.Equal(t, 5, q.Len(), "every transition is published")
	})

	t.Run("Invalid Transitions", func(t *testing.T) {
		sm, _, _ := setup()

		err := sm.TransitionTo(PhaseRunning, "skip loading")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PhaseInitializing, sm.CurrentPhase())
	})

	t.Run("State Validation", func(t *testing.T) {
		sm, ctx, _ := setup()

		err := sm.TransitionTo(PhaseLoading, "no source")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires a level source")

		ctx.Source = "seed:42"
		require.NoError(t, sm.TransitionTo(PhaseLoading, "load"))
		err = sm.TransitionTo(PhaseRunning, "empty level")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no seats")

		err = sm.TransitionTo(PhaseError, "no error")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires an error")
	})

	t.Run("Failure Ends Session", func(t *testing.T) {
		sm, ctx, _ := setup()
		ctx.Source = "broken.level"
		require.NoError(t, sm.TransitionTo(PhaseLoading, "load"))

		require.NoError(t, sm.Fail(errors.New("unexpected key")))
		assert.Equal(t, PhaseError, sm.CurrentPhase())

		require.NoError(t, sm.TransitionTo(PhaseEnded, "give up"))
		assert.Equal(t, "unexpected key", ctx.EndReason)
		assert.Error(t, sm.TransitionTo(PhaseRunning, "revive"))
	})

	t.Run("History Tracking", func(t *testing.T) {
		sm, ctx, _ := setup()
		ctx.Source = "seed:1"
		ctx.SeatCount = 1
		_ = sm.TransitionTo(PhaseLoading, "reason1")
		_ = sm.TransitionTo(PhaseRunning, "reason2")

		history := sm.GetHistory()
		require.Len(t, history, 2)
		assert.Equal(t, PhaseInitializing, history[0].From)
		assert.Equal(t, PhaseLoading, history[0].To)
		assert.Equal(t, "reason1", history[0].Reason)
		assert.Equal(t, PhaseRunning, history[1].To)
	})
}

// MockState for testing custom state implementations
type MockState struct {
	phase       SessionPhase
	enterCalled bool
	exitCalled  bool
	enterError  error
}

func (m *MockState) Phase() SessionPhase            { return m.phase }
func (m *MockState) Enter(*SessionContext) error    { m.enterCalled = true; return m.enterError }
func (m *MockState) Exit(*SessionContext) error     { m.exitCalled = true; return nil }
func (m *MockState) Validate(*SessionContext) error { return nil }

func TestStateMachine_CustomStates(t *testing.T) {
	ctx := NewSessionContext("test-session", zerolog.Nop())
	sm := NewStateMachine(ctx, nil)

	loading := &MockState{phase: PhaseLoading}
	running := &MockState{phase: PhaseRunning, enterError: errors.New("no tick loop")}
	sm.RegisterState(loading)
	sm.RegisterState(running)

	require.NoError(t, sm.TransitionTo(PhaseLoading, "test"))
	assert.True(t, loading.enterCalled)

	err := sm.TransitionTo(PhaseRunning, "test")
	require.Error(t, err)
	assert.True(t, loading.exitCalled)
	assert.True(t, running.enterCalled)
	assert.Equal(t, PhaseLoading, sm.CurrentPhase(), "failed enter rolls back")
	assert.Len(t, sm.GetHistory(), 1)
}
