package states

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
)

// ErrInvalidTransition is returned when the current phase cannot move to the
// requested one.
var ErrInvalidTransition = errors.New("invalid transition")

// State represents a session state with lifecycle callbacks
type State interface {
	// Phase returns the SessionPhase this state represents
	Phase() SessionPhase

	// Enter is called when transitioning into this state
	Enter(ctx *SessionContext) error

	// Exit is called when transitioning out of this state
	Exit(ctx *SessionContext) error

	// Validate checks if the state is valid given the context
	Validate(ctx *SessionContext) error
}

// Transition represents a state transition in the history
type Transition struct {
	From      SessionPhase
	To        SessionPhase
	Timestamp time.Time
	Reason    string
}

// StateMachine manages session state transitions and history. Phase reads
// are safe from any goroutine; transitions are made by the tick owner.
type StateMachine struct {
	mu             sync.RWMutex
	currentPhase   SessionPhase
	states         map[SessionPhase]State
	context        *SessionContext
	history        []Transition
	maxHistorySize int
	publisher      events.Publisher
}

// NewStateMachine creates a new state machine. publisher may be nil.
func NewStateMachine(ctx *SessionContext, publisher events.Publisher) *StateMachine {
	sm := &StateMachine{
		currentPhase:   PhaseInitializing,
		states:         make(map[SessionPhase]State),
		context:        ctx,
		history:        make([]Transition, 0, 16),
		maxHistorySize: 256,
		publisher:      publisher,
	}
	sm.registerDefaultStates()
	return sm
}

func (sm *StateMachine) registerDefaultStates() {
	sm.RegisterState(NewInitializingState())
	sm.RegisterState(NewLoadingState())
	sm.RegisterState(NewRunningState())
	sm.RegisterState(NewPausedState())
	sm.RegisterState(NewEndedState())
	sm.RegisterState(NewErrorState())
}

// RegisterState registers a state implementation
func (sm *StateMachine) RegisterState(state State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.states[state.Phase()] = state
}

// CurrentPhase returns the current session phase
func (sm *StateMachine) CurrentPhase() SessionPhase {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.currentPhase
}

// TransitionTo attempts to transition to the specified phase
func (sm *StateMachine) TransitionTo(targetPhase SessionPhase, reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.currentPhase.CanTransitionTo(targetPhase) {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, sm.currentPhase, targetPhase)
	}

	currentState, hasCurrentState := sm.states[sm.currentPhase]
	targetState, hasTargetState := sm.states[targetPhase]
	if !hasTargetState {
		return fmt.Errorf("no state implementation for phase %s", targetPhase)
	}

	if err := targetState.Validate(sm.context); err != nil {
		return fmt.Errorf("target state validation failed: %w", err)
	}

	if hasCurrentState {
		if err := currentState.Exit(sm.context); err != nil {
			sm.context.Logger.Error().
				Err(err).
				Str("from_phase", sm.currentPhase.String()).
				Str("to_phase", targetPhase.String()).
				Msg("Error exiting state")
			// Continue with transition despite exit error
		}
	}

	previousPhase := sm.currentPhase
	sm.currentPhase = targetPhase

	if err := targetState.Enter(sm.context); err != nil {
		sm.currentPhase = previousPhase
		return fmt.Errorf("failed to enter state %s: %w", targetPhase, err)
	}

	sm.addToHistory(Transition{
		From:      previousPhase,
		To:        targetPhase,
		Timestamp: time.Now(),
		Reason:    reason,
	})

	if sm.publisher != nil {
		sm.publisher.Publish(events.NewStateTransitionEvent(
			sm.context.SessionID,
			previousPhase.String(),
			targetPhase.String(),
			reason,
		))
	}

	sm.context.Logger.Info().
		Str("from_phase", previousPhase.String()).
		Str("to_phase", targetPhase.String()).
		Str("reason", reason).
		Msg("State transition completed")

	return nil
}

// Fail records err and moves the session to PhaseError.
func (sm *StateMachine) Fail(err error) error {
	sm.mu.Lock()
	sm.context.Error = err
	sm.mu.Unlock()
	return sm.TransitionTo(PhaseError, err.Error())
}

// End finishes the session from any live phase.
func (sm *StateMachine) End(reason string) error {
	sm.mu.Lock()
	sm.context.EndReason = reason
	sm.mu.Unlock()
	return sm.TransitionTo(PhaseEnded, reason)
}

// addToHistory adds a transition to the history, maintaining max size
func (sm *StateMachine) addToHistory(transition Transition) {
	sm.history = append(sm.history, transition)
	if len(sm.history) > sm.maxHistorySize {
		sm.history = sm.history[len(sm.history)-sm.maxHistorySize:]
	}
}

// GetHistory returns a copy of the transition history
func (sm *StateMachine) GetHistory() []Transition {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	history := make([]Transition, len(sm.history))
	copy(history, sm.history)
	return history
}

// GetContext returns the session context
func (sm *StateMachine) GetContext() *SessionContext {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.context
}

// CanTransitionTo checks if a transition to the target phase is allowed
func (sm *StateMachine) CanTransitionTo(targetPhase SessionPhase) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.currentPhase.CanTransitionTo(targetPhase)
}
