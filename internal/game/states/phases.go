package states

import "fmt"

// SessionPhase represents the current phase of a session
type SessionPhase int

const (
	// PhaseInitializing - Session object creation
	PhaseInitializing SessionPhase = iota

	// PhaseLoading - Level load or generation, seat placement, first vision pass
	PhaseLoading

	// PhaseRunning - Ticks are applying commands and syncing seats
	PhaseRunning

	// PhasePaused - Ticks keep syncing but commands are refused
	PhasePaused

	// PhaseEnded - Final state, seats released
	PhaseEnded

	// PhaseError - Load or tick failure
	PhaseError
)

// String returns the string representation of a SessionPhase
func (p SessionPhase) String() string {
	switch p {
	case PhaseInitializing:
		return "Initializing"
	case PhaseLoading:
		return "Loading"
	case PhaseRunning:
		return "Running"
	case PhasePaused:
		return "Paused"
	case PhaseEnded:
		return "Ended"
	case PhaseError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// IsTerminal returns true if the phase represents a terminal state
func (p SessionPhase) IsTerminal() bool {
	return p == PhaseEnded
}

// CanReceiveCommands returns true if seat commands are applied in this phase
func (p SessionPhase) CanReceiveCommands() bool {
	return p == PhaseRunning
}

// Ticks returns true if the tick loop runs in this phase. A paused session
// still flushes sync state so clients see a consistent world.
func (p SessionPhase) Ticks() bool {
	return p == PhaseRunning || p == PhasePaused
}

// AllowedTransitions returns the valid phases this phase can transition to
func (p SessionPhase) AllowedTransitions() []SessionPhase {
	switch p {
	case PhaseInitializing:
		return []SessionPhase{PhaseLoading, PhaseError}
	case PhaseLoading:
		return []SessionPhase{PhaseRunning, PhaseError}
	case PhaseRunning:
		return []SessionPhase{PhasePaused, PhaseEnded, PhaseError}
	case PhasePaused:
		return []SessionPhase{PhaseRunning, PhaseEnded, PhaseError}
	case PhaseError:
		return []SessionPhase{PhaseEnded}
	default:
		return []SessionPhase{}
	}
}

// CanTransitionTo checks if a transition from this phase to the target phase is allowed
func (p SessionPhase) CanTransitionTo(target SessionPhase) bool {
	for _, phase := range p.AllowedTransitions() {
		if phase == target {
			return true
		}
	}
	return false
}

// ParsePhase converts a string to a SessionPhase
func ParsePhase(s string) (SessionPhase, error) {
	for p := PhaseInitializing; p <= PhaseError; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return PhaseInitializing, fmt.Errorf("unknown session phase %q", s)
}
