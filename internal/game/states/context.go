package states

import (
	"time"

	"github.com/rs/zerolog"
)

// SessionContext provides session information to states for making decisions
type SessionContext struct {
	// SessionID uniquely identifies this session
	SessionID string

	// Logger for state-specific logging
	Logger zerolog.Logger

	// SeatCount is the number of seats loaded from the level
	SeatCount int

	// HumanSeats is the number of seats that need vision and sync
	HumanSeats int

	// Source names the level file or generator seed the session was loaded from
	Source string

	// StartTime is when the session started (PhaseRunning entered)
	StartTime time.Time

	// PauseTime is when the session was paused (if paused)
	PauseTime time.Time

	// TotalPauseDuration tracks total time spent paused
	TotalPauseDuration time.Duration

	// EndReason is set by whoever ends the session
	EndReason string

	// Error holds any error that caused transition to PhaseError
	Error error
}

// NewSessionContext creates a new session context
func NewSessionContext(sessionID string, logger zerolog.Logger) *SessionContext {
	return &SessionContext{
		SessionID: sessionID,
		Logger:    logger.With().Str("session_id", sessionID).Logger(),
	}
}

// IsLoaded returns true once the level produced at least one seat
func (sc *SessionContext) IsLoaded() bool {
	return sc.SeatCount > 0
}

// GetElapsedTime returns the time elapsed since session start, excluding pauses
func (sc *SessionContext) GetElapsedTime() time.Duration {
	if sc.StartTime.IsZero() {
		return 0
	}
	return time.Since(sc.StartTime) - sc.TotalPauseDuration
}
