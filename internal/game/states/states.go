package states

import (
	"fmt"
	"time"
)

// InitializingState represents session object creation
type InitializingState struct{}

func NewInitializingState() State {
	return &InitializingState{}
}

func (s *InitializingState) Phase() SessionPhase {
	return PhaseInitializing
}

func (s *InitializingState) Enter(ctx *SessionContext) error {
	ctx.Logger.Debug().Msg("Entering Initializing state")
	return nil
}

func (s *InitializingState) Exit(ctx *SessionContext) error {
	ctx.Logger.Debug().Msg("Exiting Initializing state")
	return nil
}

func (s *InitializingState) Validate(ctx *SessionContext) error {
	return nil
}

// LoadingState represents level load and seat placement
type LoadingState struct{}

func NewLoadingState() State {
	return &LoadingState{}
}

func (s *LoadingState) Phase() SessionPhase {
	return PhaseLoading
}

func (s *LoadingState) Enter(ctx *SessionContext) error {
	ctx.Logger.Info().Str("source", ctx.Source).Msg("Loading session level")
	return nil
}

func (s *LoadingState) Exit(ctx *SessionContext) error {
	ctx.Logger.Info().
		Int("seat_count", ctx.SeatCount).
		Int("human_seats", ctx.HumanSeats).
		Msg("Level loaded")
	return nil
}

func (s *LoadingState) Validate(ctx *SessionContext) error {
	if ctx.Source == "" {
		return fmt.Errorf("loading requires a level source")
	}
	return nil
}

// RunningState represents active simulation
type RunningState struct{}

func NewRunningState() State {
	return &RunningState{}
}

func (s *RunningState) Phase() SessionPhase {
	return PhaseRunning
}

func (s *RunningState) Enter(ctx *SessionContext) error {
	if ctx.StartTime.IsZero() {
		ctx.StartTime = time.Now()
		ctx.Logger.Info().
			Time("start_time", ctx.StartTime).
			Msg("Session started")
	}
	return nil
}

func (s *RunningState) Exit(ctx *SessionContext) error {
	ctx.Logger.Info().
		Dur("elapsed", ctx.GetElapsedTime()).
		Msg("Exiting running state")
	return nil
}

func (s *RunningState) Validate(ctx *SessionContext) error {
	if !ctx.IsLoaded() {
		return fmt.Errorf("cannot run a session with no seats")
	}
	return nil
}

// PausedState represents a paused session
type PausedState struct{}

func NewPausedState() State {
	return &PausedState{}
}

func (s *PausedState) Phase() SessionPhase {
	return PhasePaused
}

func (s *PausedState) Enter(ctx *SessionContext) error {
	ctx.PauseTime = time.Now()
	ctx.Logger.Info().
		Time("pause_time", ctx.PauseTime).
		Msg("Session paused")
	return nil
}

func (s *PausedState) Exit(ctx *SessionContext) error {
	if !ctx.PauseTime.IsZero() {
		pauseDuration := time.Since(ctx.PauseTime)
		ctx.TotalPauseDuration += pauseDuration
		ctx.PauseTime = time.Time{}
		ctx.Logger.Info().
			Dur("pause_duration", pauseDuration).
			Dur("total_pause_duration", ctx.TotalPauseDuration).
			Msg("Session resumed")
	}
	return nil
}

func (s *PausedState) Validate(ctx *SessionContext) error {
	if ctx.StartTime.IsZero() {
		return fmt.Errorf("cannot pause a session that hasn't started")
	}
	return nil
}

// EndedState represents a finished session
type EndedState struct{}

func NewEndedState() State {
	return &EndedState{}
}

func (s *EndedState) Phase() SessionPhase {
	return PhaseEnded
}

func (s *EndedState) Enter(ctx *SessionContext) error {
	ctx.Logger.Info().
		Str("reason", ctx.EndReason).
		Dur("session_duration", ctx.GetElapsedTime()).
		Msg("Session ended")
	return nil
}

func (s *EndedState) Exit(ctx *SessionContext) error {
	return nil
}

func (s *EndedState) Validate(ctx *SessionContext) error {
	if ctx.EndReason == "" && ctx.Error == nil {
		return fmt.Errorf("ended state requires a reason or an error")
	}
	return nil
}

// ErrorState represents a load or tick failure
type ErrorState struct{}

func NewErrorState() State {
	return &ErrorState{}
}

func (s *ErrorState) Phase() SessionPhase {
	return PhaseError
}

func (s *ErrorState) Enter(ctx *SessionContext) error {
	ctx.Logger.Error().
		Err(ctx.Error).
		Msg("Session entered error state")
	return nil
}

func (s *ErrorState) Exit(ctx *SessionContext) error {
	if ctx.EndReason == "" {
		ctx.EndReason = ctx.Error.Error()
	}
	return nil
}

func (s *ErrorState) Validate(ctx *SessionContext) error {
	if ctx.Error == nil {
		return fmt.Errorf("error state requires an error in context")
	}
	return nil
}
