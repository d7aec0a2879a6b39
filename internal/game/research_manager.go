package game

import (
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/entity"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

// ResearchManager accrues research points and delivers research artifacts
type ResearchManager struct {
	seats         *seat.Registry
	artifacts     *entity.Artifacts
	pointsPerTick int32
	sessionID     string
	logger        zerolog.Logger
}

// NewResearchManager creates a new research manager
func NewResearchManager(seats *seat.Registry, artifacts *entity.Artifacts, pointsPerTick int32, sessionID string, logger zerolog.Logger) *ResearchManager {
	return &ResearchManager{
		seats:         seats,
		artifacts:     artifacts,
		pointsPerTick: pointsPerTick,
		sessionID:     sessionID,
		logger:        logger.With().Str("component", "ResearchManager").Logger(),
	}
}

// ProcessResearch runs one tick of research for every active seat. A research
// that reaches its points spawns an artifact at the seat's start position; it
// stays pending until the artifact is delivered, at which point it becomes
// done. The seats whose done set changed are returned in ID order.
func (rm *ResearchManager) ProcessResearch(tick uint64, pub events.Publisher) []core.SeatID {
	completed := 0
	for _, s := range rm.seats.SortedByID() {
		if s.ID == seat.RogueSeatID || s.PlayerType == seat.PlayerInactive {
			continue
		}
		r := s.Research.AddResearchPoints(rm.pointsPerTick)
		if r == nil {
			continue
		}
		art := rm.artifacts.Spawn(s.ID, r.Type, core.NewCoordinate(s.StartX, s.StartY), tick)
		pub.Publish(events.NewResearchCompletedEvent(rm.sessionID, s.ID, r.Type, art.ID.String(), tick))
		rm.logger.Info().
			Int32("seat_id", int32(s.ID)).
			Str("research", r.Type.String()).
			Uint64("deliver_tick", art.DeliverTick).
			Msg("Research completed, artifact spawned")
		completed++
	}

	var changed []core.SeatID
	for _, art := range rm.artifacts.Due(tick) {
		s := rm.seats.Get(art.Seat)
		if s == nil {
			rm.logger.Error().Int32("seat_id", int32(art.Seat)).Msg("Research artifact for unknown seat discarded")
			continue
		}
		added, err := s.Research.AddResearch(art.Research)
		if err != nil {
			rm.logger.Warn().
				Err(err).
				Int32("seat_id", int32(s.ID)).
				Str("research", art.Research.String()).
				Msg("Delivered research could not be recorded")
			continue
		}
		if !added {
			continue
		}
		pub.Publish(events.NewResearchDeliveredEvent(rm.sessionID, s.ID, art.Research, tick))
		if n := len(changed); n == 0 || changed[n-1] != s.ID {
			changed = append(changed, s.ID)
		}
	}

	if completed > 0 || len(changed) > 0 {
		rm.logger.Debug().
			Uint64("tick", tick).
			Int("completed", completed).
			Int("seats_changed", len(changed)).
			Msg("Processed research")
	}
	return changed
}
