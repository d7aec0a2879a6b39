package game

import (
	"time"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

// TickStats measures one tick.
type TickStats struct {
	Tick          uint64
	Commands      int
	Rejected      int
	TilesChanged  int
	FramesSent    int
	TilesSent     int
	DeferredSeats int
	DroppedSeats  int
	Duration      time.Duration
}

// SeatSummary is a read-only view of one seat for admin surfaces.
type SeatSummary struct {
	ID             core.SeatID             `json:"id"`
	TeamID         int                     `json:"team_id"`
	PlayerType     string                  `json:"player_type"`
	Faction        string                  `json:"faction,omitempty"`
	Gold           int                     `json:"gold"`
	Mana           float64                 `json:"mana"`
	ClaimedTiles   int                     `json:"claimed_tiles"`
	Connected      bool                    `json:"connected"`
	ResearchDone   []research.ResearchType `json:"research_done"`
	ResearchQueue  []research.ResearchType `json:"research_pending"`
	Researching    string                  `json:"researching,omitempty"`
	ResearchPoints int32                   `json:"research_points"`
}

// summarizeSeats lists every seat except the rogue seat, in ID order.
func (e *Engine) summarizeSeats() []SeatSummary {
	all := e.seats.SortedByID()
	out := make([]SeatSummary, 0, len(all))
	for _, s := range all {
		if s.ID == seat.RogueSeatID {
			continue
		}
		sum := SeatSummary{
			ID:             s.ID,
			TeamID:         s.TeamID,
			PlayerType:     s.PlayerType.String(),
			Faction:        s.Faction,
			Gold:           s.Gold,
			Mana:           s.Mana,
			ClaimedTiles:   s.ClaimedTiles,
			Connected:      e.syncer.Connected(s.ID),
			ResearchDone:   s.Research.Done(),
			ResearchQueue:  s.Research.Pending(),
			ResearchPoints: s.Research.Points(),
		}
		if cur := s.Research.Current(); cur != nil {
			sum.Researching = cur.Type.String()
		}
		out = append(out, sum)
	}
	return out
}
