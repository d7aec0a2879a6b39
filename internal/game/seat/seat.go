package seat

import (
	"fmt"
	"math"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
)

// PlayerType is who controls a seat. The names are stored in save files and sent on the wire.
type PlayerType int

const (
	PlayerInactive PlayerType = iota
	PlayerHuman
	PlayerAI
	PlayerChoice
)

var playerTypeNames = [...]string{"Inactive", "Human", "AI", "Choice"}

func (p PlayerType) String() string {
	if p < 0 || int(p) >= len(playerTypeNames) {
		return fmt.Sprintf("PlayerType(%d)", int(p))
	}
	return playerTypeNames[p]
}

// ParsePlayerType maps a stored name back to its type.
func ParsePlayerType(s string) (PlayerType, error) {
	for i, name := range playerTypeNames {
		if name == s {
			return PlayerType(i), nil
		}
	}
	return PlayerInactive, fmt.Errorf("unknown player type %q", s)
}

const (
	// NoTeam marks a seat whose team has not been picked from AvailableTeamIDs yet.
	NoTeam = -1
	// RogueSeatID owns entities that belong to nobody. It never appears in save files.
	RogueSeatID core.SeatID = 0
	// RogueTeamID is the rogue seat's team. It never appears in save files.
	RogueTeamID = 0

	DefaultMana = 1000.0
)

// Seat is one participant's persistent state for the session.
type Seat struct {
	ID               core.SeatID
	TeamID           int
	AvailableTeamIDs []int
	PlayerType       PlayerType
	Faction          string
	StartX, StartY   int
	ColorID          string

	Gold          int
	GoldMined     int
	Mana          float64
	ManaDelta     float64
	ClaimedTiles  int
	TreasuryCount int
	GoalsChanged  bool

	// Allies are seats whose vision is shared with this one. Not guaranteed symmetric.
	Allies []core.SeatID

	Research *research.Tree

	goldCarry float64
	slot      int
}

// New creates a seat with the defaults a freshly loaded map uses.
func New(id core.SeatID, catalog *research.Catalog) *Seat {
	return &Seat{
		ID:           id,
		TeamID:       NoTeam,
		PlayerType:   PlayerInactive,
		Mana:         DefaultMana,
		GoalsChanged: true,
		Research:     research.NewTree(catalog, nil),
		slot:         -1,
	}
}

// NewRogue creates the seat that owns unclaimed entities.
func NewRogue(catalog *research.Catalog) *Seat {
	s := New(RogueSeatID, catalog)
	s.TeamID = RogueTeamID
	s.AvailableTeamIDs = []int{RogueTeamID}
	s.Mana = 0
	return s
}

// Slot is the seat's index in the arena, used for per-tile dirty flags. -1 until registered.
func (s *Seat) Slot() int { return s.slot }

// IsHuman reports whether the seat has a human viewpoint and thus a vision table.
func (s *Seat) IsHuman() bool { return s.PlayerType == PlayerHuman }

// SetTeamID assigns one of the available teams.
func (s *Seat) SetTeamID(team int) error {
	for _, t := range s.AvailableTeamIDs {
		if t == team {
			s.TeamID = team
			return nil
		}
	}
	return core.NewError(core.KindInvariant, "set team",
		fmt.Errorf("team %d not available for seat %d", team, s.ID))
}

// TakeMana spends mana if enough is available.
func (s *Seat) TakeMana(amount float64) bool {
	if amount > s.Mana {
		return false
	}
	s.Mana -= amount
	return true
}

// CreditGold adds mined gold. Fractions are carried until they add up to a whole coin.
func (s *Seat) CreditGold(amount float64) {
	if amount <= 0 {
		return
	}
	s.goldCarry += amount
	whole := math.Floor(s.goldCarry)
	s.goldCarry -= whole
	s.Gold += int(whole)
	s.GoldMined += int(whole)
}

// RefreshFromSeat copies the counters that change over time from a newer copy of the seat.
func (s *Seat) RefreshFromSeat(other *Seat) {
	s.Gold = other.Gold
	s.Mana = other.Mana
	s.ManaDelta = other.ManaDelta
	s.ClaimedTiles = other.ClaimedTiles
	s.GoalsChanged = other.GoalsChanged
	s.TreasuryCount = other.TreasuryCount
}

// IsAlly reports whether id is in the seat's ally list.
func (s *Seat) IsAlly(id core.SeatID) bool {
	for _, a := range s.Allies {
		if a == id {
			return true
		}
	}
	return false
}

func (s *Seat) String() string {
	return fmt.Sprintf("Seat{id=%d team=%d player=%s faction=%s}", s.ID, s.TeamID, s.PlayerType, s.Faction)
}
