package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

// CreateTestBoard creates a board of full dirt tiles.
func CreateTestBoard(width, height int) *core.Board {
	return core.NewBoard(width, height)
}

// OpenTiles turns the given coordinates into open dirt floor.
func OpenTiles(t *testing.T, board *core.Board, coords ...core.Coordinate) {
	t.Helper()
	for _, c := range coords {
		_, err := board.SetFullness(board.Idx(c.X, c.Y), 0)
		require.NoError(t, err)
	}
}

// ClaimTiles fully claims the given coordinates for seat.
func ClaimTiles(t *testing.T, board *core.Board, seat core.SeatID, coords ...core.Coordinate) {
	t.Helper()
	for _, c := range coords {
		_, err := board.SetOwner(board.Idx(c.X, c.Y), seat)
		require.NoError(t, err)
	}
}

// SetTileType changes the terrain of the given coordinates.
func SetTileType(t *testing.T, board *core.Board, tt core.TileType, coords ...core.Coordinate) {
	t.Helper()
	for _, c := range coords {
		_, err := board.SetType(board.Idx(c.X, c.Y), tt)
		require.NoError(t, err)
	}
}

// TeamBook is an in-memory seat ledger keyed by seat ID.
type TeamBook struct {
	Teams   map[core.SeatID]int
	Gold    map[core.SeatID]float64
	Claimed map[core.SeatID]int
}

// NewTeamBook creates a ledger with the given seat to team mapping.
func NewTeamBook(teams map[core.SeatID]int) *TeamBook {
	return &TeamBook{
		Teams:   teams,
		Gold:    make(map[core.SeatID]float64),
		Claimed: make(map[core.SeatID]int),
	}
}

func (tb *TeamBook) TeamOf(id core.SeatID) (int, bool) {
	team, ok := tb.Teams[id]
	return team, ok
}

func (tb *TeamBook) CreditGold(id core.SeatID, amount float64) {
	tb.Gold[id] += amount
}

func (tb *TeamBook) AdjustClaimedTiles(id core.SeatID, delta int) {
	tb.Claimed[id] += delta
}
