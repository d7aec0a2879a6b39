package rules

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

// ClaimedDigRateFactor scales dig work applied to claimed tiles.
const ClaimedDigRateFactor = 0.2

// SeatBook is the part of the seat arena the claim engine needs.
type SeatBook interface {
	// TeamOf returns the seat's team. ok is false for unknown seats.
	TeamOf(id core.SeatID) (team int, ok bool)
	CreditGold(id core.SeatID, amount float64)
	AdjustClaimedTiles(id core.SeatID, delta int)
}

// ClaimEngine decides whether tiles may be dug or claimed and applies the
// resulting mutations to the board.
type ClaimEngine struct {
	board           *core.Board
	seats           SeatBook
	goldPerFullness float64
	logger          zerolog.Logger
}

// NewClaimEngine creates a claim engine over board. goldPerFullness is the
// gold credited per point of fullness dug from a gold tile.
func NewClaimEngine(board *core.Board, seats SeatBook, goldPerFullness float64, logger zerolog.Logger) *ClaimEngine {
	return &ClaimEngine{
		board:           board,
		seats:           seats,
		goldPerFullness: goldPerFullness,
		logger:          logger.With().Str("component", "ClaimEngine").Logger(),
	}
}

// sameTeam treats unknown seats as hostile to nobody and allied to nobody.
func (ce *ClaimEngine) sameTeam(a, b core.SeatID) (same bool, ok bool) {
	ta, okA := ce.seats.TeamOf(a)
	tb, okB := ce.seats.TeamOf(b)
	if !okA || !okB {
		ce.logger.Error().Int32("seat_a", int32(a)).Int32("seat_b", int32(b)).Msg("Team lookup for unknown seat")
		return false, false
	}
	return ta == tb, true
}

// CanOwnedTileBeClaimedBy reports whether a tile owned by owner may be claimed
// by claimer. Seats of the same team never contest each other.
func (ce *ClaimEngine) CanOwnedTileBeClaimedBy(owner, claimer core.SeatID) bool {
	same, ok := ce.sameTeam(owner, claimer)
	return ok && !same
}

// IsClaimedForSeat reports whether the tile is fully claimed by seat's team.
func (ce *ClaimEngine) IsClaimedForSeat(t *core.Tile, seat core.SeatID) bool {
	if !t.IsClaimed() {
		return false
	}
	same, ok := ce.sameTeam(t.Owner(), seat)
	return ok && same
}

// IsDiggable decides from the tile visual. Full dirt and gold are always
// diggable, claimed walls only by the owner's team.
func (ce *ClaimEngine) IsDiggable(t *core.Tile, seat core.SeatID) bool {
	switch t.Visual() {
	case core.VisualDirtFull, core.VisualGoldFull:
		return true
	case core.VisualClaimedFull:
		if !t.IsClaimed() {
			return true
		}
		return ce.IsClaimedForSeat(t, seat)
	default:
		return false
	}
}

// IsWallClaimable reports whether seat may claim the wall. An adjacent floor
// tile claimed for seat is required. A wall owned by another team stays
// protected while its owner's team still holds adjacent claimed floor.
func (ce *ClaimEngine) IsWallClaimable(t *core.Tile, seat core.SeatID) bool {
	if !t.IsFull() {
		return false
	}
	switch t.Type() {
	case core.TypeLava, core.TypeWater, core.TypeRock, core.TypeGold:
		return false
	}

	idx := ce.board.Idx(t.X, t.Y)
	found := false
	for _, n := range ce.board.Neighbors(idx) {
		nt := &ce.board.T[n]
		if nt.IsFull() || !ce.IsClaimedForSeat(nt, seat) {
			continue
		}
		found = true
		break
	}
	if !found {
		return false
	}

	if !t.IsClaimed() {
		return true
	}
	if ce.IsClaimedForSeat(t, seat) {
		return false
	}

	owner := t.Owner()
	for _, n := range ce.board.Neighbors(idx) {
		nt := &ce.board.T[n]
		if nt.IsFull() || !nt.IsClaimed() {
			continue
		}
		if ce.IsClaimedForSeat(nt, owner) {
			return false
		}
	}
	return true
}

// IsWallClaimedForSeat reports whether a wall is fully claimed by a seat that
// cannot claim against seat.
func (ce *ClaimEngine) IsWallClaimedForSeat(t *core.Tile, seat core.SeatID) bool {
	if !t.IsFull() || t.ClaimedPercentage() < 1 || t.Owner() == core.NoSeat {
		return false
	}
	same, ok := ce.sameTeam(t.Owner(), seat)
	return ok && same
}

// IsGroundClaimable reports whether seat may claim an open floor tile.
func (ce *ClaimEngine) IsGroundClaimable(t *core.Tile, seat core.SeatID) bool {
	if t.IsFull() {
		return false
	}
	if t.Type() != core.TypeDirt && t.Type() != core.TypeGold {
		return false
	}
	return !ce.IsClaimedForSeat(t, seat)
}

// ScaleDigRate reduces dig work on claimed tiles.
func (ce *ClaimEngine) ScaleDigRate(t *core.Tile, rate float64) float64 {
	if t.IsClaimed() {
		return rate * ClaimedDigRateFactor
	}
	return rate
}

// DigResult describes the effect of one dig step.
type DigResult struct {
	VisualChanged bool
	Opened        bool
	GoldMined     float64
}

// Dig applies rate units of dig work for seat to the tile at idx.
func (ce *ClaimEngine) Dig(idx int, seat core.SeatID, rate float64) (DigResult, error) {
	t := ce.board.Tile(idx)
	if t == nil {
		return DigResult{}, core.ErrInvalidCoordinates
	}
	if !ce.IsDiggable(t, seat) {
		return DigResult{}, core.NewError(core.KindRule, "dig", core.ErrNotDiggable)
	}

	before := t.Fullness()
	after := math.Max(0, before-ce.ScaleDigRate(t, rate))
	changed, err := ce.board.SetFullness(idx, after)
	if err != nil {
		return DigResult{}, err
	}
	res := DigResult{VisualChanged: changed}

	if t.Type() == core.TypeGold {
		res.GoldMined = (before - after) * ce.goldPerFullness
		ce.seats.CreditGold(seat, res.GoldMined)
	}

	if after == 0 {
		res.Opened = true
		oldOwner := t.Owner()
		c, err := ce.board.SetOwner(idx, core.NoSeat)
		if err != nil {
			return res, err
		}
		res.VisualChanged = res.VisualChanged || c
		if oldOwner != core.NoSeat {
			ce.seats.AdjustClaimedTiles(oldOwner, -1)
		}
	}
	return res, nil
}

// ClaimResult describes the effect of one claim step.
type ClaimResult struct {
	VisualChanged bool
	PrevOwner     core.SeatID
	NewOwner      core.SeatID
}

// OwnerChanged reports whether the step flipped tile ownership.
func (r ClaimResult) OwnerChanged() bool { return r.PrevOwner != r.NewOwner }

// Claim applies amount of claim work for seat. Hostile progress is worn down
// first; once it reaches zero the remainder counts toward seat.
func (ce *ClaimEngine) Claim(idx int, seat core.SeatID, amount float64) (ClaimResult, error) {
	t := ce.board.Tile(idx)
	if t == nil {
		return ClaimResult{}, core.ErrInvalidCoordinates
	}
	if _, ok := ce.seats.TeamOf(seat); !ok {
		return ClaimResult{}, core.NewError(core.KindInvariant, "claim", core.ErrInvalidSeat)
	}

	claimable := ce.IsGroundClaimable(t, seat)
	if t.IsFull() {
		claimable = ce.IsWallClaimable(t, seat)
	}
	if !claimable {
		return ClaimResult{}, core.NewError(core.KindRule, "claim", core.ErrNotClaimable)
	}

	res := ClaimResult{PrevOwner: t.Owner()}
	claimant := t.Claimant()
	pct := t.ClaimedPercentage()

	allied := false
	if claimant != core.NoSeat {
		allied, _ = ce.sameTeam(claimant, seat)
	}

	if allied {
		pct += amount
		if pct >= 1 {
			pct = 1
			claimant = seat
		}
	} else {
		pct -= amount
		if pct <= 0 {
			pct = math.Min(1, -pct)
			claimant = seat
		}
	}

	changed, err := ce.board.SetClaimProgress(idx, claimant, pct)
	if err != nil {
		return res, err
	}
	res.VisualChanged = changed
	res.NewOwner = t.Owner()

	if res.OwnerChanged() {
		if res.PrevOwner != core.NoSeat {
			ce.seats.AdjustClaimedTiles(res.PrevOwner, -1)
		}
		if res.NewOwner != core.NoSeat {
			ce.seats.AdjustClaimedTiles(res.NewOwner, 1)
		}
	}
	return res, nil
}
