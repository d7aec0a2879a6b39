package rules

import "github.com/mitchelldurbincs/dungeonsync/internal/game/core"

// TargetKind indexes the per-tile action slots of a legal target mask.
type TargetKind int

const (
	TargetDig TargetKind = iota
	TargetClaim
	NbTargetKinds
)

// LegalTargetCalculator computes which tiles a seat may currently dig or claim.
type LegalTargetCalculator struct {
	engine *ClaimEngine
}

// NewLegalTargetCalculator creates a calculator backed by engine.
func NewLegalTargetCalculator(engine *ClaimEngine) *LegalTargetCalculator {
	return &LegalTargetCalculator{engine: engine}
}

// GetLegalTargetMask returns a flattened boolean mask for seat.
// For a board of width W and height H:
// - Total entries = W * H * NbTargetKinds
// - Index = (y * W + x) * NbTargetKinds + kind
// - true = the command would be accepted this tick
func (lc *LegalTargetCalculator) GetLegalTargetMask(seat core.SeatID) []bool {
	board := lc.engine.board
	mask := make([]bool, len(board.T)*int(NbTargetKinds))

	for i := range board.T {
		t := &board.T[i]
		base := i * int(NbTargetKinds)
		mask[base+int(TargetDig)] = lc.engine.IsDiggable(t, seat)
		if t.IsFull() {
			mask[base+int(TargetClaim)] = lc.engine.IsWallClaimable(t, seat)
		} else {
			mask[base+int(TargetClaim)] = lc.engine.IsGroundClaimable(t, seat)
		}
	}
	return mask
}

// Targets lists the tile indices where kind is legal for seat.
func (lc *LegalTargetCalculator) Targets(seat core.SeatID, kind TargetKind) []int {
	mask := lc.GetLegalTargetMask(seat)
	var out []int
	for i := 0; i < len(mask)/int(NbTargetKinds); i++ {
		if mask[i*int(NbTargetKinds)+int(kind)] {
			out = append(out, i)
		}
	}
	return out
}
