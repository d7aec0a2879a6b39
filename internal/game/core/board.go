package core

// Board is the tile arena. Tiles are addressed by row-major index and never
// move, so neighbor lists are computed once at construction.
type Board struct {
	W, H int
	T    []Tile // length = W*H (row-major)
}

// NewBoard creates a board of full dirt tiles, every tile dirty for every seat.
func NewBoard(w, h int) *Board {
	b := &Board{W: w, H: h, T: make([]Tile, w*h)}
	for i := range b.T {
		t := &b.T[i]
		t.X, t.Y = b.XY(i)
		t.tileType = TypeDirt
		t.fullness = MaxFullness
		t.owner = NoSeat
		t.claimant = NoSeat
		t.dirty = ^uint64(0)
		t.resetFloodFill()
		t.visual = ComputeVisual(t.tileType, t.fullness, false)
	}
	for i := range b.T {
		t := &b.T[i]
		for _, c := range t.Coordinate().ValidNeighbors(w, h) {
			t.neighbors[t.nbNeighbors] = b.Idx(c.X, c.Y)
			t.nbNeighbors++
		}
	}
	return b
}

func (b *Board) Idx(x, y int) int      { return y*b.W + x }
func (b *Board) XY(idx int) (int, int) { return idx % b.W, idx / b.W }
func (b *Board) Len() int              { return len(b.T) }

// InBounds checks if coordinates are within board boundaries
func (b *Board) InBounds(x, y int) bool {
	return x >= 0 && x < b.W && y >= 0 && y < b.H
}

// ValidIdx checks an arena index.
func (b *Board) ValidIdx(idx int) bool {
	return idx >= 0 && idx < len(b.T)
}

// GetTile safely returns a tile pointer if coordinates are valid, nil otherwise
func (b *Board) GetTile(x, y int) *Tile {
	if !b.InBounds(x, y) {
		return nil
	}
	return &b.T[b.Idx(x, y)]
}

// Tile returns the tile at idx or nil.
func (b *Board) Tile(idx int) *Tile {
	if !b.ValidIdx(idx) {
		return nil
	}
	return &b.T[idx]
}

// Neighbors returns the up to four cardinal neighbor indices of idx.
func (b *Board) Neighbors(idx int) []int {
	t := &b.T[idx]
	return t.neighbors[:t.nbNeighbors]
}

// SetFullness sets a tile's fullness and recomputes its visual. It reports
// whether the visual changed.
func (b *Board) SetFullness(idx int, fullness float64) (bool, error) {
	if !b.ValidIdx(idx) {
		return false, ErrInvalidCoordinates
	}
	if fullness < 0 || fullness > MaxFullness {
		return false, NewError(KindInvariant, "set fullness", ErrInvalidFullness)
	}
	t := &b.T[idx]
	if t.fullness == fullness {
		return false, nil
	}
	t.fullness = fullness
	t.dirty = ^uint64(0)
	return b.RecomputeVisual(idx), nil
}

// SetType changes the base terrain of a tile.
func (b *Board) SetType(idx int, tt TileType) (bool, error) {
	if !b.ValidIdx(idx) {
		return false, ErrInvalidCoordinates
	}
	if !tt.Valid() {
		return false, NewError(KindInvariant, "set type", ErrInvalidTileType)
	}
	t := &b.T[idx]
	if t.tileType == tt {
		return false, nil
	}
	t.tileType = tt
	t.dirty = ^uint64(0)
	return b.RecomputeVisual(idx), nil
}

// SetOwner fully claims a tile for seat, or unclaims it when seat is NoSeat.
func (b *Board) SetOwner(idx int, seat SeatID) (bool, error) {
	if seat == NoSeat {
		return b.SetClaimProgress(idx, NoSeat, 0)
	}
	return b.SetClaimProgress(idx, seat, 1)
}

// SetClaimProgress records partial claim progress by claimant. The owner is
// set exactly when pct reaches 1 and cleared otherwise.
func (b *Board) SetClaimProgress(idx int, claimant SeatID, pct float64) (bool, error) {
	if !b.ValidIdx(idx) {
		return false, ErrInvalidCoordinates
	}
	if pct < 0 || pct > 1 {
		return false, NewError(KindInvariant, "set claim", ErrInvalidClaim)
	}
	if claimant < NoSeat {
		return false, NewError(KindInvariant, "set claim", ErrInvalidSeat)
	}
	t := &b.T[idx]
	if claimant == NoSeat {
		pct = 0
	}
	owner := NoSeat
	if pct >= 1 {
		owner = claimant
	}
	if pct <= 0 {
		claimant = NoSeat
	}
	if t.owner == owner && t.claimant == claimant && t.claimedPercentage == pct {
		return false, nil
	}
	t.owner = owner
	t.claimant = claimant
	t.claimedPercentage = pct
	t.dirty = ^uint64(0)
	return b.RecomputeVisual(idx), nil
}

// RecomputeVisual refreshes the derived visual and reports whether it changed.
func (b *Board) RecomputeVisual(idx int) bool {
	t := &b.T[idx]
	v := ComputeVisual(t.tileType, t.fullness, t.IsClaimed())
	if v == t.visual {
		return false
	}
	t.visual = v
	return true
}

// CycleFullness advances fullness along the editor ladder.
func (b *Board) CycleFullness(idx int) (bool, error) {
	if !b.ValidIdx(idx) {
		return false, ErrInvalidCoordinates
	}
	return b.SetFullness(idx, NextFullness(b.T[idx].fullness))
}

// MarkAllDirty flags every tile as unsent for slot, used on reconnect.
func (b *Board) MarkAllDirty(slot int) error {
	if slot < 0 || slot >= MaxSeatSlots {
		return NewError(KindInvariant, "mark dirty", ErrSeatSlotOverflow)
	}
	for i := range b.T {
		b.T[i].dirty |= 1 << uint(slot)
	}
	return nil
}

// ClearDirty clears the unsent flag of idx for slot.
func (b *Board) ClearDirty(idx, slot int) {
	if !b.ValidIdx(idx) || slot < 0 || slot >= MaxSeatSlots {
		return
	}
	b.T[idx].dirty &^= 1 << uint(slot)
}

func (b *Board) Distance(x1, y1, x2, y2 int) int {
	return Coordinate{X: x1, Y: y1}.DistanceTo(Coordinate{X: x2, Y: y2})
}

// TilesInRadius returns the indices within Manhattan distance r of (x, y).
func (b *Board) TilesInRadius(x, y, r int) []int {
	out := make([]int, 0, (2*r+1)*(2*r+1))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			nx, ny := x+dx, y+dy
			if !b.InBounds(nx, ny) || b.Distance(x, y, nx, ny) > r {
				continue
			}
			out = append(out, b.Idx(nx, ny))
		}
	}
	return out
}
