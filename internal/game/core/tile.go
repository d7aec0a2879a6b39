package core

import "fmt"

// TileType is the base terrain of a tile. Ordinals are part of the wire format.
type TileType uint32

const (
	TypeDirt TileType = iota
	TypeRock
	TypeGold
	TypeWater
	TypeLava
	nbTileTypes
)

var tileTypeNames = [nbTileTypes]string{"Dirt", "Rock", "Gold", "Water", "Lava"}

func (t TileType) String() string {
	if t >= nbTileTypes {
		return fmt.Sprintf("TileType(%d)", uint32(t))
	}
	return tileTypeNames[t]
}

// Valid reports whether t is a known ordinal.
func (t TileType) Valid() bool { return t < nbTileTypes }

// ParseTileType accepts either the type name or its ordinal, as both appear in level files.
func ParseTileType(s string) (TileType, error) {
	for i, name := range tileTypeNames {
		if name == s {
			return TileType(i), nil
		}
	}
	var n uint32
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && TileType(n).Valid() {
		return TileType(n), nil
	}
	return 0, fmt.Errorf("unknown tile type %q", s)
}

// TileVisual is derived from type, fullness and claim status. Ordinals are part of the wire format.
type TileVisual uint32

const (
	VisualNull TileVisual = iota
	VisualDirtGround
	VisualDirtFull
	VisualRockGround
	VisualRockFull
	VisualGoldGround
	VisualGoldFull
	VisualWaterGround
	VisualLavaGround
	VisualClaimedGround
	VisualClaimedFull
	nbTileVisuals
)

var tileVisualNames = [nbTileVisuals]string{
	"nullTileVisual", "dirtGround", "dirtFull", "rockGround", "rockFull", "goldGround",
	"goldFull", "waterGround", "lavaGround", "claimedGround", "claimedFull",
}

func (v TileVisual) String() string {
	if v >= nbTileVisuals {
		return fmt.Sprintf("TileVisual(%d)", uint32(v))
	}
	return tileVisualNames[v]
}

func (v TileVisual) Valid() bool { return v < nbTileVisuals }

// IsGround reports whether the visual is an open floor.
func (v TileVisual) IsGround() bool {
	switch v {
	case VisualDirtGround, VisualRockGround, VisualGoldGround, VisualWaterGround,
		VisualLavaGround, VisualClaimedGround:
		return true
	}
	return false
}

// ComputeVisual is the only source of a tile's visual.
func ComputeVisual(t TileType, fullness float64, claimed bool) TileVisual {
	full := fullness > 0
	if claimed {
		if full {
			return VisualClaimedFull
		}
		return VisualClaimedGround
	}
	switch t {
	case TypeDirt:
		if full {
			return VisualDirtFull
		}
		return VisualDirtGround
	case TypeRock:
		if full {
			return VisualRockFull
		}
		return VisualRockGround
	case TypeGold:
		if full {
			return VisualGoldFull
		}
		return VisualGoldGround
	case TypeWater:
		return VisualWaterGround
	case TypeLava:
		return VisualLavaGround
	default:
		return VisualNull
	}
}

// NextFullness is the editor toggle ladder 0, 25, 50, 75, 100, 0.
func NextFullness(f float64) float64 {
	switch f {
	case 0:
		return 25
	case 25:
		return 50
	case 50:
		return 75
	case 75:
		return 100
	default:
		return 0
	}
}

// SeatID identifies a seat in the session arena.
type SeatID int32

// NoSeat marks an unowned tile.
const NoSeat SeatID = -1

const (
	MaxFullness = 100.0
	// MaxSeatSlots bounds the per-tile dirty bitfield.
	MaxSeatSlots = 64
)

// Tile is a single grid cell. Mutate it only through Board so the visual and
// dirty flags stay consistent.
type Tile struct {
	X, Y int

	tileType          TileType
	fullness          float64
	claimedPercentage float64
	owner             SeatID
	claimant          SeatID
	visual            TileVisual

	neighbors   [4]int
	nbNeighbors int

	floodFill [NbFloodFill]int32

	// Bit i set means seat slot i has not been sent this tile's current state.
	dirty uint64
}

func (t *Tile) Type() TileType             { return t.tileType }
func (t *Tile) Fullness() float64          { return t.fullness }
func (t *Tile) ClaimedPercentage() float64 { return t.claimedPercentage }
func (t *Tile) Owner() SeatID              { return t.owner }
func (t *Tile) Claimant() SeatID           { return t.claimant }
func (t *Tile) Visual() TileVisual         { return t.visual }
func (t *Tile) Coordinate() Coordinate     { return Coordinate{X: t.X, Y: t.Y} }
func (t *Tile) IsFull() bool               { return t.fullness > 0 }
func (t *Tile) IsClaimed() bool            { return t.owner != NoSeat && t.claimedPercentage >= 1 }
func (t *Tile) IsDirty(slot int) bool      { return slot >= 0 && slot < MaxSeatSlots && t.dirty&(1<<uint(slot)) != 0 }
func (t *Tile) Name() string               { return TileName(t.X, t.Y) }

func (t *Tile) String() string {
	return fmt.Sprintf("%s[%s %.0f %s]", t.Name(), t.tileType, t.fullness, t.visual)
}

// Snapshot is a read-only copy of a tile's replicated state.
type Snapshot struct {
	X, Y              int
	Type              TileType
	Fullness          float64
	ClaimedPercentage float64
	Owner             SeatID
	Visual            TileVisual
}

func (t *Tile) Snapshot() Snapshot {
	return Snapshot{
		X:                 t.X,
		Y:                 t.Y,
		Type:              t.tileType,
		Fullness:          t.fullness,
		ClaimedPercentage: t.claimedPercentage,
		Owner:             t.owner,
		Visual:            t.visual,
	}
}
