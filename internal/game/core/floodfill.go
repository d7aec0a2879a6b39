package core

import "fmt"

// FloodFillType is a connectivity category. Colors are tracked per category.
type FloodFillType int

const (
	FloodFillGround FloodFillType = iota
	FloodFillGroundWater
	FloodFillGroundLava
	FloodFillGroundWaterLava
	NbFloodFill
)

// FloodFillUnset marks a category whose color is not yet known.
const FloodFillUnset int32 = -1

func (f FloodFillType) String() string {
	switch f {
	case FloodFillGround:
		return "ground"
	case FloodFillGroundWater:
		return "groundWater"
	case FloodFillGroundLava:
		return "groundLava"
	case FloodFillGroundWaterLava:
		return "groundWaterLava"
	default:
		return fmt.Sprintf("FloodFillType(%d)", int(f))
	}
}

// PassableFor reports whether an open tile takes part in category f.
// Full tiles take part in no category.
func (t *Tile) PassableFor(f FloodFillType) bool {
	if t.IsFull() {
		return false
	}
	switch t.tileType {
	case TypeDirt, TypeGold, TypeRock:
		return true
	case TypeWater:
		return f == FloodFillGroundWater || f == FloodFillGroundWaterLava
	case TypeLava:
		return f == FloodFillGroundLava || f == FloodFillGroundWaterLava
	}
	return false
}

// IsFloodFillFilled reports whether every category applicable to the tile has a color.
func (t *Tile) IsFloodFillFilled() bool {
	if t.IsFull() {
		return true
	}
	for f := FloodFillGround; f < NbFloodFill; f++ {
		if t.PassableFor(f) && t.floodFill[f] == FloodFillUnset {
			return false
		}
	}
	return true
}

// FloodFillValue returns the color of category f, or FloodFillUnset.
func (t *Tile) FloodFillValue(f FloodFillType) int32 {
	if f < 0 || f >= NbFloodFill {
		return FloodFillUnset
	}
	return t.floodFill[f]
}

// SameFloodFill reports whether both tiles have the same known color for f.
func (t *Tile) SameFloodFill(other *Tile, f FloodFillType) bool {
	v := t.FloodFillValue(f)
	return v != FloodFillUnset && v == other.FloodFillValue(f)
}

// UpdateFloodFillFromTile copies src's color for f into t. It succeeds only if
// t is uncolored and src is colored, so repeated application converges.
func (t *Tile) UpdateFloodFillFromTile(f FloodFillType, src *Tile) bool {
	if f < 0 || f >= NbFloodFill {
		return false
	}
	if t.floodFill[f] != FloodFillUnset || src.floodFill[f] == FloodFillUnset {
		return false
	}
	t.floodFill[f] = src.floodFill[f]
	return true
}

// ReplaceFloodFill overwrites the color of f. Used when merging two regions.
func (t *Tile) ReplaceFloodFill(f FloodFillType, color int32) {
	if f < 0 || f >= NbFloodFill {
		return
	}
	t.floodFill[f] = color
}

// ResetFloodFill clears every category.
func (t *Tile) ResetFloodFill() { t.resetFloodFill() }

func (t *Tile) resetFloodFill() {
	for i := range t.floodFill {
		t.floodFill[i] = FloodFillUnset
	}
}

// ResetFloodFill clears every category of every tile.
func (b *Board) ResetFloodFill() {
	for i := range b.T {
		b.T[i].resetFloodFill()
	}
}
