package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTile(t *testing.T, b *Board, x, y int, tt TileType) *Tile {
	t.Helper()
	idx := b.Idx(x, y)
	_, err := b.SetType(idx, tt)
	require.NoError(t, err)
	_, err = b.SetFullness(idx, 0)
	require.NoError(t, err)
	return b.Tile(idx)
}

func TestTile_PassableFor(t *testing.T) {
	b := NewBoard(3, 1)
	dirt := openTile(t, b, 0, 0, TypeDirt)
	water := openTile(t, b, 1, 0, TypeWater)
	wall := b.Tile(b.Idx(2, 0))

	for f := FloodFillGround; f < NbFloodFill; f++ {
		assert.True(t, dirt.PassableFor(f), f.String())
		assert.False(t, wall.PassableFor(f), f.String())
	}
	assert.False(t, water.PassableFor(FloodFillGround))
	assert.True(t, water.PassableFor(FloodFillGroundWater))
	assert.False(t, water.PassableFor(FloodFillGroundLava))
	assert.True(t, water.PassableFor(FloodFillGroundWaterLava))
}

func TestTile_IsFloodFillFilled(t *testing.T) {
	b := NewBoard(3, 1)
	lava := openTile(t, b, 0, 0, TypeLava)
	dirt := openTile(t, b, 1, 0, TypeDirt)
	wall := b.Tile(b.Idx(2, 0))

	assert.True(t, wall.IsFloodFillFilled())
	assert.False(t, lava.IsFloodFillFilled())

	lava.ReplaceFloodFill(FloodFillGroundLava, 1)
	assert.False(t, lava.IsFloodFillFilled())
	lava.ReplaceFloodFill(FloodFillGroundWaterLava, 1)
	assert.True(t, lava.IsFloodFillFilled())

	for f := FloodFillGround; f < NbFloodFill-1; f++ {
		dirt.ReplaceFloodFill(f, 3)
	}
	assert.False(t, dirt.IsFloodFillFilled())
	dirt.ReplaceFloodFill(FloodFillGroundWaterLava, 3)
	assert.True(t, dirt.IsFloodFillFilled())
}

func TestTile_UpdateFloodFillFromTile(t *testing.T) {
	b := NewBoard(2, 1)
	src := openTile(t, b, 0, 0, TypeDirt)
	dst := openTile(t, b, 1, 0, TypeDirt)

	assert.False(t, dst.UpdateFloodFillFromTile(FloodFillGround, src), "uncolored source must not propagate")

	src.ReplaceFloodFill(FloodFillGround, 7)
	assert.True(t, dst.UpdateFloodFillFromTile(FloodFillGround, src))
	assert.Equal(t, int32(7), dst.FloodFillValue(FloodFillGround))
	assert.True(t, dst.SameFloodFill(src, FloodFillGround))

	src.ReplaceFloodFill(FloodFillGround, 9)
	assert.False(t, dst.UpdateFloodFillFromTile(FloodFillGround, src), "colored destination must not change")
	assert.Equal(t, int32(7), dst.FloodFillValue(FloodFillGround))

	assert.False(t, dst.SameFloodFill(src, FloodFillGroundLava), "unset colors are never equal")

	b.ResetFloodFill()
	assert.Equal(t, FloodFillUnset, src.FloodFillValue(FloodFillGround))
	assert.Equal(t, FloodFillUnset, dst.FloodFillValue(FloodFillGround))
}
