package mapgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

const testSeed = 12345

// Configuration and Initialization Tests
func TestDefaultMapConfig(t *testing.T) {
	w, h, seats := 20, 15, 2
	config := DefaultMapConfig(w, h, seats, testSeed)

	assert.Equal(t, w, config.Width, "Width should be set correctly")
	assert.Equal(t, h, config.Height, "Height should be set correctly")
	assert.Equal(t, seats, config.SeatCount, "SeatCount should be set correctly")
	assert.Equal(t, int64(testSeed), config.Seed)
	assert.NoError(t, config.validate())
}

func TestMapConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MapConfig)
	}{
		{"TooSmall", func(c *MapConfig) { c.Width = 2 }},
		{"NegativeSeats", func(c *MapConfig) { c.SeatCount = -1 }},
		{"ZeroScale", func(c *MapConfig) { c.NoiseScale = 0 }},
		{"ThresholdOrder", func(c *MapConfig) { c.RockLevel = 0.9 }},
		{"ZeroGoldRatio", func(c *MapConfig) { c.GoldRatio = 0 }},
		{"NegativeRadius", func(c *MapConfig) { c.StartRadius = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultMapConfig(20, 20, 2, testSeed)
			tt.mutate(&config)
			_, _, err := NewGenerator(config).GenerateMap()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestGenerateMap_Deterministic(t *testing.T) {
	config := DefaultMapConfig(30, 24, 3, testSeed)
	a, pa, err := NewGenerator(config).GenerateMap()
	require.NoError(t, err)
	b, pb, err := NewGenerator(config).GenerateMap()
	require.NoError(t, err)

	assert.Equal(t, pa, pb, "Same seed should place seats identically")
	for i := range a.T {
		require.Equal(t, a.T[i].Type(), b.T[i].Type(), "type of %s", a.T[i].Name())
		require.Equal(t, a.T[i].Fullness(), b.T[i].Fullness(), "fullness of %s", a.T[i].Name())
	}

	config.Seed = testSeed + 1
	c, _, err := NewGenerator(config).GenerateMap()
	require.NoError(t, err)
	differs := false
	for i := range a.T {
		if a.T[i].Type() != c.T[i].Type() || a.T[i].Fullness() != c.T[i].Fullness() {
			differs = true
			break
		}
	}
	assert.True(t, differs, "A different seed should change the map")
}

func TestGenerateMap_Border(t *testing.T) {
	board, _, err := NewGenerator(DefaultMapConfig(16, 12, 0, testSeed)).GenerateMap()
	require.NoError(t, err)

	for i := range board.T {
		tile := &board.T[i]
		if tile.X != 0 && tile.Y != 0 && tile.X != board.W-1 && tile.Y != board.H-1 {
			continue
		}
		assert.Equal(t, core.TypeRock, tile.Type(), "border tile %s should be rock", tile.Name())
		assert.True(t, tile.IsFull(), "border tile %s should be a wall", tile.Name())
	}
}

func TestGenerateMap_TerrainIsConsistent(t *testing.T) {
	board, _, err := NewGenerator(DefaultMapConfig(40, 40, 0, testSeed)).GenerateMap()
	require.NoError(t, err)

	counts := make(map[core.TileType]int)
	for i := range board.T {
		tile := &board.T[i]
		counts[tile.Type()]++
		switch tile.Type() {
		case core.TypeWater, core.TypeLava:
			assert.False(t, tile.IsFull(), "liquid tile %s should be ground", tile.Name())
		}
		assert.Equal(t, core.ComputeVisual(tile.Type(), tile.Fullness(), tile.IsClaimed()), tile.Visual())
	}
	assert.Greater(t, counts[core.TypeDirt], 0, "A 40x40 map should contain dirt")
	assert.Greater(t, counts[core.TypeRock], 0, "A 40x40 map should contain rock")
}

// Seat Placement Tests
func TestGenerateMap_SeatStartAreas(t *testing.T) {
	config := DefaultMapConfig(40, 30, 4, testSeed)
	board, placements, err := NewGenerator(config).GenerateMap()
	require.NoError(t, err)
	require.Len(t, placements, 4)

	for i, p := range placements {
		assert.Equal(t, core.SeatID(i+1), p.Seat, "Seats are numbered from 1")
		assert.Equal(t, board.Idx(p.X, p.Y), p.Idx)

		for _, idx := range board.TilesInRadius(p.X, p.Y, config.StartRadius) {
			tile := board.Tile(idx)
			assert.Equal(t, core.TypeDirt, tile.Type())
			assert.False(t, tile.IsFull(), "start tile %s should be open", tile.Name())
			assert.Equal(t, p.Seat, tile.Owner(), "start tile %s should be claimed", tile.Name())
			assert.Equal(t, core.VisualClaimedGround, tile.Visual())
		}

		for _, other := range placements[:i] {
			assert.GreaterOrEqual(t, board.Distance(p.X, p.Y, other.X, other.Y), config.MinSeatSpacing,
				"Seats %d and %d are too close", p.Seat, other.Seat)
		}
	}
}

func TestGenerateMap_NoRoomForSeats(t *testing.T) {
	t.Run("MapTooSmallForRadius", func(t *testing.T) {
		config := DefaultMapConfig(5, 5, 1, testSeed)
		config.StartRadius = 2
		_, _, err := NewGenerator(config).GenerateMap()
		assert.ErrorIs(t, err, ErrNoSeatSpace)
	})

	t.Run("SpacingCannotBeMet", func(t *testing.T) {
		config := DefaultMapConfig(12, 12, 6, testSeed)
		config.MinSeatSpacing = 20
		assert.NotPanics(t, func() {
			_, _, err := NewGenerator(config).GenerateMap()
			assert.ErrorIs(t, err, ErrNoSeatSpace)
		})
	})
}
