package mapgen

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/aquilax/go-perlin"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

var (
	ErrInvalidConfig = errors.New("invalid map config")
	ErrNoSeatSpace   = errors.New("unable to place seat")
)

// MapConfig holds configuration for map generation
type MapConfig struct {
	Width     int
	Height    int
	SeatCount int
	Seed      int64

	// NoiseScale maps tile coordinates into noise space.
	NoiseScale float64
	// Noise thresholds in [0,1]: below WaterLevel is water, above LavaLevel
	// is lava, above RockLevel (and below LavaLevel) is rock.
	WaterLevel float64
	RockLevel  float64
	LavaLevel  float64
	GoldRatio  int // 1 gold vein per N dirt walls

	StartRadius    int
	MinSeatSpacing int
}

// DefaultMapConfig returns a sensible default configuration
func DefaultMapConfig(w, h, seats int, seed int64) MapConfig {
	return MapConfig{
		Width:          w,
		Height:         h,
		SeatCount:      seats,
		Seed:           seed,
		NoiseScale:     0.12,
		WaterLevel:     0.22,
		RockLevel:      0.66,
		LavaLevel:      0.8,
		GoldRatio:      25,
		StartRadius:    2,
		MinSeatSpacing: 8,
	}
}

func (c MapConfig) validate() error {
	switch {
	case c.Width < 3 || c.Height < 3:
		return fmt.Errorf("%w: map must be at least 3x3, got %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.SeatCount < 0:
		return fmt.Errorf("%w: negative seat count", ErrInvalidConfig)
	case c.NoiseScale <= 0:
		return fmt.Errorf("%w: noise scale must be positive", ErrInvalidConfig)
	case !(c.WaterLevel <= c.RockLevel && c.RockLevel <= c.LavaLevel):
		return fmt.Errorf("%w: thresholds must satisfy water <= rock <= lava", ErrInvalidConfig)
	case c.GoldRatio <= 0:
		return fmt.Errorf("%w: gold ratio must be positive", ErrInvalidConfig)
	case c.StartRadius < 0:
		return fmt.Errorf("%w: negative start radius", ErrInvalidConfig)
	}
	return nil
}

// Generator handles map generation. Both the noise field and the placement
// RNG derive from the config seed, so a seed always yields the same map.
type Generator struct {
	config MapConfig
	rng    *rand.Rand
	noise  *perlin.Perlin
}

// NewGenerator creates a new map generator
func NewGenerator(config MapConfig) *Generator {
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		noise:  perlin.NewPerlin(2, 2, 3, config.Seed),
	}
}

// SeatPlacement tracks where a seat's dungeon heart area was carved
type SeatPlacement struct {
	Seat core.SeatID
	Idx  int
	X, Y int
}

// GenerateMap creates a board with terrain and one claimed start area per
// seat. Seats are numbered from 1.
func (g *Generator) GenerateMap() (*core.Board, []SeatPlacement, error) {
	if err := g.config.validate(); err != nil {
		return nil, nil, err
	}
	board := core.NewBoard(g.config.Width, g.config.Height)

	if err := g.placeTerrain(board); err != nil {
		return nil, nil, err
	}
	if err := g.placeBorder(board); err != nil {
		return nil, nil, err
	}
	placements, err := g.placeSeats(board)
	if err != nil {
		return nil, nil, err
	}
	return board, placements, nil
}

// sample returns the noise value at a tile, in [0,1].
func (g *Generator) sample(x, y int) float64 {
	v := g.noise.Noise2D(float64(x)*g.config.NoiseScale, float64(y)*g.config.NoiseScale)
	v = (v + 1) / 2
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func (g *Generator) placeTerrain(b *core.Board) error {
	for idx := range b.T {
		x, y := b.XY(idx)
		tt, fullness := g.terrainFor(g.sample(x, y))
		if _, err := b.SetType(idx, tt); err != nil {
			return err
		}
		if _, err := b.SetFullness(idx, fullness); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) terrainFor(v float64) (core.TileType, float64) {
	switch {
	case v < g.config.WaterLevel:
		return core.TypeWater, 0
	case v > g.config.LavaLevel:
		return core.TypeLava, 0
	case v > g.config.RockLevel:
		return core.TypeRock, core.MaxFullness
	case g.rng.Intn(g.config.GoldRatio) == 0:
		return core.TypeGold, core.MaxFullness
	default:
		return core.TypeDirt, core.MaxFullness
	}
}

// placeBorder walls the map edge with full rock.
func (g *Generator) placeBorder(b *core.Board) error {
	for idx := range b.T {
		x, y := b.XY(idx)
		if x != 0 && y != 0 && x != b.W-1 && y != b.H-1 {
			continue
		}
		if _, err := b.SetType(idx, core.TypeRock); err != nil {
			return err
		}
		if _, err := b.SetFullness(idx, core.MaxFullness); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) placeSeats(b *core.Board) ([]SeatPlacement, error) {
	placements := make([]SeatPlacement, 0, g.config.SeatCount)
	for i := 0; i < g.config.SeatCount; i++ {
		p, err := g.findSeatLocation(b, placements)
		if err != nil {
			return nil, err
		}
		p.Seat = core.SeatID(i + 1)
		if err := g.carveStartArea(b, p); err != nil {
			return nil, err
		}
		placements = append(placements, p)
	}
	return placements, nil
}

func (g *Generator) findSeatLocation(b *core.Board, existing []SeatPlacement) (SeatPlacement, error) {
	// Start areas stay inside the border ring.
	margin := g.config.StartRadius + 1
	spanX, spanY := b.W-2*margin, b.H-2*margin
	if spanX <= 0 || spanY <= 0 {
		return SeatPlacement{}, fmt.Errorf("%w: %dx%d map too small for start radius %d", ErrNoSeatSpace, b.W, b.H, g.config.StartRadius)
	}

	maxAttempts := b.W * b.H
	for attempts := 0; attempts < maxAttempts; attempts++ {
		x, y := margin+g.rng.Intn(spanX), margin+g.rng.Intn(spanY)
		if g.spacedFrom(b, x, y, existing) {
			return SeatPlacement{Idx: b.Idx(x, y), X: x, Y: y}, nil
		}
	}

	// Fallback: scan in order for any spaced location
	for y := margin; y < margin+spanY; y++ {
		for x := margin; x < margin+spanX; x++ {
			if g.spacedFrom(b, x, y, existing) {
				return SeatPlacement{Idx: b.Idx(x, y), X: x, Y: y}, nil
			}
		}
	}
	return SeatPlacement{}, fmt.Errorf("%w: seat %d of %d", ErrNoSeatSpace, len(existing)+1, g.config.SeatCount)
}

func (g *Generator) spacedFrom(b *core.Board, x, y int, existing []SeatPlacement) bool {
	for _, other := range existing {
		if b.Distance(x, y, other.X, other.Y) < g.config.MinSeatSpacing {
			return false
		}
	}
	return true
}

// carveStartArea opens dirt ground around the placement and claims it.
func (g *Generator) carveStartArea(b *core.Board, p SeatPlacement) error {
	for _, idx := range b.TilesInRadius(p.X, p.Y, g.config.StartRadius) {
		if _, err := b.SetType(idx, core.TypeDirt); err != nil {
			return err
		}
		if _, err := b.SetFullness(idx, 0); err != nil {
			return err
		}
		if _, err := b.SetOwner(idx, p.Seat); err != nil {
			return err
		}
	}
	return nil
}
