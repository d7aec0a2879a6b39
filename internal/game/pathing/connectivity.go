package pathing

import (
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

// Connectivity maintains the per-category flood fill colors of a board.
// Two tiles are reachable from each other for a category exactly when they
// share a color.
type Connectivity struct {
	board     *core.Board
	nextColor int32
	logger    zerolog.Logger

	queue []int
}

// NewConnectivity colors board from scratch.
func NewConnectivity(board *core.Board, logger zerolog.Logger) *Connectivity {
	c := &Connectivity{
		board:  board,
		logger: logger.With().Str("component", "Connectivity").Logger(),
	}
	c.Recompute()
	return c
}

// Recompute clears every color and floods each region again.
func (c *Connectivity) Recompute() {
	c.board.ResetFloodFill()
	c.nextColor = 0
	regions := 0
	for f := core.FloodFillGround; f < core.NbFloodFill; f++ {
		for i := range c.board.T {
			t := &c.board.T[i]
			if !t.PassableFor(f) || t.FloodFillValue(f) != core.FloodFillUnset {
				continue
			}
			t.ReplaceFloodFill(f, c.newColor())
			c.propagate(f, i)
			regions++
		}
	}
	c.logger.Debug().Int("regions", regions).Msg("Recomputed flood fill")
}

func (c *Connectivity) newColor() int32 {
	color := c.nextColor
	c.nextColor++
	return color
}

// propagate spreads the color of start to every connected uncolored tile.
func (c *Connectivity) propagate(f core.FloodFillType, start int) int {
	colored := 0
	c.queue = append(c.queue[:0], start)
	for len(c.queue) > 0 {
		idx := c.queue[len(c.queue)-1]
		c.queue = c.queue[:len(c.queue)-1]
		src := &c.board.T[idx]
		for _, n := range c.board.Neighbors(idx) {
			dst := &c.board.T[n]
			if !dst.PassableFor(f) {
				continue
			}
			if dst.UpdateFloodFillFromTile(f, src) {
				colored++
				c.queue = append(c.queue, n)
			}
		}
	}
	return colored
}

// Step applies one propagation pass over every adjacent pair and returns how
// many tiles received a color. On a converged board it returns 0.
func (c *Connectivity) Step(f core.FloodFillType) int {
	colored := 0
	for i := range c.board.T {
		src := &c.board.T[i]
		if !src.PassableFor(f) {
			continue
		}
		for _, n := range c.board.Neighbors(i) {
			dst := &c.board.T[n]
			if dst.PassableFor(f) && dst.UpdateFloodFillFromTile(f, src) {
				colored++
			}
		}
	}
	return colored
}

// TileOpened updates colors after idx became passable. Adjacent regions are
// merged into one color.
func (c *Connectivity) TileOpened(idx int) {
	t := c.board.Tile(idx)
	if t == nil {
		return
	}
	for f := core.FloodFillGround; f < core.NbFloodFill; f++ {
		if !t.PassableFor(f) {
			continue
		}
		t.ReplaceFloodFill(f, core.FloodFillUnset)

		var target int32 = core.FloodFillUnset
		for _, n := range c.board.Neighbors(idx) {
			nt := &c.board.T[n]
			if !nt.PassableFor(f) {
				continue
			}
			color := nt.FloodFillValue(f)
			if color == core.FloodFillUnset {
				continue
			}
			if target == core.FloodFillUnset {
				target = color
				continue
			}
			if color != target {
				c.replaceColor(f, color, target)
			}
		}

		if target == core.FloodFillUnset {
			target = c.newColor()
		}
		t.ReplaceFloodFill(f, target)
		c.propagate(f, idx)
	}
}

// TileClosed handles a tile that became impassable. A closed tile may split a
// region, so colors are recomputed.
func (c *Connectivity) TileClosed(idx int) {
	if !c.board.ValidIdx(idx) {
		return
	}
	c.Recompute()
}

func (c *Connectivity) replaceColor(f core.FloodFillType, from, to int32) {
	for i := range c.board.T {
		t := &c.board.T[i]
		if t.FloodFillValue(f) == from {
			t.ReplaceFloodFill(f, to)
		}
	}
}

// Reachable reports whether a and b are mutually reachable for category f.
func (c *Connectivity) Reachable(f core.FloodFillType, a, b int) bool {
	ta, tb := c.board.Tile(a), c.board.Tile(b)
	if ta == nil || tb == nil {
		return false
	}
	return ta.SameFloodFill(tb, f)
}

// Filled reports whether every tile has a color for each applicable category.
func (c *Connectivity) Filled() bool {
	for i := range c.board.T {
		if !c.board.T[i].IsFloodFillFilled() {
			return false
		}
	}
	return true
}
