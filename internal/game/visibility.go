package game

import (
	"context"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

// This file contains the per-tick vision computation for the game engine.

// updateVision recomputes what every seat sees: the surroundings of its start
// position, of every tile it has claimed and of its registered vision
// sources. Vision granted to a seat flows
// on to its allies. Seats whose view changed get a VisionChanged event.
func (e *Engine) updateVision(tick uint64) []seat.VisionDiff {
	r := e.config.VisionRadius
	e.vision.BeginTick()

	for _, s := range e.seats.All() {
		if s.ID == seat.RogueSeatID || !e.board.InBounds(s.StartX, s.StartY) {
			continue
		}
		e.vision.GrantRadius(s.ID, s.StartX, s.StartY, r)
	}

	for i := range e.board.T {
		t := &e.board.T[i]
		if !t.IsClaimed() || t.Owner() == seat.RogueSeatID {
			continue
		}
		e.vision.GrantRadius(t.Owner(), t.X, t.Y, r)
	}
	e.vision.GrantSources()

	diffs := e.vision.EndTick()
	for _, d := range diffs {
		if d.Empty() {
			continue
		}
		e.queue.Publish(events.NewVisionChangedEvent(
			e.sessionID,
			d.Seat,
			e.coordinates(d.Gained),
			e.coordinates(d.Lost),
			tick,
		))
	}
	return diffs
}

// AddVisionSource registers extra sight for a seat. It takes effect on the
// next tick.
func (e *Engine) AddVisionSource(ctx context.Context, src seat.VisionSource) (seat.SourceID, error) {
	var (
		id  seat.SourceID
		err error
	)
	if derr := e.do(ctx, func() { id, err = e.vision.AddSource(src) }); derr != nil {
		return 0, derr
	}
	return id, err
}

// RemoveVisionSource drops a source added with AddVisionSource.
func (e *Engine) RemoveVisionSource(ctx context.Context, id seat.SourceID) error {
	var err error
	if derr := e.do(ctx, func() { err = e.vision.RemoveSource(id) }); derr != nil {
		return derr
	}
	return err
}

func (e *Engine) coordinates(idxs []int) []core.Coordinate {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]core.Coordinate, len(idxs))
	for i, idx := range idxs {
		x, y := e.board.XY(idx)
		out[i] = core.Coordinate{X: x, Y: y}
	}
	return out
}
