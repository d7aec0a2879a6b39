package game

import (
	"context"
	"math/rand"

	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/rules"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

// GenerateRandomCommands picks one legal dig or claim for some of the active
// seats. It reads engine state and so must run on the tick goroutine; it is
// intended for demos and soak tests.
func GenerateRandomCommands(e *Engine, rng *rand.Rand) []core.Command {
	legal := rules.NewLegalTargetCalculator(e.claims)
	var cmds []core.Command

	for _, s := range e.seats.SortedByID() {
		if s.ID == seat.RogueSeatID || s.PlayerType == seat.PlayerInactive {
			continue
		}
		if rng.Float32() > 0.7 {
			continue
		}

		// Digging grows the dungeon; claiming holds it.
		kind := rules.TargetDig
		if rng.Float32() < 0.5 {
			kind = rules.TargetClaim
		}
		targets := legal.Targets(s.ID, kind)
		if len(targets) == 0 {
			continue
		}
		x, y := e.board.XY(targets[rng.Intn(len(targets))])
		target := core.NewCoordinate(x, y)

		var cmd core.Command
		if kind == rules.TargetDig {
			cmd = &core.DigCommand{Seat: s.ID, Target: target}
		} else {
			cmd = &core.ClaimCommand{Seat: s.ID, Target: target}
		}
		cmds = append(cmds, cmd)
		log.Debug().
			Int32("seat_id", int32(s.ID)).
			Str("command", cmd.GetType().String()).
			Str("target", target.String()).
			Msg("Generated random command")
	}
	return cmds
}

// StepRandom submits random commands for every active seat and runs one tick.
// For demos driving the engine without a Run loop.
func StepRandom(ctx context.Context, e *Engine, rng *rand.Rand) error {
	for _, cmd := range GenerateRandomCommands(e, rng) {
		if err := e.Submit(cmd); err != nil {
			return err
		}
	}
	return e.Step(ctx)
}
