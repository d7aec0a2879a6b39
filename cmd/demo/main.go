package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/dungeonsync/internal/game"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/mapgen"
)

func main() {
	width := flag.Int("width", 32, "Map width")
	height := flag.Int("height", 20, "Map height")
	seats := flag.Int("seats", 2, "Number of seats")
	ticks := flag.Int("ticks", 200, "Ticks to simulate")
	every := flag.Int("every", 25, "Print the board every N ticks")
	viewer := flag.Int("viewer", 0, "Render the map as this seat sees it (0 shows everything)")
	seed := flag.Int64("seed", 0, "Map and command seed (0 for a time-based seed)")
	verbose := flag.Bool("v", false, "Log generated commands")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	fmt.Printf("Session seed: %d\n", *seed)

	if err := randomCommandDemo(*width, *height, *seats, *ticks, *every, core.SeatID(*viewer), *seed); err != nil {
		log.Fatal().Err(err).Msg("Demo failed")
	}
}

// randomCommandDemo drives a session with random digs and claims, without a
// Run loop, and prints the map as it evolves.
func randomCommandDemo(w, h, seatCount, ticks, every int, viewer core.SeatID, seed int64) error {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(seed))

	bus := events.NewEventBus(log.Logger)
	bus.SubscribeFunc(events.TypeResearchDelivered, func(ev events.Event) {
		e := ev.(*events.ResearchDeliveredEvent)
		fmt.Printf("  seat %d can now use %s\n", e.SeatID, e.Research)
	})

	e, err := game.NewEngine(ctx, game.GameConfig{
		Map:                   mapgen.DefaultMapConfig(w, h, seatCount, seed),
		HumanSeats:            seatCount,
		ResearchPointsPerTick: 25,
		ResearchDeliveryTicks: 10,
		Bus:                   bus,
		Logger:                log.Logger,
	})
	if err != nil {
		return err
	}
	if viewer == 0 {
		viewer = core.NoSeat
	}

	fmt.Printf("Initial map:\n%s\n", e.Board(viewer))
	printSeats(ctx, e)

	for tick := 1; tick <= ticks; tick++ {
		if err := game.StepRandom(ctx, e, rng); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		if every > 0 && tick%every == 0 {
			fmt.Printf("Tick %d:\n%s\n", e.CurrentTick(), e.Board(viewer))
			printSeats(ctx, e)
		}
	}

	if err := e.Stop(ctx, "demo finished"); err != nil {
		return err
	}
	fmt.Printf("\nFinal map after %d ticks:\n%s\n", e.CurrentTick(), e.Board(viewer))
	printSeats(ctx, e)
	return nil
}

func printSeats(ctx context.Context, e *game.Engine) {
	seats, err := e.Seats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read seats")
		return
	}
	for _, s := range seats {
		fmt.Printf("Seat %d (%s): %d tiles, %d gold, research done %v\n",
			s.ID, s.PlayerType, s.ClaimedTiles, s.Gold, s.ResearchDone)
	}
	fmt.Println()
}
