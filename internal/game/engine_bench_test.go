package game

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/mapgen"
)

type discardSink struct{}

func (discardSink) Send([]byte) bool { return true }
func (discardSink) Close(int, string) {}

func createBenchEngine(b *testing.B, size, seats int) *Engine {
	b.Helper()
	e, err := NewEngine(context.Background(), GameConfig{
		Map:        mapgen.DefaultMapConfig(size, size, seats, 12345),
		HumanSeats: seats,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		b.Fatalf("failed to create engine: %v", err)
	}
	b.Cleanup(e.syncer.Close)
	return e
}

func BenchmarkStep(b *testing.B) {
	testCases := []struct {
		name  string
		size  int
		seats int
	}{
		{"Small_24x24", 24, 2},
		{"Medium_48x48", 48, 4},
		{"Large_96x96", 96, 8},
	}

	for _, tc := range testCases {
		b.Run(tc.name, func(b *testing.B) {
			e := createBenchEngine(b, tc.size, tc.seats)
			for id := 1; id <= tc.seats; id++ {
				if err := e.connect(core.SeatID(id), discardSink{}, fmt.Sprintf("bench-%d", id)); err != nil {
					b.Fatal(err)
				}
			}
			rng := rand.New(rand.NewSource(1))
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := StepRandom(ctx, e, rng); err != nil {
					b.Fatal(err)
				}
			}
			b.ReportMetric(float64(tc.size*tc.size), "board_tiles")
		})
	}
}

func BenchmarkUpdateVision(b *testing.B) {
	for _, size := range []int{32, 64, 128} {
		b.Run(fmt.Sprintf("%dx%d", size, size), func(b *testing.B) {
			e := createBenchEngine(b, size, 4)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				e.updateVision(uint64(i))
				e.queue.Discard()
			}
		})
	}
}

func BenchmarkBoardRendering(b *testing.B) {
	e := createBenchEngine(b, 48, 4)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Board(1)
	}
}
