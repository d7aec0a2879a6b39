// Package entity holds the closed set of entity kinds the simulation core
// tracks besides tiles and seats.
package entity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
)

// Entity is implemented only by the types in this package. Callers match on
// the concrete type with a switch instead of asking for a runtime tag.
type Entity interface {
	Position() core.Coordinate
	entity()
}

// TileRef points at a tile of the arena.
type TileRef struct {
	Idx   int
	Coord core.Coordinate
}

func (t TileRef) Position() core.Coordinate { return t.Coord }
func (TileRef) entity()                     {}

// ResearchArtifact carries a completed research to its seat. The research
// becomes done when the artifact is delivered.
type ResearchArtifact struct {
	ID          uuid.UUID
	Seat        core.SeatID
	Research    research.ResearchType
	Origin      core.Coordinate
	SpawnTick   uint64
	DeliverTick uint64
}

func (a *ResearchArtifact) Position() core.Coordinate { return a.Origin }
func (*ResearchArtifact) entity()                     {}

// Describe renders any entity for logs.
func Describe(e Entity) string {
	switch v := e.(type) {
	case TileRef:
		return "tile " + core.TileName(v.Coord.X, v.Coord.Y)
	case *ResearchArtifact:
		return fmt.Sprintf("research artifact %s (%s for seat %d, due tick %d)", v.ID, v.Research, v.Seat, v.DeliverTick)
	default:
		panic(fmt.Sprintf("entity: unhandled kind %T", e))
	}
}

// OwnerOf returns the seat an entity belongs to. Tiles report their current owner.
func OwnerOf(e Entity, board *core.Board) core.SeatID {
	switch v := e.(type) {
	case TileRef:
		if t := board.Tile(v.Idx); t != nil {
			return t.Owner()
		}
		return core.NoSeat
	case *ResearchArtifact:
		return v.Seat
	default:
		panic(fmt.Sprintf("entity: unhandled kind %T", e))
	}
}
