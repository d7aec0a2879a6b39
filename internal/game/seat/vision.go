package seat

import (
	"errors"
	"fmt"
	"maps"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

// VisionDiff is one seat's visibility transitions for a tick, as tile indices.
type VisionDiff struct {
	Seat   core.SeatID
	Gained []int
	Lost   []int
}

// Empty reports whether nothing changed.
func (d VisionDiff) Empty() bool { return len(d.Gained) == 0 && len(d.Lost) == 0 }

// VisionSource grants a seat sight of every tile within Radius (Manhattan) of
// a point, whether or not the seat owns anything there. Scouting creatures
// and sight spells register one.
type VisionSource struct {
	Seat   core.SeatID
	X, Y   int
	Radius int
}

// SourceID identifies a registered VisionSource.
type SourceID uint32

var ErrUnknownSource = errors.New("unknown vision source")

type visionTable struct {
	previous []bool
	current  []bool
}

// VisionModel tracks, per human seat, which tiles were visible last tick and
// which are visible this tick. Seats without a table see the whole grid.
type VisionModel struct {
	board  *core.Board
	seats  *Registry
	tables map[core.SeatID]*visionTable

	sources    map[SourceID]VisionSource
	nextSource SourceID

	logger zerolog.Logger
}

// NewVisionModel allocates tables for the human seats registered so far.
func NewVisionModel(board *core.Board, seats *Registry, logger zerolog.Logger) *VisionModel {
	vm := &VisionModel{
		board:   board,
		seats:   seats,
		tables:  make(map[core.SeatID]*visionTable),
		sources: make(map[SourceID]VisionSource),
		logger:  logger.With().Str("component", "VisionModel").Logger(),
	}
	for _, s := range seats.All() {
		if s.IsHuman() {
			vm.tables[s.ID] = newVisionTable(board.Len())
		}
	}
	return vm
}

func newVisionTable(n int) *visionTable {
	return &visionTable{previous: make([]bool, n), current: make([]bool, n)}
}

// HasTable reports whether id keeps a per-tile table.
func (vm *VisionModel) HasTable(id core.SeatID) bool {
	_, ok := vm.tables[id]
	return ok
}

// BeginTick clears the current buffer of every table.
func (vm *VisionModel) BeginTick() {
	for _, t := range vm.tables {
		clear(t.current)
	}
}

// Grant gives id vision of the tile at idx this tick, and transitively to
// every seat reachable through ally lists. Cycles and one-sided alliances
// are fine; each seat is visited once per call.
func (vm *VisionModel) Grant(id core.SeatID, idx int) {
	if !vm.board.ValidIdx(idx) {
		vm.logger.Error().Int("tile_idx", idx).Int32("seat_id", int32(id)).Msg("Vision granted on invalid tile")
		return
	}
	var visited uint64
	vm.grant(id, idx, &visited)
}

func (vm *VisionModel) grant(id core.SeatID, idx int, visited *uint64) {
	s := vm.seats.Get(id)
	if s == nil {
		vm.logger.Error().Int32("seat_id", int32(id)).Msg("Vision granted to unknown seat")
		return
	}
	bit := uint64(1) << uint(s.Slot())
	if *visited&bit != 0 {
		return
	}
	*visited |= bit

	if t, ok := vm.tables[id]; ok {
		t.current[idx] = true
	}
	for _, ally := range s.Allies {
		vm.grant(ally, idx, visited)
	}
}

// GrantRadius grants vision on every tile within Manhattan distance r of (x, y).
func (vm *VisionModel) GrantRadius(id core.SeatID, x, y, r int) {
	for _, idx := range vm.board.TilesInRadius(x, y, r) {
		vm.Grant(id, idx)
	}
}

// AddSource registers src. It is granted on every tick until removed.
func (vm *VisionModel) AddSource(src VisionSource) (SourceID, error) {
	const op = "add vision source"
	if vm.seats.Get(src.Seat) == nil || src.Seat == RogueSeatID {
		return 0, core.NewError(core.KindRule, op, fmt.Errorf("%w: %d", core.ErrInvalidSeat, src.Seat))
	}
	if !vm.board.InBounds(src.X, src.Y) {
		return 0, core.NewError(core.KindRule, op, fmt.Errorf("%w: (%d,%d)", core.ErrInvalidCoordinates, src.X, src.Y))
	}
	if src.Radius < 0 {
		return 0, core.NewError(core.KindRule, op, fmt.Errorf("negative radius %d", src.Radius))
	}
	vm.nextSource++
	vm.sources[vm.nextSource] = src
	return vm.nextSource, nil
}

// RemoveSource unregisters a source. Its tiles are lost on the next tick
// unless something else still grants them.
func (vm *VisionModel) RemoveSource(id SourceID) error {
	if _, ok := vm.sources[id]; !ok {
		return core.NewError(core.KindRule, "remove vision source", fmt.Errorf("%w: %d", ErrUnknownSource, id))
	}
	delete(vm.sources, id)
	return nil
}

// Sources returns the registered sources.
func (vm *VisionModel) Sources() map[SourceID]VisionSource {
	return maps.Clone(vm.sources)
}

// GrantSources applies every registered source for this tick.
func (vm *VisionModel) GrantSources() {
	for _, src := range vm.sources {
		vm.GrantRadius(src.Seat, src.X, src.Y, src.Radius)
	}
}

// CanSee reports whether id currently sees the tile. Seats without a table see
// everything; unknown seats see nothing.
func (vm *VisionModel) CanSee(id core.SeatID, idx int) bool {
	if vm.seats.Get(id) == nil || !vm.board.ValidIdx(idx) {
		return false
	}
	t, ok := vm.tables[id]
	if !ok {
		return true
	}
	return t.current[idx]
}

// EndTick diffs current against previous for every table, in slot order, then
// rolls current into previous.
func (vm *VisionModel) EndTick() []VisionDiff {
	var diffs []VisionDiff
	for _, s := range vm.seats.All() {
		t, ok := vm.tables[s.ID]
		if !ok {
			continue
		}
		d := VisionDiff{Seat: s.ID}
		for i := range t.current {
			switch {
			case t.current[i] && !t.previous[i]:
				d.Gained = append(d.Gained, i)
			case !t.current[i] && t.previous[i]:
				d.Lost = append(d.Lost, i)
			}
		}
		copy(t.previous, t.current)
		diffs = append(diffs, d)
	}
	return diffs
}

// Forget clears id's previous buffer so everything it sees next tick is
// reported as gained. Used when a client reconnects.
func (vm *VisionModel) Forget(id core.SeatID) {
	if t, ok := vm.tables[id]; ok {
		clear(t.previous)
	}
}

// VisibleTiles returns the tiles id currently sees, or nil for a seat without a table.
func (vm *VisionModel) VisibleTiles(id core.SeatID) []int {
	t, ok := vm.tables[id]
	if !ok {
		return nil
	}
	var out []int
	for i, v := range t.current {
		if v {
			out = append(out, i)
		}
	}
	return out
}
