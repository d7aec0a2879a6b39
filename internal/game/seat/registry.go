package seat

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

var (
	ErrDuplicateSeat = errors.New("seat already registered")
	ErrUnknownAlly   = errors.New("ally is not a registered seat")
	ErrSelfAlly      = errors.New("seat lists itself as ally")
	ErrAsymmetryAlly = errors.New("alliance is not mutual")
)

// Registry is the seat arena. Seats are addressed by id; each gets a stable
// slot used to index per-tile dirty flags.
type Registry struct {
	seats  []*Seat
	byID   map[core.SeatID]*Seat
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byID:   make(map[core.SeatID]*Seat),
		logger: logger.With().Str("component", "SeatRegistry").Logger(),
	}
}

// Add registers s and assigns its slot.
func (r *Registry) Add(s *Seat) error {
	if s == nil || s.ID < 0 {
		return core.NewError(core.KindInvariant, "add seat", core.ErrInvalidSeat)
	}
	if _, dup := r.byID[s.ID]; dup {
		return core.NewError(core.KindInvariant, "add seat", fmt.Errorf("%w: %d", ErrDuplicateSeat, s.ID))
	}
	if len(r.seats) >= core.MaxSeatSlots {
		return core.NewError(core.KindInvariant, "add seat", core.ErrSeatSlotOverflow)
	}
	s.slot = len(r.seats)
	r.seats = append(r.seats, s)
	r.byID[s.ID] = s
	return nil
}

// Get returns the seat with the given id, or nil.
func (r *Registry) Get(id core.SeatID) *Seat { return r.byID[id] }

// Slot returns the dirty-flag slot of id.
func (r *Registry) Slot(id core.SeatID) (int, bool) {
	s := r.byID[id]
	if s == nil {
		return -1, false
	}
	return s.slot, true
}

// All returns the seats in slot order.
func (r *Registry) All() []*Seat { return r.seats }

func (r *Registry) Len() int { return len(r.seats) }

// SortedByID returns the seats ordered by id, the order used when saving a map.
func (r *Registry) SortedByID() []*Seat {
	out := append([]*Seat(nil), r.seats...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TeamOf implements rules.SeatBook.
func (r *Registry) TeamOf(id core.SeatID) (int, bool) {
	s := r.byID[id]
	if s == nil {
		return NoTeam, false
	}
	return s.TeamID, true
}

// CreditGold implements rules.SeatBook.
func (r *Registry) CreditGold(id core.SeatID, amount float64) {
	s := r.byID[id]
	if s == nil {
		r.logger.Error().Int32("seat_id", int32(id)).Msg("Gold credited to unknown seat")
		return
	}
	s.CreditGold(amount)
}

// AdjustClaimedTiles implements rules.SeatBook.
func (r *Registry) AdjustClaimedTiles(id core.SeatID, delta int) {
	s := r.byID[id]
	if s == nil {
		r.logger.Error().Int32("seat_id", int32(id)).Msg("Claimed tile count changed for unknown seat")
		return
	}
	s.ClaimedTiles += delta
	if s.ClaimedTiles < 0 {
		r.logger.Error().Int32("seat_id", int32(id)).Int("claimed", s.ClaimedTiles).Msg("Claimed tile count went negative")
		s.ClaimedTiles = 0
	}
}

// AreAllied reports whether two seats are on the same team.
func (r *Registry) AreAllied(a, b core.SeatID) bool {
	sa, sb := r.byID[a], r.byID[b]
	if sa == nil || sb == nil {
		return false
	}
	return sa.TeamID == sb.TeamID
}

// ComputeAlliances rebuilds every ally list from team membership. Seats
// without a team get no allies.
func (r *Registry) ComputeAlliances() {
	for _, s := range r.seats {
		s.Allies = s.Allies[:0]
		if s.TeamID == NoTeam {
			continue
		}
		for _, other := range r.seats {
			if other == s || other.TeamID != s.TeamID {
				continue
			}
			s.Allies = append(s.Allies, other.ID)
		}
	}
}

// ValidateAlliances reports unknown, self and one-sided ally entries. The
// vision model tolerates all of them; the caller decides whether to reject.
func (r *Registry) ValidateAlliances() error {
	var errs []error
	for _, s := range r.seats {
		for _, id := range s.Allies {
			switch ally := r.byID[id]; {
			case id == s.ID:
				errs = append(errs, fmt.Errorf("seat %d: %w", s.ID, ErrSelfAlly))
			case ally == nil:
				errs = append(errs, fmt.Errorf("seat %d: %w: %d", s.ID, ErrUnknownAlly, id))
			case !ally.IsAlly(s.ID):
				errs = append(errs, fmt.Errorf("seat %d -> %d: %w", s.ID, id, ErrAsymmetryAlly))
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return core.NewError(core.KindInvariant, "validate alliances", errors.Join(errs...))
}
