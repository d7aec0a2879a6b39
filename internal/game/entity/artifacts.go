package entity

import (
	"sort"

	"github.com/google/uuid"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
)

// Artifacts tracks research artifacts in flight. Owned by the tick goroutine.
type Artifacts struct {
	byID          map[uuid.UUID]*ResearchArtifact
	deliveryTicks uint64
}

// NewArtifacts creates a tracker whose artifacts arrive deliveryTicks after spawning.
func NewArtifacts(deliveryTicks uint64) *Artifacts {
	return &Artifacts{byID: make(map[uuid.UUID]*ResearchArtifact), deliveryTicks: deliveryTicks}
}

// Spawn creates the artifact for a research a seat just completed.
func (a *Artifacts) Spawn(seat core.SeatID, rt research.ResearchType, origin core.Coordinate, tick uint64) *ResearchArtifact {
	art := &ResearchArtifact{
		ID:          uuid.New(),
		Seat:        seat,
		Research:    rt,
		Origin:      origin,
		SpawnTick:   tick,
		DeliverTick: tick + a.deliveryTicks,
	}
	a.byID[art.ID] = art
	return art
}

// InFlight reports whether an artifact for rt is already travelling to seat.
func (a *Artifacts) InFlight(seat core.SeatID, rt research.ResearchType) bool {
	for _, art := range a.byID {
		if art.Seat == seat && art.Research == rt {
			return true
		}
	}
	return false
}

// Checker returns a research.InFlightChecker bound to seat.
func (a *Artifacts) Checker(seat core.SeatID) research.InFlightChecker {
	return func(rt research.ResearchType) bool { return a.InFlight(seat, rt) }
}

// Due removes and returns the artifacts whose delivery tick has been reached,
// ordered by delivery tick then seat so delivery is deterministic.
func (a *Artifacts) Due(tick uint64) []*ResearchArtifact {
	var due []*ResearchArtifact
	for id, art := range a.byID {
		if art.DeliverTick <= tick {
			due = append(due, art)
			delete(a.byID, id)
		}
	}
	sortArtifacts(due)
	return due
}

// All returns every artifact in flight in delivery order.
func (a *Artifacts) All() []*ResearchArtifact {
	out := make([]*ResearchArtifact, 0, len(a.byID))
	for _, art := range a.byID {
		out = append(out, art)
	}
	sortArtifacts(out)
	return out
}

func (a *Artifacts) Len() int { return len(a.byID) }

// Restore re-adds an artifact read from a snapshot.
func (a *Artifacts) Restore(art *ResearchArtifact) {
	a.byID[art.ID] = art
}

func sortArtifacts(arts []*ResearchArtifact) {
	sort.Slice(arts, func(i, j int) bool {
		if arts[i].DeliverTick != arts[j].DeliverTick {
			return arts[i].DeliverTick < arts[j].DeliverTick
		}
		if arts[i].Seat != arts[j].Seat {
			return arts[i].Seat < arts[j].Seat
		}
		return arts[i].Research < arts[j].Research
	})
}
