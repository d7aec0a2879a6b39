package research

import (
	"errors"
	"fmt"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

var (
	ErrUnknownResearch    = errors.New("unknown research")
	ErrResearchNotAllowed = errors.New("research not allowed")
	ErrPrerequisitesUnmet = errors.New("research prerequisites unmet")
	ErrResearchConflict   = errors.New("research already in another set")
	ErrDuplicateResearch  = errors.New("research listed twice")
)

// InFlightChecker reports whether a fulfillment artifact for rt is already
// being delivered for the tree's seat.
type InFlightChecker func(rt ResearchType) bool

// Tree is one seat's research state. done, pending and notAllowed are
// pairwise disjoint; every mutator either keeps them so or fails unchanged.
type Tree struct {
	catalog  *Catalog
	inFlight InFlightChecker

	done       []ResearchType
	pending    []ResearchType
	notAllowed []ResearchType

	current *Research
	points  int32
}

// NewTree creates an empty tree. inFlight may be nil.
func NewTree(catalog *Catalog, inFlight InFlightChecker) *Tree {
	if inFlight == nil {
		inFlight = func(ResearchType) bool { return false }
	}
	return &Tree{catalog: catalog, inFlight: inFlight}
}

// SetInFlightChecker replaces the artifact lookup used when picking the next
// research and re-checks the current pick against it.
func (t *Tree) SetInFlightChecker(inFlight InFlightChecker) {
	if inFlight != nil {
		t.inFlight = inFlight
	}
	t.Reselect()
}

// Reselect drops the current research if its artifact is already in flight
// and picks the next eligible pending item. A still-valid current research
// keeps its accumulated points.
func (t *Tree) Reselect() {
	if t.current != nil && !t.inFlight(t.current.Type) && t.IsPending(t.current.Type) {
		return
	}
	t.points = 0
	t.setNextResearch(NullResearchType)
}

func (t *Tree) Done() []ResearchType       { return append([]ResearchType(nil), t.done...) }
func (t *Tree) Pending() []ResearchType    { return append([]ResearchType(nil), t.pending...) }
func (t *Tree) NotAllowed() []ResearchType { return append([]ResearchType(nil), t.notAllowed...) }
func (t *Tree) Current() *Research         { return t.current }
func (t *Tree) Points() int32              { return t.points }

func (t *Tree) IsDone(rt ResearchType) bool       { return contains(t.done, rt) }
func (t *Tree) IsPending(rt ResearchType) bool    { return contains(t.pending, rt) }
func (t *Tree) IsNotAllowed(rt ResearchType) bool { return contains(t.notAllowed, rt) }

func ruleError(op string, err error) error {
	return core.NewError(core.KindRule, op, err)
}

// SetResearchTree replaces the pending list. Each item must be known, allowed,
// not done and have its prerequisites met by done plus the earlier items of
// the list. Any failure leaves the tree unchanged.
func (t *Tree) SetResearchTree(list []ResearchType) error {
	doneSoFar := append([]ResearchType(nil), t.done...)
	seen := make(map[ResearchType]bool, len(list))
	for _, rt := range list {
		if t.IsNotAllowed(rt) {
			return ruleError("set research tree", fmt.Errorf("%w: %s", ErrResearchNotAllowed, rt))
		}
		r := t.catalog.Get(rt)
		if r == nil {
			return ruleError("set research tree", fmt.Errorf("%w: %s", ErrUnknownResearch, rt))
		}
		if t.IsDone(rt) {
			return ruleError("set research tree", fmt.Errorf("%w: %s is done", ErrResearchConflict, rt))
		}
		if seen[rt] {
			return ruleError("set research tree", fmt.Errorf("%w: %s", ErrDuplicateResearch, rt))
		}
		if !r.CanBeResearched(doneSoFar) {
			return ruleError("set research tree", fmt.Errorf("%w: %s", ErrPrerequisitesUnmet, rt))
		}
		seen[rt] = true
		doneSoFar = append(doneSoFar, rt)
	}

	t.pending = append([]ResearchType(nil), list...)
	t.setNextResearch(NullResearchType)
	return nil
}

// SetResearchesDone replaces the done set and drops those items from pending.
func (t *Tree) SetResearchesDone(list []ResearchType) error {
	seen := make(map[ResearchType]bool, len(list))
	for _, rt := range list {
		if !rt.Valid() {
			return ruleError("set researches done", fmt.Errorf("%w: %s", ErrUnknownResearch, rt))
		}
		if t.IsNotAllowed(rt) {
			return ruleError("set researches done", fmt.Errorf("%w: %s", ErrResearchNotAllowed, rt))
		}
		if seen[rt] {
			return ruleError("set researches done", fmt.Errorf("%w: %s", ErrDuplicateResearch, rt))
		}
		seen[rt] = true
	}

	t.done = append([]ResearchType(nil), list...)
	pending := t.pending[:0:0]
	for _, rt := range t.pending {
		if !seen[rt] {
			pending = append(pending, rt)
		}
	}
	t.pending = pending
	if t.current != nil && seen[t.current.Type] {
		t.setNextResearch(NullResearchType)
	}
	return nil
}

// AddResearch marks rt done. It returns false if rt was already done.
func (t *Tree) AddResearch(rt ResearchType) (bool, error) {
	if t.IsDone(rt) {
		return false, nil
	}
	if err := t.SetResearchesDone(append(t.Done(), rt)); err != nil {
		return false, err
	}
	return true, nil
}

// SetNotAllowed replaces the not-allowed set. Items already done or pending are rejected.
func (t *Tree) SetNotAllowed(list []ResearchType) error {
	seen := make(map[ResearchType]bool, len(list))
	for _, rt := range list {
		if !rt.Valid() {
			return ruleError("set not allowed", fmt.Errorf("%w: %s", ErrUnknownResearch, rt))
		}
		if t.IsDone(rt) || t.IsPending(rt) {
			return ruleError("set not allowed", fmt.Errorf("%w: %s", ErrResearchConflict, rt))
		}
		if seen[rt] {
			return ruleError("set not allowed", fmt.Errorf("%w: %s", ErrDuplicateResearch, rt))
		}
		seen[rt] = true
	}
	t.notAllowed = append([]ResearchType(nil), list...)
	return nil
}

// Restore loads the three sets as read from a save, in file order. Duplicates
// and items conflicting with an earlier set are skipped and returned.
func (t *Tree) Restore(done, notAllowed, pending []ResearchType) (skipped []ResearchType) {
	t.done, t.notAllowed, t.pending = nil, nil, nil
	for _, rt := range done {
		if t.IsDone(rt) {
			skipped = append(skipped, rt)
			continue
		}
		t.done = append(t.done, rt)
	}
	for _, rt := range notAllowed {
		if t.IsDone(rt) || t.IsNotAllowed(rt) {
			skipped = append(skipped, rt)
			continue
		}
		t.notAllowed = append(t.notAllowed, rt)
	}
	for _, rt := range pending {
		if t.IsDone(rt) || t.IsNotAllowed(rt) || t.IsPending(rt) {
			skipped = append(skipped, rt)
			continue
		}
		t.pending = append(t.pending, rt)
	}
	t.points = 0
	t.setNextResearch(NullResearchType)
	return skipped
}

// AddResearchPoints accumulates points toward the current research. When the
// threshold is reached the completed descriptor is returned, the surplus is
// carried over and the next pending research without an artifact in flight
// becomes current. The caller spawns the fulfillment artifact.
func (t *Tree) AddResearchPoints(n int32) *Research {
	if t.current == nil {
		return nil
	}
	t.points += n
	if t.points < t.current.NeededPoints {
		return nil
	}
	completed := t.current
	t.points -= completed.NeededPoints
	t.setNextResearch(completed.Type)
	return completed
}

func (t *Tree) setNextResearch(completed ResearchType) {
	t.current = nil
	for _, rt := range t.pending {
		if rt == completed || t.inFlight(rt) {
			continue
		}
		if r := t.catalog.Get(rt); r != nil {
			t.current = r
			return
		}
	}
}

// IsRoomAvailable reports whether the seat may build rooms of type rt.
func (t *Tree) IsRoomAvailable(rt RoomType) bool {
	r, ok := roomResearch[rt]
	return ok && t.IsDone(r)
}

// IsTrapAvailable reports whether the seat may build traps of type tt.
func (t *Tree) IsTrapAvailable(tt TrapType) bool {
	r, ok := trapResearch[tt]
	return ok && t.IsDone(r)
}

// IsSpellAvailable reports whether the seat may cast spells of type st.
func (t *Tree) IsSpellAvailable(st SpellType) bool {
	r, ok := spellResearch[st]
	return ok && t.IsDone(r)
}
