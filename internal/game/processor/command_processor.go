package processor

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/rules"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

var ErrEditorOnly = errors.New("command only allowed in editor sessions")

// AckHandler receives sync acknowledgements. The sync layer implements it.
type AckHandler interface {
	Ack(seat core.SeatID, sequence uint32) error
}

// Rates are the amounts of work one command applies.
type Rates struct {
	Dig   float64
	Claim float64
}

// Rejection is a command that left state unchanged.
type Rejection struct {
	Command core.Command
	Err     error
}

// OwnerChange records a tile whose owner flipped.
type OwnerChange struct {
	Idx       int
	PrevOwner core.SeatID
	NewOwner  core.SeatID
}

// Result summarizes what one batch of commands changed.
type Result struct {
	Processed       int
	Rejected        []Rejection
	Opened          []int
	Closed          []int
	VisualChanged   map[int]struct{}
	OwnerChanges    []OwnerChange
	ResearchChanged []core.SeatID
}

func newResult() *Result {
	return &Result{VisualChanged: make(map[int]struct{})}
}

// CommandProcessor applies seat commands during a tick
type CommandProcessor struct {
	board      *core.Board
	seats      *seat.Registry
	claims     *rules.ClaimEngine
	acks       AckHandler
	rates      Rates
	editorMode bool
	sessionID  string
	logger     zerolog.Logger
}

// Options configures a CommandProcessor.
type Options struct {
	Board      *core.Board
	Seats      *seat.Registry
	Claims     *rules.ClaimEngine
	Acks       AckHandler
	Rates      Rates
	EditorMode bool
	SessionID  string
}

func NewCommandProcessor(opts Options, logger zerolog.Logger) *CommandProcessor {
	return &CommandProcessor{
		board:      opts.Board,
		seats:      opts.Seats,
		claims:     opts.Claims,
		acks:       opts.Acks,
		rates:      opts.Rates,
		editorMode: opts.EditorMode,
		sessionID:  opts.SessionID,
		logger:     logger.With().Str("component", "CommandProcessor").Logger(),
	}
}

// SetAckHandler wires the sync layer once it exists.
func (cp *CommandProcessor) SetAckHandler(h AckHandler) { cp.acks = h }

// ProcessCommands applies cmds in seat order, keeping each seat's submission
// order. Rejected commands change nothing and are reported both in the result
// and as events on pub. Only context cancellation aborts the batch.
func (cp *CommandProcessor) ProcessCommands(ctx context.Context, cmds []core.Command, pub events.Publisher, tick uint64) (*Result, error) {
	sort.SliceStable(cmds, func(i, j int) bool {
		return cmds[i].GetSeatID() < cmds[j].GetSeatID()
	})

	res := newResult()
	for _, cmd := range cmds {
		select {
		case <-ctx.Done():
			cp.logger.Warn().Err(ctx.Err()).Msg("Command processing interrupted by context cancellation")
			return res, ctx.Err()
		default:
		}

		if err := cp.apply(cmd, res, pub, tick); err != nil {
			wrapped := core.WrapCommandError(cmd, err)
			res.Rejected = append(res.Rejected, Rejection{Command: cmd, Err: wrapped})
			pub.Publish(events.NewCommandRejectedEvent(cp.sessionID, cmd, wrapped, tick))
			cp.logRejection(cmd, wrapped)
			continue
		}
		res.Processed++
		pub.Publish(events.NewCommandProcessedEvent(cp.sessionID, cmd, tick))
	}
	return res, nil
}

func (cp *CommandProcessor) logRejection(cmd core.Command, err error) {
	ev := cp.logger.Debug()
	if core.IsKind(err, core.KindInvariant) || core.IsKind(err, core.KindProtocol) {
		ev = cp.logger.Warn()
	}
	ev.Err(err).
		Int32("seat_id", int32(cmd.GetSeatID())).
		Str("command_type", cmd.GetType().String()).
		Msg("Command rejected")
}

func (cp *CommandProcessor) apply(cmd core.Command, res *Result, pub events.Publisher, tick uint64) error {
	s := cp.seats.Get(cmd.GetSeatID())
	if s == nil {
		return core.NewError(core.KindInvariant, "lookup seat", core.ErrInvalidSeat)
	}
	if err := cmd.Validate(cp.board); err != nil {
		return core.NewError(core.KindProtocol, "validate", err)
	}

	switch c := cmd.(type) {
	case *core.DigCommand:
		idx := c.Target.ToIndex(cp.board.W)
		dr, err := cp.claims.Dig(idx, c.Seat, cp.rates.Dig)
		if err != nil {
			return err
		}
		if dr.Opened {
			res.Opened = append(res.Opened, idx)
		}
		cp.visualChanged(idx, dr.VisualChanged, res, pub, tick)

	case *core.ClaimCommand:
		idx := c.Target.ToIndex(cp.board.W)
		cr, err := cp.claims.Claim(idx, c.Seat, cp.rates.Claim)
		if err != nil {
			return err
		}
		if cr.OwnerChanged() {
			res.OwnerChanges = append(res.OwnerChanges, OwnerChange{Idx: idx, PrevOwner: cr.PrevOwner, NewOwner: cr.NewOwner})
			pub.Publish(events.NewTileClaimedEvent(cp.sessionID, c.Target, cr.PrevOwner, cr.NewOwner, tick))
		}
		cp.visualChanged(idx, cr.VisualChanged, res, pub, tick)

	case *core.ToggleFullnessCommand:
		if !cp.editorMode {
			return core.NewError(core.KindRule, "toggle fullness", ErrEditorOnly)
		}
		idx := c.Target.ToIndex(cp.board.W)
		wasFull := cp.board.T[idx].IsFull()
		changed, err := cp.board.CycleFullness(idx)
		if err != nil {
			return err
		}
		switch isFull := cp.board.T[idx].IsFull(); {
		case wasFull && !isFull:
			res.Opened = append(res.Opened, idx)
		case !wasFull && isFull:
			res.Closed = append(res.Closed, idx)
		}
		cp.visualChanged(idx, changed, res, pub, tick)

	case *core.SetResearchTreeCommand:
		list := make([]research.ResearchType, len(c.Pending))
		for i, v := range c.Pending {
			list[i] = research.ResearchType(v)
		}
		if err := s.Research.SetResearchTree(list); err != nil {
			return err
		}
		res.ResearchChanged = append(res.ResearchChanged, c.Seat)
		pub.Publish(events.NewResearchTreeChangedEvent(cp.sessionID, c.Seat, s.Research.Pending(), tick))

	case *core.AckSyncCommand:
		if cp.acks == nil {
			return core.NewError(core.KindInvariant, "ack sync", errors.New("no sync layer attached"))
		}
		return cp.acks.Ack(c.Seat, c.Sequence)

	default:
		cp.logger.Error().Str("command_type", cmd.GetType().String()).Msg("Unhandled command type")
		return core.NewError(core.KindProtocol, "dispatch", errors.New("unhandled command"))
	}
	return nil
}

func (cp *CommandProcessor) visualChanged(idx int, changed bool, res *Result, pub events.Publisher, tick uint64) {
	if !changed {
		return
	}
	res.VisualChanged[idx] = struct{}{}
	pub.Publish(events.NewTileVisualChangedEvent(cp.sessionID, &cp.board.T[idx], tick))
}
