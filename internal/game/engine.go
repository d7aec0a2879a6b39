package game

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/entity"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/mapgen"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/pathing"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/processor"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/rules"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/states"
	"github.com/mitchelldurbincs/dungeonsync/internal/netsync"
	"github.com/mitchelldurbincs/dungeonsync/internal/save"
)

var (
	ErrInboxFull         = errors.New("command inbox is full")
	ErrSessionNotRunning = errors.New("session is not accepting commands")
	ErrEngineNotRunning  = errors.New("engine loop is not running")
)

// SnapshotSink persists autosaves away from the tick goroutine. Enqueue must
// not block; it reports false when the snapshot was dropped.
type SnapshotSink interface {
	Enqueue(sessionID string, tick uint64, data []byte) bool
}

// TickObserver receives per-tick measurements.
type TickObserver interface {
	ObserveTick(stats TickStats)
}

// GameConfig holds everything needed to build an Engine.
type GameConfig struct {
	SessionID string
	// Level is used as-is when set; otherwise a map is generated from Map.
	Level      *save.Level
	Source     string
	Map        mapgen.MapConfig
	HumanSeats int

	Catalog               *research.Catalog
	Editor                bool
	TickInterval          time.Duration
	VisionRadius          int
	Rates                 processor.Rates
	GoldPerFullness       float64
	ResearchPointsPerTick int32
	ResearchDeliveryTicks uint64
	AutosaveEvery         uint64
	InboxSize             int
	Sync                  netsync.Options

	Bus       events.Bus
	Snapshots SnapshotSink
	Observer  TickObserver
	Logger    zerolog.Logger
}

// Engine runs one session. A single goroutine, the one calling Run (or Step
// in tests), owns the board, seats, vision and research state. Other
// goroutines reach it through Submit and the control channel.
type Engine struct {
	config    GameConfig
	sessionID string
	logger    zerolog.Logger

	board     *core.Board
	seats     *seat.Registry
	vision    *seat.VisionModel
	claims    *rules.ClaimEngine
	conn      *pathing.Connectivity
	artifacts *entity.Artifacts
	processor *processor.CommandProcessor
	syncer    *netsync.Syncer

	researchManager *ResearchManager
	tickProcessor   *TickProcessor
	stateMachine    *states.StateMachine

	queue *events.Queue
	bus   events.Bus

	inbox    chan core.Command
	control  chan func()
	connIDs  map[core.SeatID]string
	stopped  chan struct{}
	stopOnce sync.Once
	ticker   *time.Ticker
	running  atomic.Bool
	tick     atomic.Uint64
}

// Submit queues a command for the next tick. It never blocks.
func (e *Engine) Submit(cmd core.Command) error {
	if !e.stateMachine.CurrentPhase().CanReceiveCommands() {
		return core.NewError(core.KindRule, "submit", fmt.Errorf("%w: %s", ErrSessionNotRunning, e.stateMachine.CurrentPhase()))
	}
	select {
	case e.inbox <- cmd:
		return nil
	default:
		e.logger.Warn().
			Int32("seat_id", int32(cmd.GetSeatID())).
			Str("command", cmd.GetType().String()).
			Msg("Command inbox full, dropping command")
		return core.NewError(core.KindRule, "submit", ErrInboxFull)
	}
}

// Run ticks the session until ctx is cancelled or the session ends. Commands
// and control requests are handled on this goroutine only.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine is already running")
	}
	defer func() {
		e.running.Store(false)
		e.stopOnce.Do(func() { close(e.stopped) })
	}()

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()
	e.ticker = ticker

	e.logger.Info().Dur("tick_interval", e.config.TickInterval).Msg("Tick loop started")
	for {
		select {
		case <-ctx.Done():
			e.finish("context cancelled")
			return nil
		case fn := <-e.control:
			fn()
		case <-ticker.C:
			phase := e.stateMachine.CurrentPhase()
			if phase.IsTerminal() || phase == states.PhaseError {
				e.logger.Info().Str("phase", phase.String()).Msg("Tick loop stopped")
				return nil
			}
			if !phase.Ticks() {
				continue
			}
			if err := e.Step(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					e.finish("context cancelled")
					return nil
				}
				if ferr := e.stateMachine.Fail(err); ferr != nil {
					e.logger.Error().Err(ferr).Msg("Failed to enter error state")
				}
				e.queue.Drain(e.bus)
				return err
			}
		}
	}
}

// Step runs exactly one tick, or only flushes sync state while paused. It
// must only be called by the owning goroutine.
func (e *Engine) Step(ctx context.Context) error {
	cmds := e.drainInbox()
	stats, err := e.tickProcessor.ProcessTick(ctx, cmds)
	if err != nil {
		return err
	}
	if e.config.Observer != nil {
		e.config.Observer.ObserveTick(*stats)
	}
	return nil
}

func (e *Engine) drainInbox() []core.Command {
	var cmds []core.Command
	for {
		select {
		case cmd := <-e.inbox:
			cmds = append(cmds, cmd)
		default:
			return cmds
		}
	}
}

// finish ends the session if it is still live and flushes pending events.
func (e *Engine) finish(reason string) {
	if e.stateMachine.CanTransitionTo(states.PhaseEnded) {
		if err := e.stateMachine.End(reason); err != nil {
			e.logger.Error().Err(err).Msg("Failed to end session")
		}
		e.queue.Publish(events.NewSessionEndedEvent(
			e.sessionID,
			reason,
			e.stateMachine.GetContext().GetElapsedTime(),
			e.tick.Load(),
		))
	}
	e.queue.Drain(e.bus)
}

// do runs fn on the tick goroutine and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	if !e.running.Load() {
		return ErrEngineNotRunning
	}
	done := make(chan struct{})
	select {
	case e.control <- func() { fn(); close(done) }:
	case <-e.stopped:
		return ErrEngineNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect attaches a client sink to a seat. The seat gets a full resync on
// the next tick, which also publishes the connection event.
func (e *Engine) Connect(ctx context.Context, id core.SeatID, sink netsync.Sink, connID string) error {
	var err error
	if derr := e.do(ctx, func() { err = e.connect(id, sink, connID) }); derr != nil {
		return derr
	}
	return err
}

func (e *Engine) connect(id core.SeatID, sink netsync.Sink, connID string) error {
	if err := e.syncer.Connect(id, sink); err != nil {
		return err
	}
	e.connIDs[id] = connID
	e.queue.Publish(events.NewSeatConnectedEvent(e.sessionID, id, connID))
	return nil
}

// Disconnect detaches a seat's client. Queued frames are dropped. A connID
// that no longer owns the seat is ignored, so a stale connection cannot drop
// the one that replaced it. An empty connID always matches.
func (e *Engine) Disconnect(ctx context.Context, id core.SeatID, connID string) error {
	return e.do(ctx, func() { e.disconnect(id, connID) })
}

func (e *Engine) disconnect(id core.SeatID, connID string) {
	if !e.syncer.Connected(id) {
		return
	}
	if connID != "" && e.connIDs[id] != connID {
		return
	}
	delete(e.connIDs, id)
	e.syncer.Disconnect(id)
	e.queue.Publish(events.NewSeatDisconnectedEvent(e.sessionID, id, connID))
}

// SetTickInterval changes the tick period of a running session.
func (e *Engine) SetTickInterval(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", d)
	}
	return e.do(ctx, func() {
		e.config.TickInterval = d
		e.ticker.Reset(d)
		e.logger.Info().Dur("tick_interval", d).Msg("Tick interval changed")
	})
}

// Pause stops ticking without ending the session.
func (e *Engine) Pause(reason string) error {
	return e.stateMachine.TransitionTo(states.PhasePaused, reason)
}

// Resume continues a paused session.
func (e *Engine) Resume(reason string) error {
	return e.stateMachine.TransitionTo(states.PhaseRunning, reason)
}

// Stop ends the session. Run returns on its next tick.
func (e *Engine) Stop(ctx context.Context, reason string) error {
	if err := e.do(ctx, func() { e.finish(reason) }); err != nil {
		if errors.Is(err, ErrEngineNotRunning) {
			e.finish(reason)
			return nil
		}
		return err
	}
	return nil
}

// Seats returns a summary of every seat, read on the tick goroutine. Without
// a Run loop the caller is the owning goroutine and reads directly.
func (e *Engine) Seats(ctx context.Context) ([]SeatSummary, error) {
	var out []SeatSummary
	err := e.do(ctx, func() { out = e.summarizeSeats() })
	if errors.Is(err, ErrEngineNotRunning) {
		return e.summarizeSeats(), nil
	}
	return out, err
}

// Tile returns a snapshot of one tile, read on the tick goroutine.
func (e *Engine) Tile(ctx context.Context, x, y int) (core.Snapshot, error) {
	var (
		snap core.Snapshot
		err  error
	)
	derr := e.do(ctx, func() {
		t := e.board.GetTile(x, y)
		if t == nil {
			err = core.NewError(core.KindProtocol, "tile", fmt.Errorf("%w: %s", core.ErrInvalidCoordinates, core.TileName(x, y)))
			return
		}
		snap = t.Snapshot()
	})
	if derr != nil {
		return core.Snapshot{}, derr
	}
	return snap, err
}

// WriteLevel serializes the current state to w. The text is produced on the
// tick goroutine; writing to w happens on the caller's.
func (e *Engine) WriteLevel(ctx context.Context, w io.Writer, compress bool) error {
	var (
		buf bytes.Buffer
		err error
	)
	if derr := e.do(ctx, func() { err = e.encodeLevel(&buf, compress) }); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// SaveFile writes the current state to path. It works on a running engine
// and after Run has returned.
func (e *Engine) SaveFile(ctx context.Context, path string, compress bool) error {
	write := func() error { return save.SaveFile(path, e.level(), compress) }
	var err error
	if derr := e.do(ctx, func() { err = write() }); derr != nil {
		if errors.Is(derr, ErrEngineNotRunning) {
			return write()
		}
		return derr
	}
	return err
}

func (e *Engine) level() *save.Level {
	return &save.Level{
		Tick:      e.tick.Load(),
		Board:     e.board,
		Seats:     e.seats.SortedByID(),
		Artifacts: e.artifacts.All(),
	}
}

func (e *Engine) encodeLevel(w io.Writer, compress bool) error {
	if compress {
		return save.WriteCompressed(w, e.level())
	}
	return save.Encode(w, e.level())
}

// Public accessors safe from any goroutine
func (e *Engine) SessionID() string          { return e.sessionID }
func (e *Engine) CurrentTick() uint64        { return e.tick.Load() }
func (e *Engine) Phase() states.SessionPhase { return e.stateMachine.CurrentPhase() }
func (e *Engine) Bus() events.Bus            { return e.bus }
func (e *Engine) Width() int                 { return e.board.W }
func (e *Engine) Height() int                { return e.board.H }

// StateHistory returns the session's phase transitions.
func (e *Engine) StateHistory() []states.Transition { return e.stateMachine.GetHistory() }
