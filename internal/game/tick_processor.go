package game

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/processor"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/states"
	"github.com/mitchelldurbincs/dungeonsync/internal/netsync"
)

// TickProcessor handles the orchestration of a single tick
type TickProcessor struct {
	engine *Engine
	logger zerolog.Logger
}

// NewTickProcessor creates a new tick processor
func NewTickProcessor(engine *Engine) *TickProcessor {
	return &TickProcessor{
		engine: engine,
		logger: engine.logger,
	}
}

// ProcessTick executes a complete tick: commands, connectivity, vision,
// research, sync and autosave, then hands the tick's notifications to the bus.
func (tp *TickProcessor) ProcessTick(ctx context.Context, cmds []core.Command) (*TickStats, error) {
	e := tp.engine

	// Check context at start
	if err := tp.checkContext(ctx, "before starting"); err != nil {
		return nil, err
	}

	if err := tp.validateSessionState(); err != nil {
		return nil, err
	}
	if e.stateMachine.CurrentPhase() == states.PhasePaused {
		return tp.flushPaused(), nil
	}

	tick := e.tick.Load() + 1
	tickLogger := tp.logger.With().Uint64("tick", tick).Logger()
	tickLogger.Debug().Int("num_commands_submitted", len(cmds)).Msg("Starting tick")

	start := time.Now()
	stats := &TickStats{Tick: tick, Commands: len(cmds)}

	res, err := tp.processCommandsPhase(ctx, cmds, tick, tickLogger)
	if err != nil {
		return nil, err
	}
	stats.Rejected = len(res.Rejected)
	stats.TilesChanged = len(res.VisualChanged)

	tp.processConnectivityPhase(res)

	if err := tp.checkContext(ctx, "before vision"); err != nil {
		return nil, core.WrapTickError(tick, "vision phase", fmt.Errorf("context cancelled: %w", err))
	}
	diffs := e.updateVision(tick)

	for _, id := range e.researchManager.ProcessResearch(tick, e.queue) {
		e.syncer.MarkResearchChanged(id)
	}

	tp.processSyncPhase(diffs, stats, tickLogger)

	e.tick.Store(tick)
	tp.autosave(tick, tickLogger)

	stats.Duration = time.Since(start)
	e.queue.Publish(events.NewTickCompletedEvent(
		e.sessionID,
		tick,
		stats.Commands,
		stats.Rejected,
		stats.TilesChanged,
		stats.Duration,
	))
	e.queue.Drain(e.bus)

	tickLogger.Debug().
		Int("rejected", stats.Rejected).
		Int("frames_sent", stats.FramesSent).
		Dur("duration", stats.Duration).
		Msg("Tick finished")
	return stats, nil
}

// checkContext checks if the context is cancelled
func (tp *TickProcessor) checkContext(ctx context.Context, phase string) error {
	select {
	case <-ctx.Done():
		tp.logger.Warn().
			Err(ctx.Err()).
			Uint64("tick", tp.engine.tick.Load()).
			Str("phase", phase).
			Msg("Tick cancelled or timed out")
		return ctx.Err()
	default:
		return nil
	}
}

// validateSessionState ensures the session is ticking
func (tp *TickProcessor) validateSessionState() error {
	currentPhase := tp.engine.stateMachine.CurrentPhase()
	if !currentPhase.Ticks() {
		tp.logger.Warn().
			Str("current_phase", currentPhase.String()).
			Uint64("tick", tp.engine.tick.Load()).
			Msg("Attempted to tick session in a phase that does not tick")
		if currentPhase.IsTerminal() {
			return core.WrapTickError(tp.engine.tick.Load(), "step", core.ErrSessionEnded)
		}
		return fmt.Errorf("session is in %s phase and cannot tick", currentPhase)
	}
	return nil
}

// flushPaused keeps clients in sync while simulation time is stopped. Seats
// that connect during a pause get their resync; the tick counter stays put.
func (tp *TickProcessor) flushPaused() *TickStats {
	e := tp.engine
	tick := e.tick.Load()
	stats := &TickStats{Tick: tick}
	tp.processSyncPhase(e.updateVision(tick), stats, tp.logger.With().Uint64("tick", tick).Bool("paused", true).Logger())
	e.queue.Drain(e.bus)
	return stats
}

// processCommandsPhase applies the submitted commands and forwards
// rejections and research changes to the sync layer.
func (tp *TickProcessor) processCommandsPhase(ctx context.Context, cmds []core.Command, tick uint64, tickLogger zerolog.Logger) (*processor.Result, error) {
	e := tp.engine
	res, err := e.processor.ProcessCommands(ctx, cmds, e.queue, tick)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, core.WrapTickError(tick, "command processing", fmt.Errorf("context cancelled: %w", err))
		}
		return nil, core.WrapTickError(tick, "command processing", err)
	}

	for _, rej := range res.Rejected {
		kind, ok := core.KindOf(rej.Err)
		if !ok {
			kind = core.KindInvariant
		}
		if kind == core.KindProtocol {
			tp.evict(rej.Command.GetSeatID(), rej.Err, tickLogger)
			continue
		}
		e.syncer.Reject(rej.Command.GetSeatID(), netsync.Rejection{
			Command: rej.Command.GetType(),
			Kind:    kind,
			Reason:  rej.Err.Error(),
		})
	}
	for _, id := range res.ResearchChanged {
		e.syncer.MarkResearchChanged(id)
	}

	tickLogger.Debug().
		Int("processed", res.Processed).
		Int("rejected", len(res.Rejected)).
		Msg("Finished processing commands")
	return res, nil
}

// evict drops a seat whose client broke the protocol. Its sink is closed with
// a policy violation so the client sees why.
func (tp *TickProcessor) evict(id core.SeatID, cause error, tickLogger zerolog.Logger) {
	e := tp.engine
	if !e.syncer.Evict(id, cause.Error()) {
		return
	}
	connID := e.connIDs[id]
	delete(e.connIDs, id)
	e.queue.Publish(events.NewSeatDisconnectedEvent(e.sessionID, id, connID))
	tickLogger.Warn().Err(cause).Int32("seat_id", int32(id)).Msg("Seat evicted")
}

// processConnectivityPhase keeps flood fill colors in step with tiles that
// were opened or closed this tick. Openings merge regions incrementally; any
// closing forces one recompute.
func (tp *TickProcessor) processConnectivityPhase(res *processor.Result) {
	e := tp.engine
	for _, idx := range res.Opened {
		e.conn.TileOpened(idx)
	}
	if len(res.Closed) > 0 {
		e.conn.TileClosed(res.Closed[0])
	}
}

// processSyncPhase queues per-seat frames and hands them to the sinks.
func (tp *TickProcessor) processSyncPhase(diffs []seat.VisionDiff, stats *TickStats, tickLogger zerolog.Logger) {
	e := tp.engine
	st := e.syncer.Collect(diffs)
	stats.FramesSent = st.Frames
	stats.TilesSent = st.TilesSent
	stats.DeferredSeats = st.DeferredSeats

	for _, id := range e.syncer.Deliver() {
		stats.DroppedSeats++
		connID := e.connIDs[id]
		delete(e.connIDs, id)
		e.queue.Publish(events.NewSeatDisconnectedEvent(e.sessionID, id, connID))
		tickLogger.Warn().Int32("seat_id", int32(id)).Msg("Seat dropped during delivery")
	}
}

// autosave serializes the session and hands the bytes to the snapshot sink.
// Persisting happens on the sink's goroutine.
func (tp *TickProcessor) autosave(tick uint64, tickLogger zerolog.Logger) {
	e := tp.engine
	every := e.config.AutosaveEvery
	if e.config.Snapshots == nil || every == 0 || tick%every != 0 {
		return
	}
	var buf bytes.Buffer
	if err := e.encodeLevel(&buf, true); err != nil {
		tickLogger.Error().Err(err).Msg("Failed to encode autosave")
		return
	}
	if !e.config.Snapshots.Enqueue(e.sessionID, tick, buf.Bytes()) {
		tickLogger.Warn().Int("bytes", buf.Len()).Msg("Autosave dropped, snapshot writer is busy")
		return
	}
	tickLogger.Debug().Int("bytes", buf.Len()).Msg("Autosave queued")
}
