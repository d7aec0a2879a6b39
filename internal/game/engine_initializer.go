package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// EngineInitializer handles the complex initialization of a game engine
type EngineInitializer struct {
	config GameConfig
	logger zerolog.Logger
}

// NewEngine builds a running session from cfg.
func NewEngine(ctx context.Context, cfg GameConfig) (*Engine, error) {
	return NewEngineInitializer(cfg).Initialize(ctx)
}

// NewEngineInitializer creates a new engine initializer
func NewEngineInitializer(cfg GameConfig) *EngineInitializer {
	return &EngineInitializer{
		config: cfg,
		logger: cfg.Logger.With().Str("component", "GameEngine").Logger(),
	}
}

// Initialize loads the level, registers seats, wires every subsystem and
// moves the session to running.
func (ei *EngineInitializer) Initialize(ctx context.Context) (*Engine, error) {
	select {
	case <-ctx.Done():
		ei.logger.Error().Err(ctx.Err()).Msg("Engine creation cancelled or timed out during initial phase")
		return nil, ctx.Err()
	default:
	}

	ei.setupDefaults()
	ei.logger = ei.logger.With().Str("session_id", ei.config.SessionID).Logger()

	sessionCtx := states.NewSessionContext(ei.config.SessionID, ei.logger)
	sessionCtx.Source = ei.config.Source
	stateMachine := states.NewStateMachine(sessionCtx, ei.config.Bus)
	if err := stateMachine.TransitionTo(states.PhaseLoading, "Loading level"); err != nil {
		return nil, fmt.Errorf("state machine initialization failed: %w", err)
	}

	lvl, err := ei.loadLevel()
	if err != nil {
		ei.fail(stateMachine, err)
		return nil, fmt.Errorf("level load failed: %w", err)
	}

	engine, err := ei.createEngine(lvl, stateMachine)
	if err != nil {
		ei.fail(stateMachine, err)
		return nil, err
	}

	sessionCtx.SeatCount = engine.seats.Len() - 1
	for _, s := range engine.seats.All() {
		if s.IsHuman() {
			sessionCtx.HumanSeats++
		}
	}

	// Fill vision and connectivity before any client can connect.
	engine.conn.Recompute()
	engine.updateVision(engine.tick.Load())
	engine.queue.Discard()

	sessionCtx.StartTime = time.Now()
	if err := stateMachine.TransitionTo(states.PhaseRunning, "Level loaded"); err != nil {
		ei.fail(stateMachine, err)
		return nil, fmt.Errorf("state machine initialization failed: %w", err)
	}

	engine.bus.Publish(events.NewSessionStartedEvent(
		engine.sessionID,
		sessionCtx.SeatCount,
		engine.board.W,
		engine.board.H,
	))

	ei.logger.Info().
		Int("width", engine.board.W).
		Int("height", engine.board.H).
		Int("seats", sessionCtx.SeatCount).
		Int("human_seats", sessionCtx.HumanSeats).
		Uint64("tick", engine.tick.Load()).
		Str("source", ei.config.Source).
		Msg("Engine created successfully")

	return engine, nil
}

func (ei *EngineInitializer) fail(sm *states.StateMachine, err error) {
	if ferr := sm.Fail(err); ferr != nil {
		ei.logger.Error().Err(ferr).Msg("Failed to enter error state")
	}
}

// setupDefaults sets up default values for missing configuration
func (ei *EngineInitializer) setupDefaults() {
	c := &ei.config
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.Catalog == nil {
		c.Catalog = research.DefaultCatalog()
	}
	if c.Bus == nil {
		ei.logger.Debug().Msg("No event bus provided, creating a private one")
		c.Bus = events.NewEventBus(ei.logger)
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.VisionRadius <= 0 {
		c.VisionRadius = DefaultVisionRadius
	}
	if c.Rates.Dig <= 0 {
		c.Rates.Dig = DefaultDigRate
	}
	if c.Rates.Claim <= 0 {
		c.Rates.Claim = DefaultClaimRate
	}
	if c.GoldPerFullness <= 0 {
		c.GoldPerFullness = DefaultGoldPerFullness
	}
	if c.ResearchPointsPerTick <= 0 {
		c.ResearchPointsPerTick = DefaultResearchPointsPerTick
	}
	if c.ResearchDeliveryTicks == 0 {
		c.ResearchDeliveryTicks = DefaultResearchDeliveryTicks
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	if c.Sync.MaxInFlight == 0 {
		c.Sync.MaxInFlight = DefaultMaxInFlight
	}
	if c.Sync.CompressThreshold == 0 {
		c.Sync.CompressThreshold = DefaultCompressThreshold
	}
	c.Sync.SessionID = c.SessionID
	c.Sync.Editor = c.Editor
	if c.Level == nil && c.Map.Width == 0 {
		c.Map = mapgen.DefaultMapConfig(DefaultMapWidth, DefaultMapHeight, DefaultSeats, time.Now().UnixNano())
	}
	if c.Source == "" {
		if c.Level != nil {
			c.Source = "level"
		} else {
			c.Source = fmt.Sprintf("generated:%d", c.Map.Seed)
		}
	}
}

// loadLevel returns the configured level or generates one. Generated seats
// are human up to HumanSeats and AI after that, each on its own team.
func (ei *EngineInitializer) loadLevel() (*save.Level, error) {
	if ei.config.Level != nil {
		return ei.config.Level, nil
	}
	board, placements, err := mapgen.NewGenerator(ei.config.Map).GenerateMap()
	if err != nil {
		return nil, fmt.Errorf("map generation failed: %w", err)
	}
	lvl := &save.Level{Board: board}
	for i, p := range placements {
		s := seat.New(p.Seat, ei.config.Catalog)
		s.PlayerType = seat.PlayerAI
		if i < ei.config.HumanSeats {
			s.PlayerType = seat.PlayerHuman
		}
		s.StartX, s.StartY = p.X, p.Y
		s.AvailableTeamIDs = []int{int(p.Seat)}
		s.ColorID = fmt.Sprintf("color%d", p.Seat)
		s.ClaimedTiles = countOwned(board, p.Seat)
		lvl.Seats = append(lvl.Seats, s)
	}
	return lvl, nil
}

func countOwned(b *core.Board, id core.SeatID) int {
	n := 0
	for i := range b.T {
		if b.T[i].IsClaimed() && b.T[i].Owner() == id {
			n++
		}
	}
	return n
}

// createEngine registers seats and builds every subsystem around the board.
func (ei *EngineInitializer) createEngine(lvl *save.Level, sm *states.StateMachine) (*Engine, error) {
	cfg := ei.config
	logger := ei.logger

	seats := seat.NewRegistry(logger)
	if err := seats.Add(seat.NewRogue(cfg.Catalog)); err != nil {
		return nil, err
	}
	artifacts := entity.NewArtifacts(cfg.ResearchDeliveryTicks)
	for _, s := range lvl.Seats {
		if s.TeamID == seat.NoTeam && len(s.AvailableTeamIDs) > 0 {
			if err := s.SetTeamID(s.AvailableTeamIDs[0]); err != nil {
				return nil, err
			}
		}
		s.Research.SetInFlightChecker(artifacts.Checker(s.ID))
		if err := seats.Add(s); err != nil {
			return nil, fmt.Errorf("register seat %d: %w", s.ID, err)
		}
	}
	seats.ComputeAlliances()
	if err := seats.ValidateAlliances(); err != nil {
		logger.Warn().Err(err).Msg("Alliance table is inconsistent")
	}
	for _, art := range lvl.Artifacts {
		if seats.Get(art.Seat) == nil {
			return nil, core.NewError(core.KindFormat, "restore artifact",
				fmt.Errorf("%w: artifact %s belongs to seat %d", save.ErrUnknownSeat, art.ID, art.Seat))
		}
		artifacts.Restore(art)
	}
	// Restored artifacts may cover a research the loader picked as current.
	for _, s := range lvl.Seats {
		s.Research.Reselect()
	}

	board := lvl.Board
	vision := seat.NewVisionModel(board, seats, logger)
	syncer, err := netsync.NewSyncer(board, seats, vision, cfg.Sync, logger)
	if err != nil {
		return nil, fmt.Errorf("sync setup failed: %w", err)
	}
	claims := rules.NewClaimEngine(board, seats, cfg.GoldPerFullness, logger)

	engine := &Engine{
		config:       cfg,
		sessionID:    cfg.SessionID,
		logger:       logger,
		board:        board,
		seats:        seats,
		vision:       vision,
		claims:       claims,
		conn:         pathing.NewConnectivity(board, logger),
		artifacts:    artifacts,
		syncer:       syncer,
		stateMachine: sm,
		queue:        events.NewQueue(),
		bus:          cfg.Bus,
		inbox:        make(chan core.Command, cfg.InboxSize),
		control:      make(chan func()),
		connIDs:      make(map[core.SeatID]string),
		stopped:      make(chan struct{}),
	}
	engine.processor = processor.NewCommandProcessor(processor.Options{
		Board:      board,
		Seats:      seats,
		Claims:     claims,
		Acks:       syncer,
		Rates:      cfg.Rates,
		EditorMode: cfg.Editor,
		SessionID:  cfg.SessionID,
	}, logger)
	engine.researchManager = NewResearchManager(seats, artifacts, cfg.ResearchPointsPerTick, cfg.SessionID, logger)
	engine.tickProcessor = NewTickProcessor(engine)
	engine.tick.Store(lvl.Tick)
	return engine, nil
}
