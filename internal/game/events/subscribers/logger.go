package subscribers

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
)

// LoggerSubscriber logs events to structured logs
type LoggerSubscriber struct {
	id              string
	logger          zerolog.Logger
	logLevel        zerolog.Level
	eventTypeFilter map[string]bool // If non-nil, only log these event types
	devMode         bool            // If true, log full event details
}

// NewLoggerSubscriber creates a new logger subscriber
func NewLoggerSubscriber(id string, logger zerolog.Logger, logLevel zerolog.Level) *LoggerSubscriber {
	return &LoggerSubscriber{
		id:       id,
		logger:   logger.With().Str("subscriber", "event_logger").Logger(),
		logLevel: logLevel,
	}
}

func (ls *LoggerSubscriber) ID() string {
	return ls.id
}

// SetEventFilter sets which event types to log (nil means log all)
func (ls *LoggerSubscriber) SetEventFilter(eventTypes []string) {
	if len(eventTypes) == 0 {
		ls.eventTypeFilter = nil
		return
	}

	ls.eventTypeFilter = make(map[string]bool)
	for _, eventType := range eventTypes {
		ls.eventTypeFilter[eventType] = true
	}
}

// SetDevMode enables or disables development mode logging
func (ls *LoggerSubscriber) SetDevMode(enabled bool) {
	ls.devMode = enabled
}

func (ls *LoggerSubscriber) InterestedIn(eventType string) bool {
	if ls.eventTypeFilter == nil {
		return true
	}
	return ls.eventTypeFilter[eventType]
}

// HandleEvent processes an event by logging it
func (ls *LoggerSubscriber) HandleEvent(event events.Event) {
	eventLogger := ls.logger.With().
		Str("event_type", event.Type()).
		Str("session_id", event.SessionID()).
		Time("timestamp", event.Timestamp()).
		Logger()

	var logEvent *zerolog.Event
	switch ls.logLevel {
	case zerolog.DebugLevel:
		logEvent = eventLogger.Debug()
	case zerolog.WarnLevel:
		logEvent = eventLogger.Warn()
	case zerolog.ErrorLevel:
		logEvent = eventLogger.Error()
	default:
		logEvent = eventLogger.Info()
	}

	switch e := event.(type) {
	case *events.SessionStartedEvent:
		logEvent.
			Int("num_seats", e.NumSeats).
			Int("map_width", e.MapWidth).
			Int("map_height", e.MapHeight)

	case *events.SessionEndedEvent:
		logEvent.
			Str("reason", e.Reason).
			Dur("duration", e.Duration).
			Uint64("final_tick", e.FinalTick)

	case *events.TickCompletedEvent:
		logEvent.
			Uint64("tick", e.Tick).
			Int("commands", e.Commands).
			Int("rejected", e.Rejected).
			Int("tiles_changed", e.TilesChanged).
			Dur("process_time", e.ProcessedTime)

	case *events.CommandProcessedEvent:
		logEvent.
			Int32("seat_id", int32(e.SeatID)).
			Str("command_type", e.Command.GetType().String())

	case *events.CommandRejectedEvent:
		logEvent.
			Int32("seat_id", int32(e.SeatID)).
			Str("command_type", e.Command.GetType().String()).
			Str("kind", e.Kind).
			Str("reason", e.Reason)

	case *events.TileVisualChangedEvent:
		logEvent.
			Int("x", e.Tile.X).
			Int("y", e.Tile.Y).
			Stringer("tile_type", e.TileType).
			Stringer("visual", e.Visual).
			Int32("owner", int32(e.Owner))

	case *events.TileClaimedEvent:
		logEvent.
			Int("x", e.Tile.X).
			Int("y", e.Tile.Y).
			Int32("prev_owner", int32(e.PrevOwner)).
			Int32("new_owner", int32(e.NewOwner))

	case *events.VisionChangedEvent:
		logEvent.
			Int32("seat_id", int32(e.SeatID)).
			Int("gained", len(e.Gained)).
			Int("lost", len(e.Lost))

	case *events.ResearchCompletedEvent:
		logEvent.
			Int32("seat_id", int32(e.SeatID)).
			Stringer("research", e.Research).
			Str("artifact_id", e.ArtifactID)

	case *events.ResearchDeliveredEvent:
		logEvent.
			Int32("seat_id", int32(e.SeatID)).
			Stringer("research", e.Research)

	case *events.ResearchTreeChangedEvent:
		logEvent.
			Int32("seat_id", int32(e.SeatID)).
			Int("pending", len(e.Pending))

	case *events.SeatConnectionEvent:
		logEvent.
			Int32("seat_id", int32(e.SeatID)).
			Str("connection_id", e.ConnectionID)

	case *events.StateTransitionEvent:
		logEvent.
			Str("from", e.FromPhase).
			Str("to", e.ToPhase).
			Str("reason", e.Reason)
	}

	// In dev mode, also log the full event as JSON
	if ls.devMode {
		if jsonData, err := json.Marshal(event); err == nil {
			logEvent.RawJSON("event_data", jsonData)
		}
	}

	logEvent.Msg("Session event")
}
