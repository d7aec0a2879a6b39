package events

import (
	"time"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
)

// Event type constants
const (
	TypeSessionStarted      = "session.started"
	TypeSessionEnded        = "session.ended"
	TypeTickCompleted       = "tick.completed"
	TypeCommandProcessed    = "command.processed"
	TypeCommandRejected     = "command.rejected"
	TypeTileVisualChanged   = "tile.visual_changed"
	TypeTileClaimed         = "tile.claimed"
	TypeVisionChanged       = "vision.changed"
	TypeResearchCompleted   = "research.completed"
	TypeResearchDelivered   = "research.delivered"
	TypeResearchTreeChanged = "research.tree_changed"
	TypeSeatConnected       = "seat.connected"
	TypeSeatDisconnected    = "seat.disconnected"
	TypeStateTransition     = "state.transition"
)

// SessionStartedEvent is published once the map is loaded and the tick loop runs
type SessionStartedEvent struct {
	BaseEvent
	Metadata  EventMetadata
	NumSeats  int
	MapWidth  int
	MapHeight int
}

func NewSessionStartedEvent(sessionID string, numSeats, width, height int) *SessionStartedEvent {
	return &SessionStartedEvent{
		BaseEvent: newBase(TypeSessionStarted, sessionID),
		NumSeats:  numSeats,
		MapWidth:  width,
		MapHeight: height,
	}
}

// SessionEndedEvent is published when the tick loop stops for good
type SessionEndedEvent struct {
	BaseEvent
	Metadata  EventMetadata
	Reason    string
	Duration  time.Duration
	FinalTick uint64
}

func NewSessionEndedEvent(sessionID, reason string, duration time.Duration, finalTick uint64) *SessionEndedEvent {
	return &SessionEndedEvent{
		BaseEvent: newBase(TypeSessionEnded, sessionID),
		Metadata:  EventMetadata{Tick: finalTick},
		Reason:    reason,
		Duration:  duration,
		FinalTick: finalTick,
	}
}

// TickCompletedEvent is published after every tick, once all other events of the tick
type TickCompletedEvent struct {
	BaseEvent
	Metadata      EventMetadata
	Tick          uint64
	Commands      int
	Rejected      int
	TilesChanged  int
	ProcessedTime time.Duration
}

func NewTickCompletedEvent(sessionID string, tick uint64, commands, rejected, tilesChanged int, processed time.Duration) *TickCompletedEvent {
	return &TickCompletedEvent{
		BaseEvent:     newBase(TypeTickCompleted, sessionID),
		Metadata:      EventMetadata{Tick: tick},
		Tick:          tick,
		Commands:      commands,
		Rejected:      rejected,
		TilesChanged:  tilesChanged,
		ProcessedTime: processed,
	}
}

// CommandProcessedEvent is published after a seat command was applied
type CommandProcessedEvent struct {
	BaseEvent
	Metadata EventMetadata
	SeatID   core.SeatID
	Command  core.Command
}

func NewCommandProcessedEvent(sessionID string, cmd core.Command, tick uint64) *CommandProcessedEvent {
	return &CommandProcessedEvent{
		BaseEvent: newBase(TypeCommandProcessed, sessionID),
		Metadata:  EventMetadata{SeatID: int32(cmd.GetSeatID()), Tick: tick},
		SeatID:    cmd.GetSeatID(),
		Command:   cmd,
	}
}

// CommandRejectedEvent is published when a seat command fails validation or a
// rule check. State is unchanged.
type CommandRejectedEvent struct {
	BaseEvent
	Metadata EventMetadata
	SeatID   core.SeatID
	Command  core.Command
	Kind     string
	Reason   string
}

func NewCommandRejectedEvent(sessionID string, cmd core.Command, err error, tick uint64) *CommandRejectedEvent {
	kind := "unknown"
	if k, ok := core.KindOf(err); ok {
		kind = k.String()
	}
	return &CommandRejectedEvent{
		BaseEvent: newBase(TypeCommandRejected, sessionID),
		Metadata:  EventMetadata{SeatID: int32(cmd.GetSeatID()), Tick: tick},
		SeatID:    cmd.GetSeatID(),
		Command:   cmd,
		Kind:      kind,
		Reason:    err.Error(),
	}
}

// TileVisualChangedEvent tells renderers a tile must be redrawn
type TileVisualChangedEvent struct {
	BaseEvent
	Metadata EventMetadata
	Tile     core.Coordinate
	TileType core.TileType
	Visual   core.TileVisual
	Owner    core.SeatID
}

func NewTileVisualChangedEvent(sessionID string, t *core.Tile, tick uint64) *TileVisualChangedEvent {
	return &TileVisualChangedEvent{
		BaseEvent: newBase(TypeTileVisualChanged, sessionID),
		Metadata:  EventMetadata{Tick: tick},
		Tile:      t.Coordinate(),
		TileType:  t.Type(),
		Visual:    t.Visual(),
		Owner:     t.Owner(),
	}
}

// TileClaimedEvent is published when tile ownership flips
type TileClaimedEvent struct {
	BaseEvent
	Metadata  EventMetadata
	Tile      core.Coordinate
	PrevOwner core.SeatID
	NewOwner  core.SeatID
}

func NewTileClaimedEvent(sessionID string, tile core.Coordinate, prev, next core.SeatID, tick uint64) *TileClaimedEvent {
	return &TileClaimedEvent{
		BaseEvent: newBase(TypeTileClaimed, sessionID),
		Metadata:  EventMetadata{SeatID: int32(next), Tick: tick},
		Tile:      tile,
		PrevOwner: prev,
		NewOwner:  next,
	}
}

// VisionChangedEvent carries the tiles a seat gained and lost sight of this tick
type VisionChangedEvent struct {
	BaseEvent
	Metadata EventMetadata
	SeatID   core.SeatID
	Gained   []core.Coordinate
	Lost     []core.Coordinate
}

func NewVisionChangedEvent(sessionID string, seat core.SeatID, gained, lost []core.Coordinate, tick uint64) *VisionChangedEvent {
	return &VisionChangedEvent{
		BaseEvent: newBase(TypeVisionChanged, sessionID),
		Metadata:  EventMetadata{SeatID: int32(seat), Tick: tick},
		SeatID:    seat,
		Gained:    gained,
		Lost:      lost,
	}
}

// ResearchCompletedEvent is published when a seat accumulated enough points.
// The research is not done until its artifact is delivered.
type ResearchCompletedEvent struct {
	BaseEvent
	Metadata   EventMetadata
	SeatID     core.SeatID
	Research   research.ResearchType
	ArtifactID string
}

func NewResearchCompletedEvent(sessionID string, seat core.SeatID, rt research.ResearchType, artifactID string, tick uint64) *ResearchCompletedEvent {
	return &ResearchCompletedEvent{
		BaseEvent:  newBase(TypeResearchCompleted, sessionID),
		Metadata:   EventMetadata{SeatID: int32(seat), Tick: tick},
		SeatID:     seat,
		Research:   rt,
		ArtifactID: artifactID,
	}
}

// ResearchDeliveredEvent is published when an artifact arrives and the research becomes done
type ResearchDeliveredEvent struct {
	BaseEvent
	Metadata EventMetadata
	SeatID   core.SeatID
	Research research.ResearchType
}

func NewResearchDeliveredEvent(sessionID string, seat core.SeatID, rt research.ResearchType, tick uint64) *ResearchDeliveredEvent {
	return &ResearchDeliveredEvent{
		BaseEvent: newBase(TypeResearchDelivered, sessionID),
		Metadata:  EventMetadata{SeatID: int32(seat), Tick: tick},
		SeatID:    seat,
		Research:  rt,
	}
}

// ResearchTreeChangedEvent is published after a seat's pending list was replaced
type ResearchTreeChangedEvent struct {
	BaseEvent
	Metadata EventMetadata
	SeatID   core.SeatID
	Pending  []research.ResearchType
}

func NewResearchTreeChangedEvent(sessionID string, seat core.SeatID, pending []research.ResearchType, tick uint64) *ResearchTreeChangedEvent {
	return &ResearchTreeChangedEvent{
		BaseEvent: newBase(TypeResearchTreeChanged, sessionID),
		Metadata:  EventMetadata{SeatID: int32(seat), Tick: tick},
		SeatID:    seat,
		Pending:   pending,
	}
}

// SeatConnectionEvent is published when a client attaches to or leaves a seat
type SeatConnectionEvent struct {
	BaseEvent
	Metadata     EventMetadata
	SeatID       core.SeatID
	ConnectionID string
}

func NewSeatConnectedEvent(sessionID string, seat core.SeatID, connID string) *SeatConnectionEvent {
	return &SeatConnectionEvent{
		BaseEvent:    newBase(TypeSeatConnected, sessionID),
		Metadata:     EventMetadata{SeatID: int32(seat)},
		SeatID:       seat,
		ConnectionID: connID,
	}
}

func NewSeatDisconnectedEvent(sessionID string, seat core.SeatID, connID string) *SeatConnectionEvent {
	return &SeatConnectionEvent{
		BaseEvent:    newBase(TypeSeatDisconnected, sessionID),
		Metadata:     EventMetadata{SeatID: int32(seat)},
		SeatID:       seat,
		ConnectionID: connID,
	}
}

// StateTransitionEvent is published when the session state machine transitions between phases
type StateTransitionEvent struct {
	BaseEvent
	FromPhase string
	ToPhase   string
	Reason    string
}

func NewStateTransitionEvent(sessionID, fromPhase, toPhase, reason string) *StateTransitionEvent {
	return &StateTransitionEvent{
		BaseEvent: newBase(TypeStateTransition, sessionID),
		FromPhase: fromPhase,
		ToPhase:   toPhase,
		Reason:    reason,
	}
}
