package events

import (
	"time"
)

// Event is a session notification. Events are immutable once published.
type Event interface {
	Type() string
	Timestamp() time.Time
	SessionID() string
}

// BaseEvent carries the fields every notification shares.
type BaseEvent struct {
	EventType string    `json:"type"`
	Time      time.Time `json:"timestamp"`
	Session   string    `json:"session_id"`
}

func (e BaseEvent) Type() string         { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) SessionID() string    { return e.Session }

func newBase(eventType, sessionID string) BaseEvent {
	return BaseEvent{EventType: eventType, Time: time.Now(), Session: sessionID}
}

type EventHandler func(Event)

// Subscriber receives the event types it reports interest in.
type Subscriber interface {
	ID() string
	HandleEvent(Event)
	InterestedIn(eventType string) bool
}

// EventMetadata scopes an event to a seat and tick. SeatID 0 means the event
// is not about a single seat.
type EventMetadata struct {
	SeatID int32  `json:"seat_id,omitempty"`
	Tick   uint64 `json:"tick,omitempty"`
}

// MetadataOf returns the seat and tick scope of e. Events without one, such
// as phase transitions, report false.
func MetadataOf(e Event) (EventMetadata, bool) {
	switch ev := e.(type) {
	case *SessionStartedEvent:
		return ev.Metadata, true
	case *SessionEndedEvent:
		return ev.Metadata, true
	case *TickCompletedEvent:
		return ev.Metadata, true
	case *CommandProcessedEvent:
		return ev.Metadata, true
	case *CommandRejectedEvent:
		return ev.Metadata, true
	case *TileVisualChangedEvent:
		return ev.Metadata, true
	case *TileClaimedEvent:
		return ev.Metadata, true
	case *VisionChangedEvent:
		return ev.Metadata, true
	case *ResearchCompletedEvent:
		return ev.Metadata, true
	case *ResearchDeliveredEvent:
		return ev.Metadata, true
	case *ResearchTreeChangedEvent:
		return ev.Metadata, true
	case *SeatConnectionEvent:
		return ev.Metadata, true
	}
	return EventMetadata{}, false
}

// Publisher accepts events. Both EventBus and the per-tick Queue implement it.
type Publisher interface {
	Publish(Event)
}

// Bus is the subscription side of EventBus.
type Bus interface {
	Publisher
	Subscribe(Subscriber)
	// Unsubscribe removes a subscriber, or a handler by the id SubscribeFunc returned.
	Unsubscribe(id string)
	SubscribeFunc(eventType string, handler EventHandler) string
}
