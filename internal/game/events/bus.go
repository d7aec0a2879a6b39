package events

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// AllEvents registers a function handler for every event type.
const AllEvents = "*"

type funcHandler struct {
	id string
	fn EventHandler
}

// BusStats counts deliveries and recovered panics since the bus was created.
type BusStats struct {
	Published uint64
	Delivered uint64
	Panics    uint64
}

// EventBus delivers session notifications synchronously. Subscribers are
// called in registration order, then type handlers, then wildcard handlers,
// so every consumer observes the same order the tick produced.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	handlers    map[string][]funcHandler
	nextID      int
	stats       BusStats
	logger      zerolog.Logger
}

// NewEventBus creates an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]funcHandler),
		logger:   logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe adds a subscriber. A subscriber with the same ID replaces the
// old one in place.
func (eb *EventBus) Subscribe(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	// Publish iterates a snapshot of the slice, so writers copy.
	next := make([]Subscriber, 0, len(eb.subscribers)+1)
	replaced := false
	for _, s := range eb.subscribers {
		if s.ID() == subscriber.ID() {
			s, replaced = subscriber, true
		}
		next = append(next, s)
	}
	if !replaced {
		next = append(next, subscriber)
	}
	eb.subscribers = next
	eb.logger.Debug().Str("subscriber_id", subscriber.ID()).Msg("Subscriber added to event bus")
}

// Unsubscribe removes a subscriber or a function handler by id.
func (eb *EventBus) Unsubscribe(id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, s := range eb.subscribers {
		if s.ID() == id {
			eb.subscribers = without(eb.subscribers, i)
			eb.logger.Debug().Str("subscriber_id", id).Msg("Subscriber removed from event bus")
			return
		}
	}
	for eventType, hs := range eb.handlers {
		for i, h := range hs {
			if h.id == id {
				eb.handlers[eventType] = without(hs, i)
				eb.logger.Debug().Str("handler_id", id).Msg("Function handler removed from event bus")
				return
			}
		}
	}
}

// SubscribeFunc registers handler for eventType, or for every event when
// eventType is AllEvents. The returned id can be passed to Unsubscribe.
func (eb *EventBus) SubscribeFunc(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eventType + "_func_" + strconv.Itoa(eb.nextID)
	hs := eb.handlers[eventType]
	eb.handlers[eventType] = append(hs[:len(hs):len(hs)], funcHandler{id: id, fn: handler})
	eb.logger.Debug().
		Str("event_type", eventType).
		Str("handler_id", id).
		Msg("Function handler added to event bus")
	return id
}

// Publish delivers event to every interested subscriber and handler. A
// panicking consumer is logged and skipped.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	eventType := event.Type()
	subs := eb.subscribers
	typed := eb.handlers[eventType]
	wildcard := eb.handlers[AllEvents]
	eb.mu.RUnlock()

	var delivered, panics uint64
	for _, subscriber := range subs {
		if !subscriber.InterestedIn(eventType) {
			continue
		}
		if eb.deliver(subscriber.ID(), eventType, func() { subscriber.HandleEvent(event) }) {
			delivered++
		} else {
			panics++
		}
	}
	for _, hs := range [][]funcHandler{typed, wildcard} {
		for _, h := range hs {
			if eb.deliver(h.id, eventType, func() { h.fn(event) }) {
				delivered++
			} else {
				panics++
			}
		}
	}

	eb.mu.Lock()
	eb.stats.Published++
	eb.stats.Delivered += delivered
	eb.stats.Panics += panics
	eb.mu.Unlock()
}

func without[T any](s []T, i int) []T {
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

func (eb *EventBus) deliver(id, eventType string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error().
				Str("consumer_id", id).
				Str("event_type", eventType).
				Interface("panic", r).
				Msg("Event consumer panicked")
			ok = false
		}
	}()
	fn()
	return true
}

// SubscriberCount returns the number of registered subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// HandlerCount returns the number of function handlers registered for eventType.
func (eb *EventBus) HandlerCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

func (eb *EventBus) Stats() BusStats {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.stats
}
