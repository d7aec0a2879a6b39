package subscribers

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
)

// NATSPublisher is the part of *nats.Conn the forwarder uses.
type NATSPublisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the JSON document published for every forwarded event.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	SeatID    int32           `json:"seat_id,omitempty"`
	Tick      uint64          `json:"tick,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NATSForwarder republishes session events on <prefix>.<event type> so
// out-of-process consumers (renderers, replays, dashboards) can follow a session.
type NATSForwarder struct {
	id        string
	conn      NATSPublisher
	prefix    string
	filter    map[string]bool
	logger    zerolog.Logger
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewNATSForwarder wraps an existing connection. An empty types list forwards everything.
func NewNATSForwarder(id string, conn NATSPublisher, prefix string, types []string, logger zerolog.Logger) *NATSForwarder {
	f := &NATSForwarder{
		id:     id,
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("subscriber", "nats_forwarder").Logger(),
	}
	if len(types) > 0 {
		f.filter = make(map[string]bool, len(types))
		for _, t := range types {
			f.filter[t] = true
		}
	}
	return f
}

// ConnectNATS dials url with reconnect handlers that log through logger.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, error) {
	l := logger.With().Str("component", "nats").Logger()
	conn, err := nats.Connect(url,
		nats.Name("dungeonsync"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			l.Info().Msg("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

func (f *NATSForwarder) ID() string { return f.id }

func (f *NATSForwarder) InterestedIn(eventType string) bool {
	return f.filter == nil || f.filter[eventType]
}

// Subject returns the subject an event type is published on.
func (f *NATSForwarder) Subject(eventType string) string {
	return f.prefix + "." + eventType
}

// HandleEvent publishes the event. Failures are logged and counted; the
// session never blocks on the broker.
func (f *NATSForwarder) HandleEvent(event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		f.failed.Add(1)
		f.logger.Error().Err(err).Str("event_type", event.Type()).Msg("Failed to marshal event")
		return
	}
	env := Envelope{
		Type:      event.Type(),
		SessionID: event.SessionID(),
		Timestamp: event.Timestamp(),
		Payload:   payload,
	}
	if meta, ok := events.MetadataOf(event); ok {
		env.SeatID, env.Tick = meta.SeatID, meta.Tick
	}
	data, err := json.Marshal(env)
	if err != nil {
		f.failed.Add(1)
		f.logger.Error().Err(err).Str("event_type", event.Type()).Msg("Failed to marshal envelope")
		return
	}
	if err := f.conn.Publish(f.Subject(event.Type()), data); err != nil {
		f.failed.Add(1)
		f.logger.Warn().Err(err).Str("event_type", event.Type()).Msg("Failed to forward event")
		return
	}
	f.published.Add(1)
}

// Stats returns the number of forwarded and failed events.
func (f *NATSForwarder) Stats() (published, failed uint64) {
	return f.published.Load(), f.failed.Load()
}
