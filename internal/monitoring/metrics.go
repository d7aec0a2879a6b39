package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mitchelldurbincs/dungeonsync/internal/game"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
)

const namespace = "dungeonsync"

// SessionMetrics exports tick, sync and persistence measurements. It is a
// game.TickObserver and an events.Subscriber; register it with both.
type SessionMetrics struct {
	tickDuration   prometheus.Histogram
	ticks          prometheus.Counter
	commands       prometheus.Counter
	rejections     *prometheus.CounterVec
	tilesChanged   prometheus.Counter
	framesSent     prometheus.Counter
	tilesSent      prometheus.Counter
	deferredSeats  prometheus.Counter
	droppedSeats   prometheus.Counter
	connectedSeats prometheus.Gauge
	researchDone   prometheus.Counter
	snapshotWrites *prometheus.CounterVec
	snapshotTime   prometheus.Histogram
	currentTick    prometheus.Gauge
}

// NewSessionMetrics creates the collectors and registers them with reg.
func NewSessionMetrics(reg prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent processing one tick.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Ticks processed.",
		}),
		commands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Seat commands drained from the inbox.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_rejections_total",
			Help:      "Rejected seat commands by error kind.",
		}, []string{"kind"}),
		tilesChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_changed_total",
			Help:      "Tiles whose state changed during a tick.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "frames_total",
			Help:      "Frames queued for seats.",
		}),
		tilesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "tiles_total",
			Help:      "Tile records replicated to seats.",
		}),
		deferredSeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "deferred_seats_total",
			Help:      "Seat deltas deferred because too many frames were unacknowledged.",
		}),
		droppedSeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "dropped_seats_total",
			Help:      "Seat connections dropped because their sink overflowed.",
		}),
		connectedSeats: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "connected_seats",
			Help:      "Seats with a live connection.",
		}),
		researchDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "research_delivered_total",
			Help:      "Research made available to seats.",
		}),
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "snapshot_writes_total",
			Help:      "Autosave writes by result.",
		}, []string{"result"}),
		snapshotTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "snapshot_write_seconds",
			Help:      "Time spent persisting one autosave.",
			Buckets:   prometheus.DefBuckets,
		}),
		currentTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_tick",
			Help:      "Last completed tick.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.tickDuration, m.ticks, m.commands, m.rejections, m.tilesChanged,
		m.framesSent, m.tilesSent, m.deferredSeats, m.droppedSeats,
		m.connectedSeats, m.researchDone, m.snapshotWrites, m.snapshotTime,
		m.currentTick,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register session metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveTick implements game.TickObserver.
func (m *SessionMetrics) ObserveTick(s game.TickStats) {
	m.tickDuration.Observe(s.Duration.Seconds())
	m.ticks.Inc()
	m.currentTick.Set(float64(s.Tick))
	m.commands.Add(float64(s.Commands))
	m.tilesChanged.Add(float64(s.TilesChanged))
	m.framesSent.Add(float64(s.FramesSent))
	m.tilesSent.Add(float64(s.TilesSent))
	m.deferredSeats.Add(float64(s.DeferredSeats))
	m.droppedSeats.Add(float64(s.DroppedSeats))
}

// ObserveSnapshot records one autosave write.
func (m *SessionMetrics) ObserveSnapshot(took time.Duration, err error) {
	if err != nil {
		m.snapshotWrites.WithLabelValues("error").Inc()
		return
	}
	m.snapshotWrites.WithLabelValues("ok").Inc()
	m.snapshotTime.Observe(took.Seconds())
}

// ObserveSnapshotDropped counts an autosave the writer had no room for.
func (m *SessionMetrics) ObserveSnapshotDropped() {
	m.snapshotWrites.WithLabelValues("dropped").Inc()
}

func (m *SessionMetrics) ID() string { return "session_metrics" }

func (m *SessionMetrics) InterestedIn(eventType string) bool {
	switch eventType {
	case events.TypeCommandRejected, events.TypeSeatConnected, events.TypeSeatDisconnected, events.TypeResearchDelivered:
		return true
	}
	return false
}

func (m *SessionMetrics) HandleEvent(event events.Event) {
	switch e := event.(type) {
	case *events.CommandRejectedEvent:
		m.rejections.WithLabelValues(e.Kind).Inc()
	case *events.SeatConnectionEvent:
		if e.Type() == events.TypeSeatConnected {
			m.connectedSeats.Inc()
		} else {
			m.connectedSeats.Dec()
		}
	case *events.ResearchDeliveredEvent:
		m.researchDone.Inc()
	}
}
