package monitoring

import (
	"maps"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// GoroutineMonitor samples the goroutine count and warns when growth since
// startup is not explained by registered components. Each seat connection
// owns a reader and a writer, so cmd/server registers 2 per connection; a
// count that outgrows that points at a leaked connection or a stuck writer.
type GoroutineMonitor struct {
	mu            sync.RWMutex
	count         func() int
	baseline      int
	current       int
	peak          int
	expected      map[string]int
	checkInterval time.Duration
	slack         int
	lastAlert     time.Time
	alertCooldown time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
	gauge         prometheus.Gauge
	unexplained   prometheus.Gauge
	logger        zerolog.Logger
}

// MonitorOptions configures a GoroutineMonitor. Zero fields take defaults.
// AlertThreshold is the number of unexplained goroutines tolerated above
// baseline plus registered components.
type MonitorOptions struct {
	CheckInterval  time.Duration
	AlertThreshold int
	AlertCooldown  time.Duration
}

func NewGoroutineMonitor(opts MonitorOptions, logger zerolog.Logger) *GoroutineMonitor {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 30 * time.Second
	}
	if opts.AlertThreshold <= 0 {
		opts.AlertThreshold = 1000
	}
	if opts.AlertCooldown <= 0 {
		opts.AlertCooldown = 5 * time.Minute
	}
	baseline := runtime.NumGoroutine()
	return &GoroutineMonitor{
		count:         runtime.NumGoroutine,
		baseline:      baseline,
		current:       baseline,
		peak:          baseline,
		expected:      make(map[string]int),
		checkInterval: opts.CheckInterval,
		slack:         opts.AlertThreshold,
		alertCooldown: opts.AlertCooldown,
		stop:          make(chan struct{}),
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Goroutine count at the last check.",
		}),
		unexplained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_unexplained",
			Help:      "Goroutines above baseline not owned by a registered component.",
		}),
		logger: logger.With().Str("component", "goroutine_monitor").Logger(),
	}
}

// Register exports the monitor gauges.
func (gm *GoroutineMonitor) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{gm.gauge, gm.unexplained} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (gm *GoroutineMonitor) Start() {
	gm.gauge.Set(float64(gm.baseline))
	go gm.run()
	gm.logger.Info().
		Int("baseline", gm.baseline).
		Dur("interval", gm.checkInterval).
		Msg("Started goroutine monitoring")
}

// Stop stops the monitor. It is safe to call more than once.
func (gm *GoroutineMonitor) Stop() {
	gm.stopOnce.Do(func() { close(gm.stop) })
}

func (gm *GoroutineMonitor) run() {
	ticker := time.NewTicker(gm.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			gm.check()
		case <-gm.stop:
			return
		}
	}
}

// check samples the count and reports whether it raised an alert.
func (gm *GoroutineMonitor) check() bool {
	current := gm.count()

	gm.mu.Lock()
	gm.current = current
	gm.peak = max(gm.peak, current)
	expected := 0
	for _, n := range gm.expected {
		expected += n
	}
	unexplained := current - gm.baseline - expected
	alert := unexplained > gm.slack && time.Since(gm.lastAlert) > gm.alertCooldown
	if alert {
		gm.lastAlert = time.Now()
	}
	peak := gm.peak
	gm.mu.Unlock()

	gm.gauge.Set(float64(current))
	gm.unexplained.Set(float64(max(unexplained, 0)))

	gm.logger.Debug().
		Int("current", current).
		Int("expected", expected).
		Int("unexplained", unexplained).
		Int("peak", peak).
		Msg("Goroutine check")

	if alert {
		gm.logger.Warn().
			Int("current", current).
			Int("baseline", gm.baseline).
			Int("expected", expected).
			Int("unexplained", unexplained).
			Int("threshold", gm.slack).
			Msg("Unexplained goroutine growth, possible leak")
	}
	return alert
}

// RegisterComponent records how many goroutines a component currently owns.
// A count of zero removes the component.
func (gm *GoroutineMonitor) RegisterComponent(name string, count int) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	if count <= 0 {
		delete(gm.expected, name)
		return
	}
	gm.expected[name] = count
}

// GoroutineMetrics is a point-in-time view of the monitor.
type GoroutineMetrics struct {
	Current         int            `json:"current"`
	Baseline        int            `json:"baseline"`
	Peak            int            `json:"peak"`
	Growth          int            `json:"growth"`
	ComponentCounts map[string]int `json:"component_counts"`
}

func (gm *GoroutineMonitor) GetMetrics() GoroutineMetrics {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return GoroutineMetrics{
		Current:         gm.current,
		Baseline:        gm.baseline,
		Peak:            gm.peak,
		Growth:          gm.current - gm.baseline,
		ComponentCounts: maps.Clone(gm.expected),
	}
}
