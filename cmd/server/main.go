package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mitchelldurbincs/dungeonsync/internal/config"
	"github.com/mitchelldurbincs/dungeonsync/internal/game"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/events/subscribers"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/mapgen"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/processor"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/monitoring"
	"github.com/mitchelldurbincs/dungeonsync/internal/netsync"
	"github.com/mitchelldurbincs/dungeonsync/internal/save"
	"github.com/mitchelldurbincs/dungeonsync/internal/store"
	"github.com/mitchelldurbincs/dungeonsync/internal/transport/httpapi"
	"github.com/mitchelldurbincs/dungeonsync/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	levelPath := flag.String("level", "", "Level file to load (empty to use config or generate a map)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	seed := flag.Int64("seed", 0, "Map seed (0 to use config default)")
	saveOnExit := flag.String("save-on-exit", "", "Write the final level to this path on shutdown")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}
	if err := config.LoadEnvironmentConfig(os.Getenv("APP_ENV")); err != nil {
		log.Fatal().Err(err).Msg("Failed to load environment config")
	}
	cfg := config.Get()

	if *levelPath != "" {
		cfg.Map.LevelPath = *levelPath
	}
	if *logLevel == "" {
		*logLevel = cfg.Server.LogLevel
	}
	if *seed != 0 {
		cfg.Map.Seed = *seed
	}

	setupLogging(*logLevel, cfg.Server.LogFormat)
	logger := log.Logger

	if err := run(cfg, *saveOnExit, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server shutdown complete")
}

func run(cfg *config.Config, saveOnExit string, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := monitoring.NewSessionMetrics(registry)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(logger)
	bus.Subscribe(metrics)
	if cfg.Events.LogEvents {
		ls := subscribers.NewLoggerSubscriber("event_logger", logger, zerolog.DebugLevel)
		ls.SetEventFilter(cfg.Events.LogEventTypes)
		ls.SetDevMode(os.Getenv("APP_ENV") != "production")
		bus.Subscribe(ls)
	}
	if cfg.Events.NATSURL != "" {
		nc, err := subscribers.ConnectNATS(cfg.Events.NATSURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				logger.Warn().Err(err).Msg("Failed to drain NATS connection")
			}
		}()
		bus.Subscribe(subscribers.NewNATSForwarder("nats_forwarder", nc, cfg.Events.NATSSubject, cfg.Events.NATSEventTypes, logger))
		logger.Info().Str("url", cfg.Events.NATSURL).Str("subject", cfg.Events.NATSSubject).Msg("Forwarding events to NATS")
	}

	catalog := research.DefaultCatalog()
	if cfg.Research.CatalogPath != "" {
		if catalog, err = research.LoadCatalog(cfg.Research.CatalogPath); err != nil {
			return fmt.Errorf("load research catalog: %w", err)
		}
	}

	snapshots, err := store.New(store.Config{
		Backend:   store.Backend(cfg.Storage.Backend),
		Dir:       cfg.Storage.Dir,
		Keep:      cfg.Storage.Keep,
		QueueSize: cfg.Storage.QueueSize,
	}, logger)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	writer := store.NewAsyncWriter(snapshots, cfg.Storage.QueueSize, logger)
	writer.OnWrite(func(_ store.Snapshot, took time.Duration, err error) {
		metrics.ObserveSnapshot(took, err)
	})

	gameCfg, err := gameConfig(ctx, cfg, catalog, snapshots, logger)
	if err != nil {
		return err
	}
	gameCfg.Bus = bus
	gameCfg.Observer = metrics
	if cfg.Game.AutosaveEveryTicks > 0 && cfg.Storage.Backend != string(store.BackendNone) {
		gameCfg.Snapshots = countingSink{writer: writer, metrics: metrics}
	}

	engine, err := game.NewEngine(ctx, gameCfg)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	wsServer := ws.NewServer(engine, ws.Options{
		QueueSize:         cfg.Sync.OutboxSize,
		CompressThreshold: cfg.Sync.CompressThreshold,
		ReadTimeout:       time.Duration(cfg.Server.WebSocket.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WebSocket.WriteTimeout) * time.Second,
		PingInterval:      time.Duration(cfg.Server.WebSocket.PingInterval) * time.Second,
		MaxMessageSize:    cfg.Server.WebSocket.MaxMessageSize,
	}, logger)

	var apiStore store.Store
	if cfg.Storage.Backend != string(store.BackendNone) {
		apiStore = snapshots
	}
	api, err := httpapi.NewServer(httpapi.Config{
		Session:        engine,
		Store:          apiStore,
		WebSocket:      wsServer.Handler(),
		Registerer:     registry,
		Gatherer:       registry,
		RequestTimeout: time.Duration(cfg.Server.HTTP.RequestTimeoutMs) * time.Millisecond,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	monitor := monitoring.NewGoroutineMonitor(monitoring.MonitorOptions{
		CheckInterval:  time.Duration(cfg.Monitoring.GoroutineCheckInterval) * time.Second,
		AlertThreshold: cfg.Monitoring.GoroutineAlertThreshold,
	}, logger)
	if err := monitor.Register(registry); err != nil {
		return err
	}
	trackConnections := func(events.Event) {
		// Each seat connection runs a reader and a writer.
		monitor.RegisterComponent("websocket", 2*wsServer.Connections())
	}
	bus.SubscribeFunc(events.TypeSeatConnected, trackConnections)
	bus.SubscribeFunc(events.TypeSeatDisconnected, trackConnections)
	monitor.Start()
	defer monitor.Stop()

	admin, err := newAdminServer(cfg.Server.GRPC, logger)
	if err != nil {
		return err
	}
	bus.SubscribeFunc(events.TypeSessionEnded, func(events.Event) {
		admin.setServing(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	})

	config.WatchConfig(func(r config.Reloadable) {
		setLevel(r.LogLevel)
		rctx, rcancel := context.WithTimeout(ctx, time.Second)
		defer rcancel()
		if err := engine.SetTickInterval(rctx, r.TickInterval); err != nil {
			logger.Warn().Err(err).Msg("Failed to apply reloaded tick interval")
		}
		logger.Info().Dur("tick_interval", r.TickInterval).Str("log_level", r.LogLevel).Msg("Config reloaded")
	}, func(err error) {
		logger.Warn().Err(err).Msg("Ignoring invalid config change")
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTP.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lis, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", httpServer.Addr, err)
	}

	errCh := make(chan error, 3)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil {
			errCh <- fmt.Errorf("engine: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("address", lis.Addr().String()).Msg("HTTP server listening")
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if admin != nil {
		go func() {
			if err := admin.serve(); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	logger.Info().
		Str("session_id", engine.SessionID()).
		Str("source", gameCfg.Source).
		Int("width", engine.Width()).
		Int("height", engine.Height()).
		Msg("Session started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Component failed, shutting down")
	case <-engineDone:
		logger.Info().Msg("Session ended")
	}

	admin.setServing(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	if runErr == nil {
		// Give load balancers time to notice.
		time.Sleep(time.Duration(cfg.Server.GracefulShutdownDelay) * time.Second)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := engine.Stop(shutdownCtx, "server shutdown"); err != nil {
		logger.Warn().Err(err).Msg("Failed to stop session cleanly")
	}
	cancel()
	<-engineDone

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	wsServer.Close()
	admin.stop()

	if err := writer.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Int64("dropped", writer.Dropped()).Msg("Snapshot writer did not drain")
	}
	if saveOnExit != "" {
		if err := engine.SaveFile(shutdownCtx, saveOnExit, false); err != nil {
			logger.Error().Err(err).Str("path", saveOnExit).Msg("Failed to save level")
		} else {
			logger.Info().Str("path", saveOnExit).Uint64("tick", engine.CurrentTick()).Msg("Level saved")
		}
	}
	return runErr
}

// gameConfig maps the loaded configuration onto the engine config. The level
// comes from a stored snapshot, a level file or the map generator, in that
// order of preference.
func gameConfig(ctx context.Context, cfg *config.Config, catalog *research.Catalog, snapshots store.Store, logger zerolog.Logger) (game.GameConfig, error) {
	gc := game.GameConfig{
		SessionID:    cfg.Storage.SessionID,
		HumanSeats:   cfg.Map.HumanSeats,
		Catalog:      catalog,
		Editor:       cfg.Game.Editor,
		TickInterval: cfg.Game.TickInterval(),
		VisionRadius: cfg.Game.VisionRadius,
		Rates: processor.Rates{
			Dig:   cfg.Game.DigRate,
			Claim: cfg.Game.ClaimRate,
		},
		GoldPerFullness:       cfg.Game.GoldPerFullness,
		ResearchPointsPerTick: int32(cfg.Game.ResearchPointsPerTick),
		ResearchDeliveryTicks: uint64(cfg.Game.ResearchDeliveryTicks),
		AutosaveEvery:         uint64(cfg.Game.AutosaveEveryTicks),
		InboxSize:             cfg.Game.InboxSize,
		Sync: netsync.Options{
			MaxInFlight:       cfg.Sync.MaxInFlight,
			CompressThreshold: cfg.Sync.CompressThreshold,
		},
		Logger: logger,
	}

	decoder := save.NewDecoder(catalog, logger)
	switch {
	case cfg.Storage.Resume:
		snap, err := snapshots.Latest(ctx, cfg.Storage.SessionID)
		if err != nil {
			return gc, fmt.Errorf("resume session %s: %w", cfg.Storage.SessionID, err)
		}
		lvl, err := decoder.DecodeAny(bytes.NewReader(snap.Data))
		if err != nil {
			return gc, fmt.Errorf("decode snapshot of %s at tick %d: %w", snap.SessionID, snap.Tick, err)
		}
		gc.Level = lvl
		gc.Source = fmt.Sprintf("snapshot:%d", snap.Tick)
	case cfg.Map.LevelPath != "":
		lvl, err := decoder.LoadFile(cfg.Map.LevelPath)
		if err != nil {
			return gc, err
		}
		gc.Level = lvl
		gc.Source = cfg.Map.LevelPath
	default:
		seed := cfg.Map.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		mc := mapgen.DefaultMapConfig(cfg.Map.Width, cfg.Map.Height, cfg.Map.Seats, seed)
		mc.StartRadius = cfg.Map.StartRadius
		mc.MinSeatSpacing = cfg.Map.MinSeatSpacing
		gc.Map = mc
	}
	return gc, nil
}

// countingSink records autosaves the writer had no room for.
type countingSink struct {
	writer  *store.AsyncWriter
	metrics *monitoring.SessionMetrics
}

func (s countingSink) Enqueue(sessionID string, tick uint64, data []byte) bool {
	if s.writer.Enqueue(sessionID, tick, data) {
		return true
	}
	s.metrics.ObserveSnapshotDropped()
	return false
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func setLevel(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

func setupLogging(level, format string) {
	setLevel(level)

	if os.Getenv("APP_ENV") == "production" || format == "json" {
		// JSON output for production
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
