package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Game       GameConfig       `mapstructure:"game"`
	Map        MapConfig        `mapstructure:"map"`
	Research   ResearchConfig   `mapstructure:"research"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Events     EventsConfig     `mapstructure:"events"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// GameConfig holds session rules and tick settings
type GameConfig struct {
	TickIntervalMs        int     `mapstructure:"tick_interval_ms"`
	VisionRadius          int     `mapstructure:"vision_radius"`
	DigRate               float64 `mapstructure:"dig_rate"`
	ClaimRate             float64 `mapstructure:"claim_rate"`
	GoldPerFullness       float64 `mapstructure:"gold_per_fullness"`
	ResearchPointsPerTick int     `mapstructure:"research_points_per_tick"`
	ResearchDeliveryTicks int     `mapstructure:"research_delivery_ticks"`
	AutosaveEveryTicks    int     `mapstructure:"autosave_every_ticks"`
	InboxSize             int     `mapstructure:"inbox_size"`
	Editor                bool    `mapstructure:"editor"`
}

// TickInterval returns the tick period.
func (g GameConfig) TickInterval() time.Duration {
	return time.Duration(g.TickIntervalMs) * time.Millisecond
}

// MapConfig selects a level file or the generated map settings
type MapConfig struct {
	LevelPath      string `mapstructure:"level_path"`
	Width          int    `mapstructure:"width"`
	Height         int    `mapstructure:"height"`
	Seed           int64  `mapstructure:"seed"` // 0 picks a time-based seed
	Seats          int    `mapstructure:"seats"`
	HumanSeats     int    `mapstructure:"human_seats"`
	StartRadius    int    `mapstructure:"start_radius"`
	MinSeatSpacing int    `mapstructure:"min_seat_spacing"`
}

// ResearchConfig points at an optional research catalog override
type ResearchConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}

// SyncConfig holds replication settings
type SyncConfig struct {
	MaxInFlight       int `mapstructure:"max_in_flight"`
	CompressThreshold int `mapstructure:"compress_threshold"`
	OutboxSize        int `mapstructure:"outbox_size"`
}

// ServerConfig holds listener and logging configuration
type ServerConfig struct {
	HTTP                  HTTPConfig      `mapstructure:"http"`
	GRPC                  GRPCConfig      `mapstructure:"grpc"`
	WebSocket             WebSocketConfig `mapstructure:"websocket"`
	LogLevel              string          `mapstructure:"log_level"`
	LogFormat             string          `mapstructure:"log_format"`
	GracefulShutdownDelay int             `mapstructure:"graceful_shutdown_delay"`
}

// HTTPConfig holds the client and admin HTTP listener settings
type HTTPConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", h.Host, h.Port) }

// GRPCConfig holds the gRPC health listener settings
type GRPCConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	EnableReflection bool   `mapstructure:"enable_reflection"`
}

// Addr returns host:port.
func (g GRPCConfig) Addr() string { return fmt.Sprintf("%s:%d", g.Host, g.Port) }

// WebSocketConfig holds per-connection timeouts, in seconds, and inbound
// size limits, in bytes
type WebSocketConfig struct {
	ReadTimeout    int   `mapstructure:"read_timeout"`
	WriteTimeout   int   `mapstructure:"write_timeout"`
	PingInterval   int   `mapstructure:"ping_interval"`
	MaxMessageSize int64 `mapstructure:"max_message_size"`
}

// StorageConfig holds autosave persistence settings
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	Keep      int    `mapstructure:"keep"`
	QueueSize int    `mapstructure:"queue_size"`
	// Resume loads the newest snapshot of SessionID instead of a fresh map.
	Resume    bool   `mapstructure:"resume"`
	SessionID string `mapstructure:"session_id"`
}

// EventsConfig holds event logging and forwarding settings
type EventsConfig struct {
	LogEvents      bool     `mapstructure:"log_events"`
	LogEventTypes  []string `mapstructure:"log_event_types"`
	NATSURL        string   `mapstructure:"nats_url"`
	NATSSubject    string   `mapstructure:"nats_subject"`
	NATSEventTypes []string `mapstructure:"nats_event_types"`
}

// MonitoringConfig holds goroutine monitor settings
type MonitoringConfig struct {
	GoroutineCheckInterval  int `mapstructure:"goroutine_check_interval"`
	GoroutineAlertThreshold int `mapstructure:"goroutine_alert_threshold"`
}

var (
	// Global config instance
	cfg *Config
	v   *viper.Viper
)

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	// Game defaults
	v.SetDefault("game.tick_interval_ms", 100)
	v.SetDefault("game.vision_radius", 5)
	v.SetDefault("game.dig_rate", 20.0)
	v.SetDefault("game.claim_rate", 0.25)
	v.SetDefault("game.gold_per_fullness", 1.0)
	v.SetDefault("game.research_points_per_tick", 5)
	v.SetDefault("game.research_delivery_ticks", 20)
	v.SetDefault("game.autosave_every_ticks", 0)
	v.SetDefault("game.inbox_size", 1024)
	v.SetDefault("game.editor", false)

	// Map defaults
	v.SetDefault("map.level_path", "")
	v.SetDefault("map.width", 48)
	v.SetDefault("map.height", 32)
	v.SetDefault("map.seed", 0)
	v.SetDefault("map.seats", 2)
	v.SetDefault("map.human_seats", 1)
	v.SetDefault("map.start_radius", 2)
	v.SetDefault("map.min_seat_spacing", 8)

	v.SetDefault("research.catalog_path", "")

	// Sync defaults
	v.SetDefault("sync.max_in_flight", 64)
	v.SetDefault("sync.compress_threshold", 1024)
	v.SetDefault("sync.outbox_size", 256)

	// Server defaults
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.request_timeout_ms", 5000)
	v.SetDefault("server.grpc.enabled", true)
	v.SetDefault("server.grpc.host", "0.0.0.0")
	v.SetDefault("server.grpc.port", 50051)
	v.SetDefault("server.grpc.enable_reflection", true)
	v.SetDefault("server.websocket.read_timeout", 60)
	v.SetDefault("server.websocket.write_timeout", 5)
	v.SetDefault("server.websocket.ping_interval", 25)
	v.SetDefault("server.websocket.max_message_size", 64<<10)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")
	v.SetDefault("server.graceful_shutdown_delay", 5)

	// Storage defaults
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.dir", "data/snapshots")
	v.SetDefault("storage.keep", 5)
	v.SetDefault("storage.queue_size", 8)
	v.SetDefault("storage.resume", false)
	v.SetDefault("storage.session_id", "")

	// Event defaults
	v.SetDefault("events.log_events", true)
	v.SetDefault("events.log_event_types", []string{})
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.nats_subject", "dungeonsync.events")
	v.SetDefault("events.nats_event_types", []string{})

	v.SetDefault("monitoring.goroutine_check_interval", 30)
	v.SetDefault("monitoring.goroutine_alert_threshold", 1000)
}

// Init initializes the configuration
func Init(configPath string) error {
	v = viper.New()

	// Set defaults before loading any config
	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/dungeonsync")
	}

	// DSYNC_SERVER_HTTP_PORT overrides server.http.port
	v.SetEnvPrefix("DSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case configPath != "" && isMissingFile(err):
			// Specific file requested but not found; use defaults
		case errors.As(err, &notFound):
			// No file in the default locations; use defaults
		default:
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := Validate(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	cfg = c
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		// Initialize with defaults if not already initialized
		if err := Init(""); err != nil {
			panic("failed to initialize config with defaults: " + err.Error())
		}
	}
	return cfg
}

// GetViper returns the viper instance for advanced usage
func GetViper() *viper.Viper {
	if v == nil {
		panic("config not initialized - call Init() first")
	}
	return v
}

// LoadEnvironmentConfig merges config.<env>.yaml over the loaded config
func LoadEnvironmentConfig(env string) error {
	if env == "" {
		return nil
	}

	envFile := fmt.Sprintf("config.%s.yaml", env)
	v.SetConfigFile(envFile)
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return fmt.Errorf("error merging environment config %s: %w", envFile, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode merged config into struct: %w", err)
	}
	return Validate(cfg)
}

// Set allows runtime config updates
func Set(key string, value interface{}) {
	v.Set(key, value)
	// Re-unmarshal to update struct
	_ = v.Unmarshal(cfg)
}

// GetString gets a string value from config
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt gets an int value from config
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool gets a bool value from config
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetFloat64 gets a float64 value from config
func GetFloat64(key string) float64 {
	return v.GetFloat64(key)
}

// ConfigFilePath returns the path of the loaded config file
func ConfigFilePath() string {
	return v.ConfigFileUsed()
}

// Reloadable is the subset of settings applied to a running server on change.
type Reloadable struct {
	TickInterval time.Duration
	LogLevel     string
}

// WatchConfig enables hot-reloading of the config file. Only the tick
// interval and log level are applied live; onChange receives them after a
// valid reload. Invalid files are reported through onError and ignored.
func WatchConfig(onChange func(Reloadable), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		next := &Config{}
		if err := v.Unmarshal(next); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		if err := Validate(next); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		cfg.Game.TickIntervalMs = next.Game.TickIntervalMs
		cfg.Server.LogLevel = next.Server.LogLevel
		if onChange != nil {
			onChange(Reloadable{TickInterval: cfg.Game.TickInterval(), LogLevel: cfg.Server.LogLevel})
		}
	})
	v.WatchConfig()
}

// Validate validates the configuration values
func Validate(c *Config) error {
	// Game rules
	if c.Game.TickIntervalMs <= 0 {
		return fmt.Errorf("game.tick_interval_ms must be positive")
	}
	if c.Game.VisionRadius < 0 {
		return fmt.Errorf("game.vision_radius must be non-negative")
	}
	if c.Game.DigRate <= 0 {
		return fmt.Errorf("game.dig_rate must be positive")
	}
	if c.Game.ClaimRate <= 0 || c.Game.ClaimRate > 1 {
		return fmt.Errorf("game.claim_rate must be in (0, 1]")
	}
	if c.Game.GoldPerFullness < 0 {
		return fmt.Errorf("game.gold_per_fullness must be non-negative")
	}
	if c.Game.ResearchPointsPerTick <= 0 {
		return fmt.Errorf("game.research_points_per_tick must be positive")
	}
	if c.Game.ResearchDeliveryTicks < 0 {
		return fmt.Errorf("game.research_delivery_ticks must be non-negative")
	}
	if c.Game.AutosaveEveryTicks < 0 {
		return fmt.Errorf("game.autosave_every_ticks must be non-negative")
	}
	if c.Game.InboxSize <= 0 {
		return fmt.Errorf("game.inbox_size must be positive")
	}

	// Map
	if c.Map.LevelPath == "" {
		if c.Map.Width < 3 || c.Map.Height < 3 {
			return fmt.Errorf("map dimensions must be at least 3x3")
		}
		if c.Map.Seats < 1 || c.Map.Seats > 8 {
			return fmt.Errorf("map.seats must be between 1 and 8")
		}
		if c.Map.HumanSeats < 0 || c.Map.HumanSeats > c.Map.Seats {
			return fmt.Errorf("map.human_seats must be between 0 and map.seats")
		}
		if c.Map.StartRadius < 0 {
			return fmt.Errorf("map.start_radius must be non-negative")
		}
	}

	// Sync
	if c.Sync.MaxInFlight < 0 {
		return fmt.Errorf("sync.max_in_flight must be non-negative")
	}
	if c.Sync.CompressThreshold < 0 {
		return fmt.Errorf("sync.compress_threshold must be non-negative")
	}
	if c.Sync.OutboxSize <= 0 {
		return fmt.Errorf("sync.outbox_size must be positive")
	}

	// Server
	if c.Server.HTTP.Port <= 0 || c.Server.HTTP.Port > 65535 {
		return fmt.Errorf("server.http.port must be between 1 and 65535")
	}
	if c.Server.GRPC.Enabled && (c.Server.GRPC.Port <= 0 || c.Server.GRPC.Port > 65535) {
		return fmt.Errorf("server.grpc.port must be between 1 and 65535")
	}
	if c.Server.GRPC.Enabled && c.Server.GRPC.Port == c.Server.HTTP.Port && c.Server.GRPC.Host == c.Server.HTTP.Host {
		return fmt.Errorf("server.grpc and server.http must listen on different addresses")
	}
	if c.Server.GracefulShutdownDelay < 0 {
		return fmt.Errorf("server.graceful_shutdown_delay must be non-negative")
	}
	switch c.Server.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("server.log_format must be console or json")
	}

	// Storage
	switch c.Storage.Backend {
	case "none", "badger", "memory":
	default:
		return fmt.Errorf("storage.backend must be none, badger or memory")
	}
	if c.Storage.Keep <= 0 {
		return fmt.Errorf("storage.keep must be positive")
	}
	if c.Storage.QueueSize <= 0 {
		return fmt.Errorf("storage.queue_size must be positive")
	}
	if c.Storage.Resume && (c.Storage.Backend == "none" || c.Storage.SessionID == "") {
		return fmt.Errorf("storage.resume needs a storage backend and storage.session_id")
	}

	if c.Events.NATSURL != "" && c.Events.NATSSubject == "" {
		return fmt.Errorf("events.nats_subject is required when events.nats_url is set")
	}
	return nil
}
