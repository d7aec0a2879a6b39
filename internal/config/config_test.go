package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	cfg = nil
	v = nil
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInit(t *testing.T) {
	configFile := writeConfig(t, t.TempDir(), "config.yaml", `
game:
  tick_interval_ms: 50
  vision_radius: 7
map:
  width: 64
  height: 40
  seats: 4
  human_seats: 2
server:
  http:
    port: 9000
storage:
  backend: badger
  dir: /tmp/snaps
events:
  nats_url: nats://localhost:4222
`)
	reset()
	require.NoError(t, Init(configFile))

	c := Get()
	assert.Equal(t, 50*time.Millisecond, c.Game.TickInterval())
	assert.Equal(t, 7, c.Game.VisionRadius)
	assert.Equal(t, 64, c.Map.Width)
	assert.Equal(t, 4, c.Map.Seats)
	assert.Equal(t, 2, c.Map.HumanSeats)
	assert.Equal(t, "0.0.0.0:9000", c.Server.HTTP.Addr())
	assert.Equal(t, "badger", c.Storage.Backend)
	assert.Equal(t, "/tmp/snaps", c.Storage.Dir)
	assert.Equal(t, "dungeonsync.events", c.Events.NATSSubject, "Unset keys keep their defaults")
	assert.Equal(t, configFile, ConfigFilePath())
}

func TestInitWithDefaults(t *testing.T) {
	reset()
	require.NoError(t, Init("/non/existent/path/config.yaml"))

	c := Get()
	assert.Equal(t, 100*time.Millisecond, c.Game.TickInterval())
	assert.Equal(t, 20.0, c.Game.DigRate)
	assert.Equal(t, 0.25, c.Game.ClaimRate)
	assert.Equal(t, 48, c.Map.Width)
	assert.Equal(t, 32, c.Map.Height)
	assert.Equal(t, 64, c.Sync.MaxInFlight)
	assert.Equal(t, 50051, c.Server.GRPC.Port)
	assert.Equal(t, int64(64<<10), c.Server.WebSocket.MaxMessageSize)
	assert.Equal(t, "none", c.Storage.Backend)
	assert.Equal(t, 5, c.Storage.Keep)
	assert.True(t, c.Events.LogEvents)
}

func TestInitRejectsMalformedFile(t *testing.T) {
	configFile := writeConfig(t, t.TempDir(), "config.yaml", "game: [unclosed")
	reset()
	assert.Error(t, Init(configFile))
}

func TestEnvironmentVariables(t *testing.T) {
	reset()
	t.Setenv("DSYNC_MAP_WIDTH", "30")
	t.Setenv("DSYNC_SERVER_HTTP_PORT", "9090")
	t.Setenv("DSYNC_STORAGE_BACKEND", "memory")

	require.NoError(t, Init(""))

	c := Get()
	assert.Equal(t, 30, c.Map.Width)
	assert.Equal(t, 9090, c.Server.HTTP.Port)
	assert.Equal(t, "memory", c.Storage.Backend)
}

func TestSet(t *testing.T) {
	reset()
	require.NoError(t, Init(""))

	Set("map.width", 35)
	Set("game.vision_radius", 9)

	c := Get()
	assert.Equal(t, 35, c.Map.Width)
	assert.Equal(t, 9, c.Game.VisionRadius)
}

func TestGetHelpers(t *testing.T) {
	reset()
	require.NoError(t, Init(""))

	Set("test.string", "hello")
	Set("test.int", 42)
	Set("test.bool", true)
	Set("test.float", 3.14)

	assert.Equal(t, "hello", GetString("test.string"))
	assert.Equal(t, 42, GetInt("test.int"))
	assert.Equal(t, true, GetBool("test.bool"))
	assert.Equal(t, 3.14, GetFloat64("test.float"))
	assert.NotNil(t, GetViper())
}

func TestLoadEnvironmentConfig(t *testing.T) {
	tmpDir := t.TempDir()
	baseConfig := writeConfig(t, tmpDir, "config.yaml", `
map:
  width: 20
server:
  http:
    port: 8080
`)
	writeConfig(t, tmpDir, "config.prod.yaml", `
map:
  width: 30
server:
  log_level: error
  log_format: json
`)

	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldWd) }()

	reset()
	require.NoError(t, Init(baseConfig))
	require.NoError(t, LoadEnvironmentConfig("prod"))

	c := Get()
	assert.Equal(t, 30, c.Map.Width)
	assert.Equal(t, 8080, c.Server.HTTP.Port)
	assert.Equal(t, "error", c.Server.LogLevel)
	assert.Equal(t, "json", c.Server.LogFormat)

	assert.NoError(t, LoadEnvironmentConfig("staging"), "A missing overlay is not an error")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ZeroTick", func(c *Config) { c.Game.TickIntervalMs = 0 }},
		{"ClaimRateAboveOne", func(c *Config) { c.Game.ClaimRate = 1.5 }},
		{"NoDigRate", func(c *Config) { c.Game.DigRate = 0 }},
		{"TinyMap", func(c *Config) { c.Map.Width = 2 }},
		{"TooManySeats", func(c *Config) { c.Map.Seats = 9 }},
		{"MoreHumansThanSeats", func(c *Config) { c.Map.HumanSeats = 3 }},
		{"BadPort", func(c *Config) { c.Server.HTTP.Port = 70000 }},
		{"SharedPort", func(c *Config) { c.Server.GRPC.Port = c.Server.HTTP.Port }},
		{"BadLogFormat", func(c *Config) { c.Server.LogFormat = "xml" }},
		{"UnknownBackend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"ZeroKeep", func(c *Config) { c.Storage.Keep = 0 }},
		{"ResumeWithoutStore", func(c *Config) { c.Storage.Resume = true; c.Storage.SessionID = "abc" }},
		{"ResumeWithoutSession", func(c *Config) { c.Storage.Resume = true; c.Storage.Backend = "badger" }},
		{"NATSWithoutSubject", func(c *Config) { c.Events.NATSURL = "nats://x"; c.Events.NATSSubject = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			require.NoError(t, Init(""))
			c := *Get()
			require.NoError(t, Validate(&c))
			tt.mutate(&c)
			assert.Error(t, Validate(&c))
		})
	}

	t.Run("LevelPathSkipsMapChecks", func(t *testing.T) {
		reset()
		require.NoError(t, Init(""))
		c := *Get()
		c.Map.LevelPath = "maps/arena.level"
		c.Map.Width = 0
		assert.NoError(t, Validate(&c))
	})
}
