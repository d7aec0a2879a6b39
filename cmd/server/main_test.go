package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mitchelldurbincs/dungeonsync/internal/config"
	"github.com/mitchelldurbincs/dungeonsync/internal/game"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/store"
)

func loadDefaults(t *testing.T) *config.Config {
	t.Helper()
	require.NoError(t, config.Init(filepath.Join(t.TempDir(), "missing.yaml")))
	c := *config.Get()
	return &c
}

func TestGameConfig_Generated(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Map.Seed = 42
	cfg.Map.Seats = 3

	gc, err := gameConfig(context.Background(), cfg, research.DefaultCatalog(), store.NullStore{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, gc.Level)
	assert.Equal(t, int64(42), gc.Map.Seed)
	assert.Equal(t, 3, gc.Map.SeatCount)
	assert.Equal(t, cfg.Map.StartRadius, gc.Map.StartRadius)
	assert.Equal(t, 100*time.Millisecond, gc.TickInterval)
	assert.Equal(t, cfg.Game.DigRate, gc.Rates.Dig)
	assert.Equal(t, int32(cfg.Game.ResearchPointsPerTick), gc.ResearchPointsPerTick)
}

func TestGameConfig_LevelSources(t *testing.T) {
	ctx := context.Background()
	e, err := game.NewEngine(ctx, game.GameConfig{SessionID: "saved", Logger: zerolog.Nop()})
	require.NoError(t, err)
	plain := filepath.Join(t.TempDir(), "saved.level")
	require.NoError(t, e.SaveFile(ctx, plain, false))
	compressed := filepath.Join(t.TempDir(), "saved.level.zst")
	require.NoError(t, e.SaveFile(ctx, compressed, true))

	snapshots, err := store.OpenBadger("", 2, zerolog.Nop())
	require.NoError(t, err)
	defer snapshots.Close()

	cfg := loadDefaults(t)
	cfg.Storage.Resume = true
	cfg.Storage.SessionID = "saved"

	_, err = gameConfig(ctx, cfg, research.DefaultCatalog(), snapshots, zerolog.Nop())
	assert.ErrorIs(t, err, store.ErrNotFound, "Nothing stored yet")

	data, err := os.ReadFile(compressed)
	require.NoError(t, err)
	require.NoError(t, snapshots.Put(ctx, store.Snapshot{SessionID: "saved", Tick: 5, Data: data}))

	gc, err := gameConfig(ctx, cfg, research.DefaultCatalog(), snapshots, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, gc.Level)
	assert.Equal(t, "snapshot:5", gc.Source)
	assert.Equal(t, "saved", gc.SessionID)

	cfg.Storage.Resume = false
	cfg.Storage.SessionID = ""
	cfg.Map.LevelPath = plain
	gc, err = gameConfig(ctx, cfg, research.DefaultCatalog(), snapshots, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, gc.Level)
	assert.Equal(t, plain, gc.Source)
	assert.Equal(t, e.Width(), gc.Level.Board.W)
}

func TestAdminServer_Health(t *testing.T) {
	admin, err := newAdminServer(config.GRPCConfig{Enabled: true, Host: "127.0.0.1", Port: 0}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, admin)
	go func() { _ = admin.serve() }()
	defer admin.stop()

	conn, err := grpc.NewClient(admin.lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: sessionService})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	admin.setServing(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestAdminServer_Disabled(t *testing.T) {
	admin, err := newAdminServer(config.GRPCConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, admin)
	assert.NoError(t, admin.serve())
	admin.setServing(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	admin.stop()
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}
