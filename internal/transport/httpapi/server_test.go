package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/dungeonsync/internal/game"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/mapgen"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/states"
	"github.com/mitchelldurbincs/dungeonsync/internal/store"
)

func startEngine(t *testing.T) *game.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e, err := game.NewEngine(ctx, game.GameConfig{
		SessionID:    "http-test",
		Map:          mapgen.DefaultMapConfig(24, 18, 2, 7),
		TickInterval: 5 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServer_ReadEndpoints(t *testing.T) {
	e := startEngine(t)
	h := newTestServer(t, Config{Session: e})

	t.Run("Health", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("Session", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/session", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		info := decodeJSON[SessionInfo](t, rec)
		assert.Equal(t, "http-test", info.SessionID)
		assert.Equal(t, 24, info.Width)
		assert.Equal(t, 18, info.Height)
		assert.Equal(t, states.PhaseRunning.String(), info.Phase)
	})

	t.Run("Seats", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/seats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		seats := decodeJSON[[]game.SeatSummary](t, rec)
		require.Len(t, seats, 2)
		assert.Equal(t, core.SeatID(1), seats[0].ID)
		assert.Positive(t, seats[0].ClaimedTiles)
	})

	t.Run("Tile", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/tiles/0/0", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		tile := decodeJSON[TileView](t, rec)
		assert.Equal(t, core.TypeRock.String(), tile.Type, "The map border is rock")
		assert.Equal(t, int32(core.NoSeat), tile.Owner)
	})

	t.Run("TileOutOfBounds", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/tiles/99/0", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("TileNotANumber", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/tiles/x/0", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Board", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/board?seat=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "A")

		rec = do(t, h, http.MethodGet, "/api/board?seat=zero", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Level", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/level", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		plain := rec.Body.Bytes()
		assert.NotEmpty(t, plain)

		rec = do(t, h, http.MethodGet, "/api/level?compress=true", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/zstd", rec.Header().Get("Content-Type"))
		dec, err := zstd.NewReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer dec.Close()
		inflated, err := io.ReadAll(dec)
		require.NoError(t, err)
		assert.NotEmpty(t, inflated)
	})

	t.Run("SnapshotsDisabled", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/snapshots", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_Control(t *testing.T) {
	e := startEngine(t)
	h := newTestServer(t, Config{Session: e})

	rec := do(t, h, http.MethodPost, "/api/pause", strings.NewReader(`{"reason":"maintenance"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, states.PhasePaused, e.Phase())

	rec = do(t, h, http.MethodPost, "/api/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "Pausing twice is an invalid transition")

	rec = do(t, h, http.MethodPost, "/api/resume", strings.NewReader(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, states.PhaseRunning, e.Phase())

	rec = do(t, h, http.MethodPost, "/api/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, states.PhaseEnded, e.Phase())

	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Snapshots(t *testing.T) {
	e := startEngine(t)
	st, err := store.OpenBadger("", 3, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	for tick := uint64(1); tick <= 4; tick++ {
		require.NoError(t, st.Put(ctx, store.Snapshot{SessionID: "http-test", Tick: tick, Data: []byte("x")}))
	}

	h := newTestServer(t, Config{Session: e, Store: st})
	rec := do(t, h, http.MethodGet, "/api/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON[struct {
		SessionID string      `json:"session_id"`
		Ticks     []uint64    `json:"ticks"`
		Stats     store.Stats `json:"stats"`
	}](t, rec)
	assert.Equal(t, []uint64{2, 3, 4}, body.Ticks)
	assert.Equal(t, int64(4), body.Stats.TotalWritten)
}

func TestServer_MetricsAndWebSocketMount(t *testing.T) {
	e := startEngine(t)
	reg := prometheus.NewRegistry()
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := newTestServer(t, Config{Session: e, Registerer: reg, Gatherer: reg, WebSocket: ws})

	do(t, h, http.MethodGet, "/api/session", nil)
	do(t, h, http.MethodGet, "/nope", nil)

	rec := do(t, h, http.MethodGet, "/ws?seat=1", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dungeonsync_http_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), `path="unmatched"`)
}

type failingSession struct {
	Session
	err error
}

func (f failingSession) SessionID() string          { return "failing" }
func (f failingSession) Phase() states.SessionPhase { return states.PhaseRunning }
func (f failingSession) CurrentTick() uint64        { return 0 }

func (f failingSession) Seats(context.Context) ([]game.SeatSummary, error) { return nil, f.err }

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"EngineStopped", game.ErrEngineNotRunning, http.StatusServiceUnavailable},
		{"Timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"Protocol", core.NewError(core.KindProtocol, "tile", core.ErrInvalidCoordinates), http.StatusBadRequest},
		{"Transition", states.ErrInvalidTransition, http.StatusConflict},
		{"Other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, Config{Session: failingSession{err: tt.err}})
			rec := do(t, h, http.MethodGet, "/api/seats", nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.err.Error())
		})
	}
}
