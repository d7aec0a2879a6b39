package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/states"
	"github.com/mitchelldurbincs/dungeonsync/internal/store"
)

// Session is the engine surface exposed over HTTP.
type Session interface {
	SessionID() string
	CurrentTick() uint64
	Phase() states.SessionPhase
	Width() int
	Height() int
	Seats(ctx context.Context) ([]game.SeatSummary, error)
	Tile(ctx context.Context, x, y int) (core.Snapshot, error)
	RenderBoard(ctx context.Context, viewer core.SeatID) (string, error)
	WriteLevel(ctx context.Context, w io.Writer, compress bool) error
	Pause(reason string) error
	Resume(reason string) error
	Stop(ctx context.Context, reason string) error
}

// Config wires the API to its collaborators. Store, WebSocket and Gatherer
// are optional.
type Config struct {
	Session        Session
	Store          store.Store
	WebSocket      http.Handler
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// Server is the admin and client-facing HTTP surface of one session.
type Server struct {
	router  *gin.Engine
	session Session
	store   store.Store
	timeout time.Duration
	logger  zerolog.Logger
}

func NewServer(cfg Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	logger := cfg.Logger.With().Str("component", "HTTPServer").Logger()
	router.Use(requestLogger(logger))

	if cfg.Registerer != nil {
		m, err := newHTTPMetrics(cfg.Registerer)
		if err != nil {
			return nil, err
		}
		router.Use(m.handler())
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	s := &Server{
		router:  router,
		session: cfg.Session,
		store:   cfg.Store,
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}

	router.GET("/health", s.handleHealth)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.WebSocket != nil {
		router.GET("/ws", gin.WrapH(cfg.WebSocket))
	}

	api := router.Group("/api")
	{
		api.GET("/session", s.handleSession)
		api.GET("/seats", s.handleSeats)
		api.GET("/tiles/:x/:y", s.handleTile)
		api.GET("/board", s.handleBoard)
		api.GET("/level", s.handleLevel)
		api.GET("/snapshots", s.handleSnapshots)
		api.POST("/pause", s.handlePause)
		api.POST("/resume", s.handleResume)
		api.POST("/stop", s.handleStop)
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// SessionInfo is the body of GET /api/session.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Tick      uint64 `json:"tick"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// TileView is the body of GET /api/tiles/:x/:y.
type TileView struct {
	X                 int     `json:"x"`
	Y                 int     `json:"y"`
	Type              string  `json:"type"`
	Fullness          float64 `json:"fullness"`
	ClaimedPercentage float64 `json:"claimed_percentage"`
	Owner             int32   `json:"owner"`
	Visual            string  `json:"visual"`
}

type controlRequest struct {
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.timeout)
}

func (s *Server) info() SessionInfo {
	return SessionInfo{
		SessionID: s.session.SessionID(),
		Phase:     s.session.Phase().String(),
		Tick:      s.session.CurrentTick(),
		Width:     s.session.Width(),
		Height:    s.session.Height(),
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	phase := s.session.Phase()
	status, code := "ok", http.StatusOK
	if phase == states.PhaseError || phase.IsTerminal() {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "phase": phase.String(), "tick": s.session.CurrentTick()})
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.info())
}

func (s *Server) handleSeats(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	seats, err := s.session.Seats(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seats)
}

func (s *Server) handleTile(c *gin.Context) {
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	if errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "coordinates must be integers"})
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	snap, err := s.session.Tile(ctx, x, y)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, TileView{
		X:                 snap.X,
		Y:                 snap.Y,
		Type:              snap.Type.String(),
		Fullness:          snap.Fullness,
		ClaimedPercentage: snap.ClaimedPercentage,
		Owner:             int32(snap.Owner),
		Visual:            snap.Visual.String(),
	})
}

func (s *Server) handleBoard(c *gin.Context) {
	viewer := core.NoSeat
	if raw := c.Query("seat"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "seat must be a positive seat id"})
			return
		}
		viewer = core.SeatID(id)
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	out, err := s.session.RenderBoard(ctx, viewer)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, out)
}

// handleLevel returns the text save. ?compress=true returns it zstd-compressed.
func (s *Server) handleLevel(c *gin.Context) {
	compress := c.Query("compress") == "true"
	ctx, cancel := s.ctx(c)
	defer cancel()

	var buf bytes.Buffer
	if err := s.session.WriteLevel(ctx, &buf, compress); err != nil {
		s.fail(c, err)
		return
	}
	contentType, name := "text/plain; charset=utf-8", s.session.SessionID()+".level"
	if compress {
		contentType, name = "application/zstd", name+".zst"
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) handleSnapshots(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "snapshot storage is disabled"})
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	ticks, err := s.store.Ticks(ctx, s.session.SessionID())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": s.session.SessionID(), "ticks": ticks, "stats": s.store.Stats()})
}

func (s *Server) handlePause(c *gin.Context) {
	s.control(c, "paused over http", func(reason string) error { return s.session.Pause(reason) })
}

func (s *Server) handleResume(c *gin.Context) {
	s.control(c, "resumed over http", func(reason string) error { return s.session.Resume(reason) })
}

func (s *Server) handleStop(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	s.control(c, "stopped over http", func(reason string) error { return s.session.Stop(ctx, reason) })
}

func (s *Server) control(c *gin.Context, fallback string, fn func(reason string) error) {
	var req controlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = fallback
	}
	if err := fn(req.Reason); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info().Str("reason", req.Reason).Str("path", c.FullPath()).Msg("Session control request applied")
	c.JSON(http.StatusOK, s.info())
}

// fail maps engine errors onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case core.IsKind(err, core.KindProtocol):
		code = http.StatusBadRequest
	case errors.Is(err, states.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, game.ErrEngineNotRunning):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code >= 500 {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(code, errorResponse{Error: err.Error()})
}
