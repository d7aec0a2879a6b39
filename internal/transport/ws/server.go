package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/netsync"
)

// Engine is the part of a session a client connection needs.
type Engine interface {
	Connect(ctx context.Context, id core.SeatID, sink netsync.Sink, connID string) error
	Disconnect(ctx context.Context, id core.SeatID, connID string) error
	Submit(cmd core.Command) error
	Width() int
	Height() int
}

// Options configures the websocket server.
type Options struct {
	// QueueSize bounds the frames waiting for the socket writer. A seat that
	// falls further behind is dropped and must reconnect for a resync.
	QueueSize         int
	CompressThreshold int
	// MaxMessageSize bounds one inbound websocket message. Larger messages
	// close the connection with 1009.
	MaxMessageSize int64
	// MaxDecodedSize bounds an inbound compressed payload once inflated.
	MaxDecodedSize uint64
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	CheckOrigin       func(r *http.Request) bool
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		QueueSize:         256,
		CompressThreshold: 1024,
		MaxMessageSize:    64 << 10,
		MaxDecodedSize:    256 << 10,
		WriteTimeout:      5 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      25 * time.Second,
	}
}

// Server upgrades HTTP requests into seat connections. Each connection has a
// reader goroutine that decodes commands and a writer goroutine that drains
// the frames the tick loop hands to its sink.
type Server struct {
	engine   Engine
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewServer(engine Engine, opts Options, logger zerolog.Logger) *Server {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if opts.MaxDecodedSize == 0 {
		opts.MaxDecodedSize = def.MaxDecodedSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Server{
		engine: engine,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger.With().Str("component", "WebSocketServer").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// Close ends every open connection with a going-away frame. Hijacked
// connections are not closed by http.Server.Shutdown, so callers shut the
// HTTP server down first and then call Close.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.fail(websocket.CloseGoingAway, "server shutting down")
	}
}

// Connections returns the number of open seat connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) track(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// bounds is a fixed-size stand-in for the board so command decoding never
// reads tile state off the tick goroutine.
type bounds struct{ w, h int }

func (b bounds) InBounds(x, y int) bool { return x >= 0 && y >= 0 && x < b.w && y < b.h }

// Handler serves /ws?seat=N.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.URL.Query().Get("seat"))
		if err != nil || id <= 0 {
			http.Error(rw, "seat query parameter must be a positive seat id", http.StatusBadRequest)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}
		s.serve(conn, core.SeatID(id))
	}
}

func (s *Server) serve(conn *websocket.Conn, id core.SeatID) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &client{
		seat:   id,
		connID: uuid.NewString(),
		out:    make(chan []byte, s.opts.QueueSize),
		cancel: cancel,
	}
	logger := s.logger.With().Int32("seat_id", int32(id)).Str("conn_id", c.connID).Logger()

	if !s.track(c) {
		closeWith(conn, websocket.CloseGoingAway, "server shutting down", s.opts.WriteTimeout)
		return
	}
	defer s.untrack(c)

	if err := s.engine.Connect(ctx, id, c, c.connID); err != nil {
		logger.Warn().Err(err).Msg("Seat connection refused")
		closeWith(conn, websocket.ClosePolicyViolation, err.Error(), s.opts.WriteTimeout)
		return
	}
	logger.Info().Msg("Seat connected")
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		defer dcancel()
		if err := s.engine.Disconnect(dctx, id, c.connID); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.Debug().Err(err).Msg("Disconnect after close")
		}
		logger.Info().Str("reason", c.reason()).Msg("Seat disconnected")
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, c, logger)
	}()

	s.readLoop(ctx, conn, c, logger)
	cancel()
	<-writerDone
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client, logger zerolog.Logger) {
	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			if code, text, ok := c.closeFrame(); ok {
				closeWith(conn, code, text, s.opts.WriteTimeout)
			}
			// Unblock the reader.
			_ = conn.SetReadDeadline(time.Now())
			return
		case frame := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logger.Debug().Err(err).Msg("Write failed")
				c.fail(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				c.fail(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client, logger zerolog.Logger) {
	codec, err := netsync.NewFrameCodec(s.opts.CompressThreshold, netsync.WithMaxDecodedSize(s.opts.MaxDecodedSize))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create frame codec")
		c.fail(websocket.CloseInternalServerErr, "codec unavailable")
		return
	}
	defer codec.Close()

	b := bounds{w: s.engine.Width(), h: s.engine.Height()}
	conn.SetReadLimit(s.opts.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})

	for ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		msgType, msg, err := conn.ReadMessage()
		if errors.Is(err, websocket.ErrReadLimit) {
			logger.Warn().Int64("limit", s.opts.MaxMessageSize).Msg("Inbound message too large, closing connection")
			c.fail(websocket.CloseMessageTooBig, "message too large")
			return
		}
		if err != nil {
			c.fail(websocket.CloseNormalClosure, "read closed")
			return
		}
		if msgType != websocket.BinaryMessage {
			c.fail(websocket.CloseUnsupportedData, "binary frames only")
			return
		}

		cmd, err := decode(codec, c.seat, msg, b)
		if err != nil {
			// Protocol violations end the connection.
			logger.Warn().Err(err).Msg("Protocol violation, closing connection")
			c.fail(websocket.ClosePolicyViolation, err.Error())
			return
		}
		if err := s.engine.Submit(cmd); err != nil {
			if errors.Is(err, game.ErrInboxFull) || errors.Is(err, game.ErrSessionNotRunning) {
				logger.Debug().Err(err).Str("command", cmd.GetType().String()).Msg("Command dropped")
				continue
			}
			c.fail(websocket.CloseGoingAway, err.Error())
			return
		}
	}
}

func decode(codec *netsync.FrameCodec, id core.SeatID, msg []byte, b netsync.Bounds) (core.Command, error) {
	f, err := codec.Decode(msg)
	if err != nil {
		return nil, err
	}
	cmd, err := netsync.DecodeCommand(id, f, b)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", f.Seq, err)
	}
	return cmd, nil
}

func closeWith(conn *websocket.Conn, code int, text string, timeout time.Duration) {
	if len(text) > 120 {
		text = text[:120]
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(timeout))
}

// client is the netsync.Sink for one connection. Send is called on the tick
// goroutine and never blocks.
type client struct {
	seat   core.SeatID
	connID string
	out    chan []byte
	cancel context.CancelFunc

	mu        sync.Mutex
	failed    bool
	closeCode int
	closeText string
}

func (c *client) Send(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	default:
		c.fail(websocket.CloseTryAgainLater, "client too slow, reconnect to resync")
		return false
	}
}

// Close is called on the tick goroutine when the engine evicts the seat.
func (c *client) Close(code int, reason string) { c.fail(code, reason) }

// fail records the first close reason and cancels the connection.
func (c *client) fail(code int, text string) {
	c.mu.Lock()
	if !c.failed {
		c.failed = true
		c.closeCode = code
		c.closeText = text
	}
	c.mu.Unlock()
	c.cancel()
}

func (c *client) closeFrame() (int, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.failed || c.closeCode == websocket.CloseAbnormalClosure {
		return 0, "", false
	}
	return c.closeCode, c.closeText, true
}

func (c *client) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.failed {
		return "server shutdown"
	}
	return c.closeText
}
