package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/dungeonsync/internal/game"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/netsync"
)

type fakeEngine struct {
	mu           sync.Mutex
	sinks        map[core.SeatID]netsync.Sink
	connectErr   error
	submitErr    error
	cmds         chan core.Command
	disconnected chan core.SeatID
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		sinks:        make(map[core.SeatID]netsync.Sink),
		cmds:         make(chan core.Command, 16),
		disconnected: make(chan core.SeatID, 4),
	}
}

func (f *fakeEngine) Connect(_ context.Context, id core.SeatID, sink netsync.Sink, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.sinks[id] = sink
	return nil
}

func (f *fakeEngine) Disconnect(_ context.Context, id core.SeatID, _ string) error {
	f.mu.Lock()
	delete(f.sinks, id)
	f.mu.Unlock()
	f.disconnected <- id
	return nil
}

func (f *fakeEngine) Submit(cmd core.Command) error {
	f.mu.Lock()
	err := f.submitErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.cmds <- cmd
	return nil
}

func (f *fakeEngine) Width() int  { return 10 }
func (f *fakeEngine) Height() int { return 8 }

func (f *fakeEngine) sink(id core.SeatID) netsync.Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[id]
}

func startServer(t *testing.T, eng Engine, opts Options) (*Server, string) {
	t.Helper()
	srv := NewServer(eng, opts, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func encode(t *testing.T, cmd core.Command) []byte {
	t.Helper()
	codec, err := netsync.NewFrameCodec(0)
	require.NoError(t, err)
	defer codec.Close()
	f, err := netsync.EncodeCommand(cmd, 1)
	require.NoError(t, err)
	return codec.Encode(f)
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
		assert.Equal(t, code, ce.Code)
		return
	}
}

func TestHandler_RejectsBadSeat(t *testing.T) {
	_, url := startServer(t, newFakeEngine(), Options{})

	for _, query := range []string{"", "?seat=abc", "?seat=0", "?seat=-3"} {
		t.Run(query, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(url+"/"+query, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestServer_DeliversFrames(t *testing.T) {
	eng := newFakeEngine()
	_, url := startServer(t, eng, Options{})
	conn := dial(t, url+"/?seat=2")

	require.Eventually(t, func() bool { return eng.sink(2) != nil }, time.Second, 5*time.Millisecond)
	require.True(t, eng.sink(2).Send([]byte{1, 2, 3}))
	require.True(t, eng.sink(2).Send([]byte{4}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{1, 2, 3}, msg)
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, msg)
}

func TestServer_SubmitsCommands(t *testing.T) {
	eng := newFakeEngine()
	_, url := startServer(t, eng, Options{})
	conn := dial(t, url+"/?seat=2")

	dig := &core.DigCommand{Seat: 2, Target: core.Coordinate{X: 4, Y: 5}}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encode(t, dig)))

	select {
	case cmd := <-eng.cmds:
		got, ok := cmd.(*core.DigCommand)
		require.True(t, ok, "got %T", cmd)
		assert.Equal(t, core.SeatID(2), got.Seat)
		assert.Equal(t, core.Coordinate{X: 4, Y: 5}, got.Target)
	case <-time.After(2 * time.Second):
		t.Fatal("command was not submitted")
	}
}

func TestServer_SeatComesFromConnection(t *testing.T) {
	eng := newFakeEngine()
	_, url := startServer(t, eng, Options{})
	conn := dial(t, url+"/?seat=1")

	// The seat in the encoded command is ignored.
	claim := &core.ClaimCommand{Seat: 7, Target: core.Coordinate{X: 1, Y: 1}}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encode(t, claim)))

	select {
	case cmd := <-eng.cmds:
		assert.Equal(t, core.SeatID(1), cmd.GetSeatID())
	case <-time.After(2 * time.Second):
		t.Fatal("command was not submitted")
	}
}

func TestServer_DroppedCommandsKeepConnection(t *testing.T) {
	eng := newFakeEngine()
	eng.submitErr = core.NewError(core.KindRule, "submit", game.ErrInboxFull)
	_, url := startServer(t, eng, Options{})
	conn := dial(t, url+"/?seat=2")

	dig := &core.DigCommand{Seat: 2, Target: core.Coordinate{X: 1, Y: 1}}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encode(t, dig)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encode(t, dig)))

	require.Eventually(t, func() bool { return eng.sink(2) != nil }, time.Second, 5*time.Millisecond)
	assert.True(t, eng.sink(2).Send([]byte{9}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, msg)
}

func TestServer_ProtocolViolations(t *testing.T) {
	tests := []struct {
		name string
		send func(t *testing.T, conn *websocket.Conn)
		code int
	}{
		{
			name: "OutOfBounds",
			send: func(t *testing.T, conn *websocket.Conn) {
				dig := &core.DigCommand{Seat: 2, Target: core.Coordinate{X: 10, Y: 0}}
				require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, encode(t, dig)))
			},
			code: websocket.ClosePolicyViolation,
		},
		{
			name: "Garbage",
			send: func(t *testing.T, conn *websocket.Conn) {
				require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x01}))
			},
			code: websocket.ClosePolicyViolation,
		},
		{
			name: "TextFrame",
			send: func(t *testing.T, conn *websocket.Conn) {
				require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("dig 1 1")))
			},
			code: websocket.CloseUnsupportedData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			_, url := startServer(t, eng, Options{})
			conn := dial(t, url+"/?seat=2")

			tt.send(t, conn)
			expectClose(t, conn, tt.code)

			select {
			case id := <-eng.disconnected:
				assert.Equal(t, core.SeatID(2), id)
			case <-time.After(2 * time.Second):
				t.Fatal("seat was not disconnected")
			}
		})
	}
}

func TestServer_InboundSizeLimits(t *testing.T) {
	t.Run("MessageTooLarge", func(t *testing.T) {
		eng := newFakeEngine()
		_, url := startServer(t, eng, Options{MaxMessageSize: 1024})
		conn := dial(t, url+"/?seat=2")

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 4096)))
		expectClose(t, conn, websocket.CloseMessageTooBig)
		select {
		case <-eng.disconnected:
		case <-time.After(2 * time.Second):
			t.Fatal("seat was not disconnected")
		}
	})

	t.Run("CompressedPayloadTooLarge", func(t *testing.T) {
		eng := newFakeEngine()
		_, url := startServer(t, eng, Options{MaxDecodedSize: 4 << 10})
		conn := dial(t, url+"/?seat=2")

		codec, err := netsync.NewFrameCodec(16)
		require.NoError(t, err)
		defer codec.Close()
		payload := codec.Encode(netsync.Frame{Op: netsync.OpAckSync, Seq: 1, Payload: make([]byte, 1<<20)})
		require.Less(t, len(payload), 64<<10)

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload))
		expectClose(t, conn, websocket.ClosePolicyViolation)
		assert.Empty(t, eng.cmds)
	})
}

func TestServer_EngineEvictsSeat(t *testing.T) {
	eng := newFakeEngine()
	_, url := startServer(t, eng, Options{})
	conn := dial(t, url+"/?seat=2")
	require.Eventually(t, func() bool { return eng.sink(2) != nil }, time.Second, 5*time.Millisecond)

	eng.sink(2).Close(netsync.ClosePolicyViolation, "acknowledged sequence was never sent")
	expectClose(t, conn, websocket.ClosePolicyViolation)
	select {
	case id := <-eng.disconnected:
		assert.Equal(t, core.SeatID(2), id)
	case <-time.After(2 * time.Second):
		t.Fatal("seat was not disconnected")
	}
}

func TestServer_ConnectRefused(t *testing.T) {
	eng := newFakeEngine()
	eng.connectErr = errors.New("no such seat")
	_, url := startServer(t, eng, Options{})
	conn := dial(t, url+"/?seat=9")

	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestServer_CloseEndsConnections(t *testing.T) {
	eng := newFakeEngine()
	srv, url := startServer(t, eng, Options{})
	conn := dial(t, url+"/?seat=2")
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)

	srv.Close()
	expectClose(t, conn, websocket.CloseGoingAway)
	assert.Eventually(t, func() bool { return srv.Connections() == 0 }, time.Second, 5*time.Millisecond)

	late, _, err := websocket.DefaultDialer.Dial(url+"/?seat=1", nil)
	require.NoError(t, err)
	defer late.Close()
	expectClose(t, late, websocket.CloseGoingAway)
}

func TestClient_SendNeverBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &client{seat: 1, out: make(chan []byte, 1), cancel: cancel}

	assert.True(t, c.Send([]byte{1}))
	assert.False(t, c.Send([]byte{2}), "A full queue refuses the frame")
	assert.Error(t, ctx.Err(), "A refused frame cancels the connection")

	code, _, ok := c.closeFrame()
	require.True(t, ok)
	assert.Equal(t, websocket.CloseTryAgainLater, code)

	// The first reason wins.
	c.fail(websocket.CloseNormalClosure, "read closed")
	assert.Equal(t, "client too slow, reconnect to resync", c.reason())
}

func TestBounds(t *testing.T) {
	b := bounds{w: 3, h: 2}
	assert.True(t, b.InBounds(0, 0))
	assert.True(t, b.InBounds(2, 1))
	assert.False(t, b.InBounds(3, 1))
	assert.False(t, b.InBounds(0, -1))
}
