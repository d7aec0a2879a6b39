package netsync

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

var (
	ErrNotConnected = errors.New("seat has no live connection")
	ErrAckAhead     = errors.New("acknowledged sequence was never sent")
)

// ClosePolicyViolation is the websocket close code sent to a seat evicted
// for breaking the protocol.
const ClosePolicyViolation = 1008

// Sink receives encoded frames for one seat. Send must not block; it returns
// false when the frame cannot be accepted. Close ends the underlying
// connection with a close code and reason and must not block either.
type Sink interface {
	Send(frame []byte) bool
	Close(code int, reason string)
}

// Options configures a Syncer.
type Options struct {
	SessionID string
	// MaxInFlight is the number of unacknowledged frames after which tile
	// deltas are deferred. Zero disables flow control.
	MaxInFlight       int
	CompressThreshold int
	// Editor sessions replicate fullness instead of visuals.
	Editor bool
}

// Stats counts what one Collect pass produced.
type Stats struct {
	Frames        int
	TilesSent     int
	DeferredSeats int
}

type seatConn struct {
	seat           *seat.Seat
	sink           Sink
	outbox         Outbox
	nextSeq        uint32
	acked          uint32
	lastRecord     []byte
	researchDirty  bool
	pendingRejects []Rejection
}

func (c *seatConn) inFlight() uint32 { return c.nextSeq - 1 - c.acked }

// Syncer turns per-tick state changes into per-seat frames. It is owned by
// the tick goroutine; only Deliver's sinks leave it.
type Syncer struct {
	board  *core.Board
	seats  *seat.Registry
	vision *seat.VisionModel
	codec  *FrameCodec
	opts   Options
	conns  map[core.SeatID]*seatConn
	logger zerolog.Logger
}

func NewSyncer(board *core.Board, seats *seat.Registry, vision *seat.VisionModel, opts Options, logger zerolog.Logger) (*Syncer, error) {
	codec, err := NewFrameCodec(opts.CompressThreshold)
	if err != nil {
		return nil, err
	}
	return &Syncer{
		board:  board,
		seats:  seats,
		vision: vision,
		codec:  codec,
		opts:   opts,
		conns:  make(map[core.SeatID]*seatConn),
		logger: logger.With().Str("component", "Syncer").Logger(),
	}, nil
}

func (sy *Syncer) Close() { sy.codec.Close() }

// Connect attaches sink to seat id, replacing any previous connection. Every
// tile is marked dirty for the seat and its vision is forgotten so the next
// tick sends a full resync.
func (sy *Syncer) Connect(id core.SeatID, sink Sink) error {
	s := sy.seats.Get(id)
	if s == nil {
		return core.NewError(core.KindInvariant, "connect", fmt.Errorf("%w: %d", core.ErrInvalidSeat, id))
	}
	if err := sy.board.MarkAllDirty(s.Slot()); err != nil {
		return core.NewError(core.KindInvariant, "connect", err)
	}
	sy.vision.Forget(id)

	c := &seatConn{seat: s, sink: sink, nextSeq: 1, researchDirty: true}
	sy.conns[id] = c
	sy.queue(c, OpSessionInfo, EncodeSessionInfo(SessionInfo{
		SessionID: sy.opts.SessionID,
		Seat:      id,
		Width:     sy.board.W,
		Height:    sy.board.H,
		Editor:    sy.opts.Editor,
	}))
	sy.logger.Info().Int32("seat_id", int32(id)).Msg("Seat connected, full resync scheduled")
	return nil
}

// Disconnect drops the seat's connection and anything still queued for it.
func (sy *Syncer) Disconnect(id core.SeatID) {
	c, ok := sy.conns[id]
	if !ok {
		return
	}
	dropped := c.outbox.Len()
	c.outbox.Drop()
	delete(sy.conns, id)
	sy.logger.Info().Int32("seat_id", int32(id)).Int("dropped_frames", dropped).Msg("Seat disconnected")
}

// Evict disconnects a seat that broke the protocol and closes its sink with
// ClosePolicyViolation. It reports whether the seat was connected.
func (sy *Syncer) Evict(id core.SeatID, reason string) bool {
	c, ok := sy.conns[id]
	if !ok {
		return false
	}
	sy.Disconnect(id)
	c.sink.Close(ClosePolicyViolation, reason)
	sy.logger.Warn().Int32("seat_id", int32(id)).Str("reason", reason).Msg("Seat evicted for protocol violation")
	return true
}

func (sy *Syncer) Connected(id core.SeatID) bool {
	_, ok := sy.conns[id]
	return ok
}

// Ack records that the seat has received every frame up to seq. Stale acks
// are ignored; acks for frames never sent are protocol errors.
func (sy *Syncer) Ack(id core.SeatID, seq uint32) error {
	c, ok := sy.conns[id]
	if !ok {
		return core.NewError(core.KindInvariant, "ack sync", ErrNotConnected)
	}
	if seq >= c.nextSeq {
		return core.NewError(core.KindProtocol, "ack sync", fmt.Errorf("%w: %d, last sent %d", ErrAckAhead, seq, c.nextSeq-1))
	}
	if seq > c.acked {
		c.acked = seq
	}
	return nil
}

// InFlight returns the number of frames sent to id and not yet acknowledged.
func (sy *Syncer) InFlight(id core.SeatID) int {
	c, ok := sy.conns[id]
	if !ok {
		return 0
	}
	return int(c.inFlight())
}

// MarkResearchChanged schedules research tree and research done messages.
func (sy *Syncer) MarkResearchChanged(id core.SeatID) {
	if c, ok := sy.conns[id]; ok {
		c.researchDirty = true
	}
}

// Reject tells the seat one of its commands was refused.
func (sy *Syncer) Reject(id core.SeatID, rej Rejection) {
	if c, ok := sy.conns[id]; ok {
		c.pendingRejects = append(c.pendingRejects, rej)
	}
}

func (sy *Syncer) queue(c *seatConn, op Opcode, payload []byte) {
	c.outbox.Push(sy.codec.Encode(Frame{Op: op, Seq: c.nextSeq, Payload: payload}))
	c.nextSeq++
}

// Collect queues this tick's frames for every connected seat: vision changes
// first, then tiles that are both dirty and visible, then seat and research
// state. A tile's dirty flag is cleared exactly when it is queued.
func (sy *Syncer) Collect(diffs []seat.VisionDiff) Stats {
	byID := make(map[core.SeatID]seat.VisionDiff, len(diffs))
	for _, d := range diffs {
		byID[d.Seat] = d
	}

	var st Stats
	for _, s := range sy.seats.SortedByID() {
		c, ok := sy.conns[s.ID]
		if !ok {
			continue
		}
		before := c.outbox.Len()

		if d, ok := byID[s.ID]; ok && !d.Empty() {
			sy.queue(c, OpVisionChanged, EncodeVisionChanged(sy.board, d.Gained, d.Lost))
		}

		if sy.opts.MaxInFlight > 0 && int(c.inFlight()) >= sy.opts.MaxInFlight {
			st.DeferredSeats++
			sy.logger.Debug().
				Int32("seat_id", int32(s.ID)).
				Uint32("in_flight", c.inFlight()).
				Msg("Tile deltas deferred until the seat acknowledges")
		} else {
			st.TilesSent += sy.queueTiles(c)
		}

		if record := EncodeSeat(s); !bytes.Equal(record, c.lastRecord) {
			sy.queue(c, OpSeatRefresh, record)
			c.lastRecord = record
		}
		if c.researchDirty {
			sy.queue(c, OpResearchTree, EncodeResearchList(s.Research.Pending()))
			sy.queue(c, OpResearchDone, EncodeResearchList(s.Research.Done()))
			c.researchDirty = false
		}
		for _, rej := range c.pendingRejects {
			sy.queue(c, OpCommandRejected, EncodeRejection(rej))
		}
		c.pendingRejects = c.pendingRejects[:0]

		st.Frames += c.outbox.Len() - before
	}
	return st
}

func (sy *Syncer) queueTiles(c *seatConn) int {
	slot := c.seat.Slot()
	var idxs []int
	for i := range sy.board.T {
		if sy.board.T[i].IsDirty(slot) && sy.vision.CanSee(c.seat.ID, i) {
			idxs = append(idxs, i)
		}
	}
	if len(idxs) == 0 {
		return 0
	}

	if sy.opts.Editor {
		sy.queue(c, OpMapTiles, EncodeMapTiles(sy.board, idxs))
	} else {
		sy.queue(c, OpRefreshTiles, EncodeRefreshTiles(sy.board, idxs))
	}
	for _, idx := range idxs {
		sy.board.ClearDirty(idx, slot)
	}
	return len(idxs)
}

// Deliver hands queued frames to each seat's sink. A seat whose sink refuses a
// frame is disconnected, since its dirty flags were already cleared; it gets a
// full resync when it reconnects. The dropped seats are returned.
func (sy *Syncer) Deliver() []core.SeatID {
	var dropped []core.SeatID
	for _, s := range sy.seats.SortedByID() {
		c, ok := sy.conns[s.ID]
		if !ok {
			continue
		}
		if !c.outbox.DeliverTo(c.sink) {
			sy.logger.Warn().Int32("seat_id", int32(s.ID)).Msg("Seat sink overflowed, dropping connection")
			sy.Disconnect(s.ID)
			dropped = append(dropped, s.ID)
		}
	}
	return dropped
}

// Outbox is a seat's queue of encoded frames awaiting delivery.
type Outbox struct {
	frames [][]byte
}

func (o *Outbox) Push(frame []byte) { o.frames = append(o.frames, frame) }
func (o *Outbox) Len() int          { return len(o.frames) }

// Frames returns the queued frames without removing them.
func (o *Outbox) Frames() [][]byte { return o.frames }

// DeliverTo sends frames in order and empties the outbox. It stops at the
// first refused frame and reports false.
func (o *Outbox) DeliverTo(sink Sink) bool {
	defer o.Drop()
	for _, f := range o.frames {
		if !sink.Send(f) {
			return false
		}
	}
	return true
}

func (o *Outbox) Drop() {
	clear(o.frames)
	o.frames = o.frames[:0]
}
