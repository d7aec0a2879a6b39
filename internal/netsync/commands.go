package netsync

import (
	"fmt"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

// EncodeCommand builds the frame a client sends for cmd.
func EncodeCommand(cmd core.Command, seq uint32) (Frame, error) {
	w := NewWriter(16)
	var op Opcode
	switch c := cmd.(type) {
	case *core.DigCommand:
		op = OpDig
		w.PutInt(c.Target.X)
		w.PutInt(c.Target.Y)
	case *core.ClaimCommand:
		op = OpClaim
		w.PutInt(c.Target.X)
		w.PutInt(c.Target.Y)
	case *core.ToggleFullnessCommand:
		op = OpToggleFullness
		w.PutInt(c.Target.X)
		w.PutInt(c.Target.Y)
	case *core.SetResearchTreeCommand:
		op = OpSetResearchTree
		w.PutUint32(uint32(len(c.Pending)))
		for _, v := range c.Pending {
			w.PutUint32(v)
		}
	case *core.AckSyncCommand:
		op = OpAckSync
		w.PutUint32(c.Sequence)
	default:
		return Frame{}, fmt.Errorf("no wire encoding for %T", cmd)
	}
	return Frame{Op: op, Seq: seq, Payload: w.Bytes()}, nil
}

// Bounds reports whether a coordinate lies on the board. *core.Board
// implements it; transports use a fixed-size stand-in so decoding never
// touches live tile state.
type Bounds interface {
	InBounds(x, y int) bool
}

// DecodeCommand turns an inbound frame from seat into a command. Anything
// malformed, including coordinates outside the board and unknown research
// ordinals, is a protocol error and the connection should be dropped.
func DecodeCommand(s core.SeatID, f Frame, board Bounds) (core.Command, error) {
	r := NewReader(f.Payload)
	target := func() core.Coordinate {
		c := core.Coordinate{X: r.Int(), Y: r.Int()}
		if r.Err() == nil && !board.InBounds(c.X, c.Y) {
			r.err = protocolError("decode command", fmt.Errorf("%w: %s", core.ErrInvalidCoordinates, c))
		}
		return c
	}

	var cmd core.Command
	switch f.Op {
	case OpDig:
		cmd = &core.DigCommand{Seat: s, Target: target()}
	case OpClaim:
		cmd = &core.ClaimCommand{Seat: s, Target: target()}
	case OpToggleFullness:
		cmd = &core.ToggleFullnessCommand{Seat: s, Target: target()}
	case OpSetResearchTree:
		list, err := readResearchList(r)
		if err != nil {
			return nil, err
		}
		pending := make([]uint32, len(list))
		for i, rt := range list {
			pending[i] = uint32(rt)
		}
		cmd = &core.SetResearchTreeCommand{Seat: s, Pending: pending}
	case OpAckSync:
		cmd = &core.AckSyncCommand{Seat: s, Sequence: r.Uint32()}
	default:
		return nil, protocolError("decode command", fmt.Errorf("opcode %s is not a command", f.Op))
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return cmd, nil
}
