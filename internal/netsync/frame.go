package netsync

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Opcode identifies a message. The high bit marks a zstd-compressed payload.
type Opcode uint32

// Server to seat.
const (
	OpSessionInfo Opcode = iota + 1
	OpMapTiles
	OpRefreshTiles
	OpVisionChanged
	OpSeatRefresh
	OpResearchTree
	OpResearchDone
	OpCommandRejected
)

// Seat to server.
const (
	OpDig Opcode = iota + 100
	OpClaim
	OpToggleFullness
	OpSetResearchTree
	OpAckSync
)

const opCompressed Opcode = 1 << 31

var opcodeNames = map[Opcode]string{
	OpSessionInfo:     "session_info",
	OpMapTiles:        "map_tiles",
	OpRefreshTiles:    "refresh_tiles",
	OpVisionChanged:   "vision_changed",
	OpSeatRefresh:     "seat_refresh",
	OpResearchTree:    "research_tree",
	OpResearchDone:    "research_done",
	OpCommandRejected: "command_rejected",
	OpDig:             "dig",
	OpClaim:           "claim",
	OpToggleFullness:  "toggle_fullness",
	OpSetResearchTree: "set_research_tree",
	OpAckSync:         "ack_sync",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint32(o))
}

// Known reports whether o is a defined opcode.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// Frame is one wire message: opcode, sequence number and payload.
type Frame struct {
	Op      Opcode
	Seq     uint32
	Payload []byte
}

const frameHeaderSize = 8

// DefaultMaxDecodedSize caps the inflated size of one compressed payload.
const DefaultMaxDecodedSize = 8 << 20

// FrameCodec turns frames into bytes and back. Payloads larger than the
// threshold are compressed with zstd. A codec is not safe for concurrent
// use; give each goroutine its own.
type FrameCodec struct {
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

type codecOptions struct {
	maxDecoded uint64
}

// CodecOption adjusts a FrameCodec.
type CodecOption func(*codecOptions)

// WithMaxDecodedSize bounds how far a compressed payload may inflate. Frames
// that would exceed it fail to decode.
func WithMaxDecodedSize(n uint64) CodecOption {
	return func(o *codecOptions) {
		if n > 0 {
			o.maxDecoded = n
		}
	}
}

// NewFrameCodec creates a codec. threshold <= 0 disables compression of
// outgoing frames; compressed incoming frames are always accepted up to the
// decoded size limit.
func NewFrameCodec(threshold int, opts ...CodecOption) (*FrameCodec, error) {
	o := codecOptions{maxDecoded: DefaultMaxDecodedSize}
	for _, opt := range opts {
		opt(&o)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(o.maxDecoded), zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &FrameCodec{threshold: threshold, enc: enc, dec: dec}, nil
}

func (fc *FrameCodec) Close() {
	fc.enc.Close()
	fc.dec.Close()
}

// Encode serializes f.
func (fc *FrameCodec) Encode(f Frame) []byte {
	op, payload := f.Op, f.Payload
	if fc.threshold > 0 && len(payload) > fc.threshold {
		payload = fc.enc.EncodeAll(payload, nil)
		op |= opCompressed
	}
	w := NewWriter(frameHeaderSize + len(payload))
	w.PutUint32(uint32(op))
	w.PutUint32(f.Seq)
	w.buf = append(w.buf, payload...)
	return w.Bytes()
}

// Decode parses a frame, inflating compressed payloads. Unknown opcodes are
// protocol errors.
func (fc *FrameCodec) Decode(b []byte) (Frame, error) {
	r := NewReader(b)
	op := Opcode(r.Uint32())
	seq := r.Uint32()
	if err := r.Err(); err != nil {
		return Frame{}, err
	}
	payload := b[frameHeaderSize:]
	if op&opCompressed != 0 {
		op &^= opCompressed
		inflated, err := fc.dec.DecodeAll(payload, nil)
		if err != nil {
			return Frame{}, protocolError("decode frame", fmt.Errorf("decompression failed: %w", err))
		}
		payload = inflated
	}
	if !op.Known() {
		return Frame{}, protocolError("decode frame", fmt.Errorf("unknown opcode %d", uint32(op)))
	}
	return Frame{Op: op, Seq: seq, Payload: payload}, nil
}
