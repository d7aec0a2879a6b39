// Package netsync encodes the authoritative session state into per-seat wire
// deltas and decodes inbound seat commands.
//
// Everything on the wire is big-endian. Enums travel as the uint32 ordinal,
// strings as a uint32 length followed by the bytes.
package netsync

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

// MaxStringLen bounds decoded strings so a hostile length prefix cannot force
// a huge allocation.
const MaxStringLen = 1 << 16

var (
	ErrShortBuffer   = errors.New("message truncated")
	ErrStringTooLong = errors.New("string exceeds maximum length")
	ErrTrailingBytes = errors.New("unexpected trailing bytes")
)

func protocolError(op string, err error) error {
	return core.NewError(core.KindProtocol, op, err)
}

// Writer appends big-endian fields to a byte slice.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) PutUint32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *Writer) PutInt32(v int32)   { w.PutUint32(uint32(v)) }
func (w *Writer) PutInt(v int)       { w.PutInt32(int32(v)) }

func (w *Writer) PutFloat64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) PutString(s string) {
	w.PutUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader consumes big-endian fields. The first failure sticks: later reads
// return zero values and Err reports the original problem.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Err() error     { return r.err }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < n {
		r.err = protocolError("decode", fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, r.Remaining()))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Int32() int32 { return int32(r.Uint32()) }
func (r *Reader) Int() int     { return int(r.Int32()) }

func (r *Reader) Float64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func (r *Reader) Bool() bool {
	b := r.take(1)
	return b != nil && b[0] != 0
}

// Str reads a length-prefixed string.
func (r *Reader) Str() string {
	n := r.Uint32()
	if r.err != nil {
		return ""
	}
	if n > MaxStringLen {
		r.err = protocolError("decode", fmt.Errorf("%w: %d", ErrStringTooLong, n))
		return ""
	}
	return string(r.take(int(n)))
}

// Count reads a record count and checks that at least recordSize bytes per
// record remain.
func (r *Reader) Count(recordSize int) int {
	n := r.Uint32()
	if r.err != nil {
		return 0
	}
	if recordSize > 0 && uint64(n)*uint64(recordSize) > uint64(r.Remaining()) {
		r.err = protocolError("decode", fmt.Errorf("%w: %d records of %d bytes", ErrShortBuffer, n, recordSize))
		return 0
	}
	return int(n)
}

// Done fails the read if unread bytes remain.
func (r *Reader) Done() error {
	if r.err == nil && r.Remaining() != 0 {
		r.err = protocolError("decode", fmt.Errorf("%w: %d", ErrTrailingBytes, r.Remaining()))
	}
	return r.err
}
