package netsync

import (
	"fmt"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
)

const (
	refreshTileSize = 16
	mapTileSize     = 20
	coordSize       = 8
)

// TileRecord is one decoded tile. Visual is set for refresh records,
// Fullness for map records.
type TileRecord struct {
	X, Y     int
	Type     core.TileType
	Visual   core.TileVisual
	Fullness float64
}

// EncodeRefreshTiles writes (x, y, type, visual) for each tile.
func EncodeRefreshTiles(b *core.Board, idxs []int) []byte {
	w := NewWriter(4 + len(idxs)*refreshTileSize)
	w.PutUint32(uint32(len(idxs)))
	for _, idx := range idxs {
		t := &b.T[idx]
		w.PutInt(t.X)
		w.PutInt(t.Y)
		w.PutUint32(uint32(t.Type()))
		w.PutUint32(uint32(t.Visual()))
	}
	return w.Bytes()
}

// EncodeMapTiles writes (x, y, type, fullness) for each tile.
func EncodeMapTiles(b *core.Board, idxs []int) []byte {
	w := NewWriter(4 + len(idxs)*mapTileSize)
	w.PutUint32(uint32(len(idxs)))
	for _, idx := range idxs {
		t := &b.T[idx]
		w.PutInt(t.X)
		w.PutInt(t.Y)
		w.PutUint32(uint32(t.Type()))
		w.PutFloat64(t.Fullness())
	}
	return w.Bytes()
}

// DecodeTiles parses a refresh or map tile payload. Unknown enum ordinals are
// protocol errors, never coerced.
func DecodeTiles(op Opcode, payload []byte) ([]TileRecord, error) {
	size := refreshTileSize
	switch op {
	case OpRefreshTiles:
	case OpMapTiles:
		size = mapTileSize
	default:
		return nil, protocolError("decode tiles", fmt.Errorf("opcode %s carries no tiles", op))
	}

	r := NewReader(payload)
	n := r.Count(size)
	out := make([]TileRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := TileRecord{X: r.Int(), Y: r.Int(), Type: core.TileType(r.Uint32())}
		if op == OpRefreshTiles {
			rec.Visual = core.TileVisual(r.Uint32())
		} else {
			rec.Fullness = r.Float64()
		}
		if r.Err() != nil {
			break
		}
		if !rec.Type.Valid() {
			return nil, protocolError("decode tiles", fmt.Errorf("%w: ordinal %d", core.ErrInvalidTileType, uint32(rec.Type)))
		}
		if op == OpRefreshTiles && !rec.Visual.Valid() {
			return nil, protocolError("decode tiles", fmt.Errorf("unknown tile visual ordinal %d", uint32(rec.Visual)))
		}
		out = append(out, rec)
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return out, nil
}

func putCoords(w *Writer, b *core.Board, idxs []int) {
	w.PutUint32(uint32(len(idxs)))
	for _, idx := range idxs {
		x, y := b.XY(idx)
		w.PutInt(x)
		w.PutInt(y)
	}
}

func readCoords(r *Reader) []core.Coordinate {
	n := r.Count(coordSize)
	out := make([]core.Coordinate, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		out = append(out, core.Coordinate{X: r.Int(), Y: r.Int()})
	}
	return out
}

// EncodeVisionChanged writes the gained then the lost tile coordinates.
func EncodeVisionChanged(b *core.Board, gained, lost []int) []byte {
	w := NewWriter(8 + (len(gained)+len(lost))*coordSize)
	putCoords(w, b, gained)
	putCoords(w, b, lost)
	return w.Bytes()
}

func DecodeVisionChanged(payload []byte) (gained, lost []core.Coordinate, err error) {
	r := NewReader(payload)
	gained = readCoords(r)
	lost = readCoords(r)
	if err := r.Done(); err != nil {
		return nil, nil, err
	}
	return gained, lost, nil
}

// SessionInfo is sent once when a seat connects.
type SessionInfo struct {
	SessionID string
	Seat      core.SeatID
	Width     int
	Height    int
	Editor    bool
}

func EncodeSessionInfo(info SessionInfo) []byte {
	w := NewWriter(32 + len(info.SessionID))
	w.PutString(info.SessionID)
	w.PutInt32(int32(info.Seat))
	w.PutInt(info.Width)
	w.PutInt(info.Height)
	w.PutBool(info.Editor)
	return w.Bytes()
}

func DecodeSessionInfo(payload []byte) (SessionInfo, error) {
	r := NewReader(payload)
	info := SessionInfo{
		SessionID: r.Str(),
		Seat:      core.SeatID(r.Int32()),
		Width:     r.Int(),
		Height:    r.Int(),
		Editor:    r.Bool(),
	}
	return info, r.Done()
}

// EncodeResearchList writes a research list as uint32 ordinals.
func EncodeResearchList(list []research.ResearchType) []byte {
	w := NewWriter(4 + 4*len(list))
	w.PutUint32(uint32(len(list)))
	for _, rt := range list {
		w.PutUint32(uint32(rt))
	}
	return w.Bytes()
}

func readResearchList(r *Reader) ([]research.ResearchType, error) {
	n := r.Count(4)
	out := make([]research.ResearchType, 0, n)
	for i := 0; i < n; i++ {
		rt := research.ResearchType(r.Uint32())
		if r.Err() != nil {
			break
		}
		if !rt.Valid() {
			return nil, protocolError("decode research", fmt.Errorf("%w: ordinal %d", research.ErrUnknownResearch, uint32(rt)))
		}
		out = append(out, rt)
	}
	return out, r.Err()
}

// DecodeResearchList parses a research tree or research done payload.
func DecodeResearchList(payload []byte) ([]research.ResearchType, error) {
	r := NewReader(payload)
	list, err := readResearchList(r)
	if err != nil {
		return nil, err
	}
	return list, r.Done()
}

// Rejection tells a seat why one of its commands was refused.
type Rejection struct {
	Command core.CommandType
	Kind    core.ErrorKind
	Reason  string
}

func EncodeRejection(rej Rejection) []byte {
	w := NewWriter(12 + len(rej.Reason))
	w.PutUint32(uint32(rej.Command))
	w.PutUint32(uint32(rej.Kind))
	w.PutString(rej.Reason)
	return w.Bytes()
}

func DecodeRejection(payload []byte) (Rejection, error) {
	r := NewReader(payload)
	rej := Rejection{
		Command: core.CommandType(r.Uint32()),
		Kind:    core.ErrorKind(r.Uint32()),
		Reason:  r.Str(),
	}
	return rej, r.Done()
}
