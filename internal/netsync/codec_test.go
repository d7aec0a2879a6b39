package netsync

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
)

func TestWriterIsBigEndian(t *testing.T) {
	w := NewWriter(0)
	w.PutUint32(0x01020304)
	w.PutInt32(-1)
	w.PutBool(true)
	w.PutString("ab")
	assert.Equal(t, []byte{1, 2, 3, 4, 0xff, 0xff, 0xff, 0xff, 1, 0, 0, 0, 2, 'a', 'b'}, w.Bytes())
}

func TestReaderErrorsStick(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 7, 1})
	assert.Equal(t, uint32(7), r.Uint32())
	assert.Equal(t, 0.0, r.Float64())
	require.Error(t, r.Err())
	assert.True(t, core.IsKind(r.Err(), core.KindProtocol))
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
	assert.Equal(t, uint32(0), r.Uint32(), "reads after a failure return zero")
}

func TestReaderLimits(t *testing.T) {
	w := NewWriter(0)
	w.PutUint32(MaxStringLen + 1)
	r := NewReader(w.Bytes())
	assert.Equal(t, "", r.Str())
	assert.ErrorIs(t, r.Err(), ErrStringTooLong)

	w = NewWriter(0)
	w.PutUint32(1000)
	r = NewReader(w.Bytes())
	assert.Equal(t, 0, r.Count(16))
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)

	r = NewReader([]byte{0, 0, 0, 1, 9})
	r.Uint32()
	assert.ErrorIs(t, r.Done(), ErrTrailingBytes)
}

func TestFrameCodec(t *testing.T) {
	fc, err := NewFrameCodec(64)
	require.NoError(t, err)
	defer fc.Close()

	small := Frame{Op: OpAckSync, Seq: 3, Payload: []byte{0, 0, 0, 2}}
	raw := fc.Encode(small)
	assert.Equal(t, []byte{0, 0, 0, byte(OpAckSync), 0, 0, 0, 3, 0, 0, 0, 2}, raw)
	got, err := fc.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, small, got)

	big := Frame{Op: OpRefreshTiles, Seq: 9, Payload: bytes.Repeat([]byte{0, 0, 0, 1}, 200)}
	raw = fc.Encode(big)
	assert.Less(t, len(raw), len(big.Payload), "repetitive payload compresses")
	assert.NotZero(t, raw[0]&0x80, "compressed flag set")
	got, err = fc.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestFrameCodecRejectsGarbage(t *testing.T) {
	fc, err := NewFrameCodec(0)
	require.NoError(t, err)
	defer fc.Close()

	testCases := []struct {
		name string
		raw  []byte
	}{
		{"short header", []byte{0, 0, 0}},
		{"unknown opcode", []byte{0, 0, 0, 50, 0, 0, 0, 1}},
		{"bad compressed payload", []byte{0x80, 0, 0, byte(OpRefreshTiles), 0, 0, 0, 1, 1, 2, 3}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fc.Decode(tc.raw)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindProtocol))
		})
	}
}

func TestFrameCodecDecodedSizeLimit(t *testing.T) {
	enc, err := NewFrameCodec(16)
	require.NoError(t, err)
	defer enc.Close()
	bomb := enc.Encode(Frame{Op: OpRefreshTiles, Seq: 1, Payload: make([]byte, 64<<10)})
	require.Less(t, len(bomb), 1024, "zeros compress well")

	small, err := NewFrameCodec(0, WithMaxDecodedSize(4<<10))
	require.NoError(t, err)
	defer small.Close()
	_, err = small.Decode(bomb)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindProtocol))

	roomy, err := NewFrameCodec(0, WithMaxDecodedSize(128<<10))
	require.NoError(t, err)
	defer roomy.Close()
	got, err := roomy.Decode(bomb)
	require.NoError(t, err)
	assert.Len(t, got.Payload, 64<<10)
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "refresh_tiles", OpRefreshTiles.String())
	assert.Equal(t, "dig", OpDig.String())
	assert.Equal(t, "Opcode(77)", Opcode(77).String())
}

func TestTileMessages(t *testing.T) {
	board := core.NewBoard(4, 3)
	_, err := board.SetFullness(board.Idx(1, 2), 0)
	require.NoError(t, err)
	_, err = board.SetType(board.Idx(3, 0), core.TypeGold)
	require.NoError(t, err)
	idxs := []int{board.Idx(1, 2), board.Idx(3, 0)}

	recs, err := DecodeTiles(OpRefreshTiles, EncodeRefreshTiles(board, idxs))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, TileRecord{X: 1, Y: 2, Type: core.TypeDirt, Visual: core.VisualDirtGround}, recs[0])
	assert.Equal(t, core.VisualGoldFull, recs[1].Visual)

	recs, err = DecodeTiles(OpMapTiles, EncodeMapTiles(board, idxs))
	require.NoError(t, err)
	assert.Equal(t, 0.0, recs[0].Fullness)
	assert.Equal(t, core.MaxFullness, recs[1].Fullness)

	_, err = DecodeTiles(OpVisionChanged, nil)
	assert.Error(t, err)
}

func TestDecodeTilesRejectsUnknownEnums(t *testing.T) {
	w := NewWriter(0)
	w.PutUint32(1)
	w.PutInt(0)
	w.PutInt(0)
	w.PutUint32(99)
	w.PutUint32(0)
	_, err := DecodeTiles(OpRefreshTiles, w.Bytes())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindProtocol))
	assert.ErrorIs(t, err, core.ErrInvalidTileType)

	w = NewWriter(0)
	w.PutUint32(1)
	w.PutInt(0)
	w.PutInt(0)
	w.PutUint32(uint32(core.TypeDirt))
	w.PutUint32(500)
	_, err = DecodeTiles(OpRefreshTiles, w.Bytes())
	assert.True(t, core.IsKind(err, core.KindProtocol))
}

func TestVisionAndInfoMessages(t *testing.T) {
	board := core.NewBoard(5, 5)
	gained, lost, err := DecodeVisionChanged(EncodeVisionChanged(board, []int{0, 6}, []int{24}))
	require.NoError(t, err)
	assert.Equal(t, []core.Coordinate{{X: 0, Y: 0}, {X: 1, Y: 1}}, gained)
	assert.Equal(t, []core.Coordinate{{X: 4, Y: 4}}, lost)

	info := SessionInfo{SessionID: "abc", Seat: 2, Width: 5, Height: 5, Editor: true}
	got, err := DecodeSessionInfo(EncodeSessionInfo(info))
	require.NoError(t, err)
	assert.Equal(t, info, got)

	rej := Rejection{Command: core.CommandClaim, Kind: core.KindRule, Reason: "tile is not claimable"}
	gotRej, err := DecodeRejection(EncodeRejection(rej))
	require.NoError(t, err)
	assert.Equal(t, rej, gotRej)
}

func TestResearchList(t *testing.T) {
	list := []research.ResearchType{research.RoomTreasury, research.TrapSpike}
	got, err := DecodeResearchList(EncodeResearchList(list))
	require.NoError(t, err)
	assert.Equal(t, list, got)

	_, err = DecodeResearchList(EncodeResearchList([]research.ResearchType{research.CountResearch}))
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindProtocol))
	assert.ErrorIs(t, err, research.ErrUnknownResearch)
}
