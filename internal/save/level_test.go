package save

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/entity"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
	"github.com/mitchelldurbincs/dungeonsync/internal/testutil"
)

func newDecoder() *Decoder {
	return NewDecoder(research.DefaultCatalog(), testutil.NopLogger())
}

func sampleLevel(t *testing.T) *Level {
	t.Helper()
	cat := research.DefaultCatalog()
	board := core.NewBoard(4, 3)
	testutil.OpenTiles(t, board, core.NewCoordinate(1, 1), core.NewCoordinate(2, 1))
	testutil.SetTileType(t, board, core.TypeGold, core.NewCoordinate(3, 0))
	testutil.SetTileType(t, board, core.TypeLava, core.NewCoordinate(0, 2))
	_, err := board.SetFullness(board.Idx(3, 2), 50)
	require.NoError(t, err)
	testutil.ClaimTiles(t, board, 1, core.NewCoordinate(1, 1))
	testutil.ClaimTiles(t, board, 2, core.NewCoordinate(2, 1))

	s1 := seat.New(1, cat)
	s1.AvailableTeamIDs = []int{1}
	s1.TeamID = 1
	s1.PlayerType = seat.PlayerHuman
	s1.Faction = "Keeper"
	s1.StartX, s1.StartY = 1, 1
	s1.ColorID = "red"
	s1.Gold = 1200
	s1.GoldMined = 300
	s1.Mana = 1500.5
	s1.Research.Restore(
		[]research.ResearchType{research.RoomTreasury},
		[]research.ResearchType{research.TrapCannon},
		[]research.ResearchType{research.RoomDormitory, research.RoomHatchery},
	)

	s2 := seat.New(2, cat)
	s2.AvailableTeamIDs = []int{2, 3}
	s2.PlayerType = seat.PlayerAI
	s2.Faction = "Keeper"
	s2.StartX, s2.StartY = 2, 1
	s2.ColorID = "blue"

	return &Level{
		Tick:  42,
		Board: board,
		Seats: []*seat.Seat{s2, s1},
		Artifacts: []*entity.ResearchArtifact{{
			ID:          uuid.MustParse("8a4b64b4-9d0b-4a1b-9d39-5d0a2c1f6e11"),
			Seat:        1,
			Research:    research.RoomLibrary,
			Origin:      core.NewCoordinate(1, 1),
			SpawnTick:   40,
			DeliverTick: 70,
		}},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	lvl := sampleLevel(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, lvl))

	got, err := newDecoder().Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, uint64(42), got.Tick)
	require.Equal(t, lvl.Board.Len(), got.Board.Len())
	for i := range lvl.Board.T {
		want, have := lvl.Board.Tile(i), got.Board.Tile(i)
		assert.Equal(t, want.Type(), have.Type(), "type of %s", want.Name())
		assert.Equal(t, want.Fullness(), have.Fullness(), "fullness of %s", want.Name())
		assert.Equal(t, want.Owner(), have.Owner(), "owner of %s", want.Name())
		assert.Equal(t, want.Visual(), have.Visual(), "visual of %s", want.Name())
	}

	require.Len(t, got.Seats, 2)
	s1, s2 := got.Seats[0], got.Seats[1]
	assert.Equal(t, core.SeatID(1), s1.ID)
	assert.Equal(t, []int{1}, s1.AvailableTeamIDs)
	assert.Equal(t, seat.NoTeam, s1.TeamID, "team is picked by the session, not the loader")
	assert.Equal(t, seat.PlayerHuman, s1.PlayerType)
	assert.Equal(t, "red", s1.ColorID)
	assert.Equal(t, 1200, s1.Gold)
	assert.Equal(t, 300, s1.GoldMined)
	assert.Equal(t, 1500.5, s1.Mana)
	assert.Equal(t, 1, s1.ClaimedTiles, "recounted from tiles")
	assert.Equal(t, []research.ResearchType{research.RoomTreasury}, s1.Research.Done())
	assert.Equal(t, []research.ResearchType{research.TrapCannon}, s1.Research.NotAllowed())
	assert.Equal(t, []research.ResearchType{research.RoomDormitory, research.RoomHatchery}, s1.Research.Pending())
	assert.Equal(t, []int{2, 3}, s2.AvailableTeamIDs)
	assert.Equal(t, 1, s2.ClaimedTiles)

	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, *lvl.Artifacts[0], *got.Artifacts[0])

	var again bytes.Buffer
	got.Seats[0].TeamID = 1
	require.NoError(t, Encode(&again, got))
	assert.Equal(t, buf.String(), again.String(), "encoding is deterministic")
}

func TestEncodeDecode_EmptySeatFields(t *testing.T) {
	lvl := sampleLevel(t)
	for _, s := range lvl.Seats {
		s.Faction = ""
		s.ColorID = ""
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, lvl))
	assert.Contains(t, buf.String(), "faction\t\n")

	got, err := newDecoder().Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, got.Seats, 2)
	for _, s := range got.Seats {
		assert.Empty(t, s.Faction)
		assert.Empty(t, s.ColorID)
	}
	assert.Equal(t, 1200, got.Seats[0].Gold, "fields after the empty ones still parse")

	t.Run("BareKeyAndCRLF", func(t *testing.T) {
		text := strings.ReplaceAll(buf.String(), "faction\t\n", "faction\n")
		text = strings.ReplaceAll(text, "\n", "\r\n")
		got, err := newDecoder().Decode(strings.NewReader(text))
		require.NoError(t, err)
		assert.Empty(t, got.Seats[0].Faction)
		assert.Equal(t, 1, got.Seats[0].ClaimedTiles)
	})
}

func TestEncode_TileLines(t *testing.T) {
	board := core.NewBoard(2, 1)
	testutil.OpenTiles(t, board, core.NewCoordinate(1, 0))
	s := seat.New(3, research.DefaultCatalog())
	s.AvailableTeamIDs = []int{1}
	testutil.ClaimTiles(t, board, 3, core.NewCoordinate(1, 0))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Level{Board: board, Seats: []*seat.Seat{s}}))
	out := buf.String()

	assert.Contains(t, out, "[Tiles]\n0\t0\t0\t100\n1\t0\t0\t0\t3\n[/Tiles]\n")
	assert.NotContains(t, out, "[ResearchArtifacts]", "empty artifact section is omitted")
	assert.Contains(t, out, "teamId\t1\n")
}

func TestEncode_SkipsRogueSeat(t *testing.T) {
	cat := research.DefaultCatalog()
	s := seat.New(1, cat)
	s.AvailableTeamIDs = []int{1}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &Level{Board: core.NewBoard(1, 1), Seats: []*seat.Seat{seat.NewRogue(cat), s}}))
	assert.Equal(t, 1, strings.Count(buf.String(), "[Seat]\n"))
}

const seatBody = `seatId	%s
teamId	%s
player	Human
faction	Keeper
startingX	2
startingY	3
colorId	green
gold	10
goldMined	0
mana	1000
[ResearchDone]
%s[/ResearchDone]
[ResearchNotAllowed]
[/ResearchNotAllowed]
[ResearchPending]
%s[/ResearchPending]
`

func seatText(id, teams, done, pending string) string {
	return fmt.Sprintf(seatBody, id, teams, done, pending)
}

func TestDecodeSeat(t *testing.T) {
	t.Run("skips team zero", func(t *testing.T) {
		s, err := newDecoder().DecodeSeat(strings.NewReader(seatText("4", "0/2/5", "", "")))
		require.NoError(t, err)
		assert.Equal(t, core.SeatID(4), s.ID)
		assert.Equal(t, []int{2, 5}, s.AvailableTeamIDs)
		assert.Equal(t, 2, s.StartX)
		assert.Equal(t, 3, s.StartY)
	})

	t.Run("skips duplicate and conflicting research", func(t *testing.T) {
		s, err := newDecoder().DecodeSeat(strings.NewReader(seatText("4", "1",
			"roomTreasury\nroomTreasury\n", "roomTreasury\nroomForge\n")))
		require.NoError(t, err)
		assert.Equal(t, []research.ResearchType{research.RoomTreasury}, s.Research.Done())
		assert.Equal(t, []research.ResearchType{research.RoomForge}, s.Research.Pending())
	})

	tests := []struct {
		name string
		text string
		want error
	}{
		{"seat zero", seatText("0", "1", "", ""), ErrForbiddenSeat},
		{"negative seat", seatText("-2", "1", "", ""), ErrForbiddenSeat},
		{"only team zero", seatText("1", "0", "", ""), ErrNoTeam},
		{"unknown research", seatText("1", "1", "roomMoat\n", ""), research.ErrUnknownResearch},
		{"unexpected key", strings.Replace(seatText("1", "1", "", ""), "faction", "race", 1), ErrUnexpectedToken},
		{"keys out of order", strings.Replace(seatText("1", "1", "", ""), "player\tHuman\nfaction\tKeeper", "faction\tKeeper\nplayer\tHuman", 1), ErrUnexpectedToken},
		{"truncated", "seatId\t1\nteamId\t1\n", ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDecoder().DecodeSeat(strings.NewReader(tt.text))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsKind(err, core.KindFormat))
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleLevel(t)))
	valid := buf.String()

	tests := []struct {
		name string
		text string
		want error
	}{
		{"zero width", strings.Replace(valid, "width\t4", "width\t0", 1), ErrBadDimensions},
		{"tile outside map", strings.Replace(valid, "[/Tiles]", "9\t9\t0\t0\n[/Tiles]", 1), core.ErrInvalidCoordinates},
		{"unknown tile owner", strings.Replace(valid, "[/Tiles]", "0\t0\t0\t0\t7\n[/Tiles]", 1), ErrUnknownSeat},
		{"bad field count", strings.Replace(valid, "[/Tiles]", "0\t0\n[/Tiles]", 1), ErrUnexpectedToken},
		{"duplicate seat", strings.Replace(valid, "seatId\t2", "seatId\t1", 1), seat.ErrDuplicateSeat},
		{"duplicate claimed tile", strings.Replace(valid, "[/Tiles]", "1\t1\t0\t0\t1\n[/Tiles]", 1), ErrDuplicateTile},
		{"duplicate open tile", strings.Replace(valid, "[/Tiles]", "3\t2\t0\t100\n[/Tiles]", 1), ErrDuplicateTile},
		{"missing tiles", valid[:strings.Index(valid, "[Tiles]")], ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newDecoder().Decode(strings.NewReader(tt.text))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsKind(err, core.KindFormat))
		})
	}
}

func TestDecode_ArtifactSectionIsOptional(t *testing.T) {
	text := "[Info]\nwidth\t2\nheight\t2\ntick\t0\n[/Info]\n[Seats]\n[/Seats]\n[Tiles]\n# opened\n0\t0\t0\t0\n[/Tiles]\n"
	lvl, err := newDecoder().Decode(strings.NewReader(text))
	require.NoError(t, err)
	assert.Empty(t, lvl.Artifacts)
	assert.Equal(t, 0.0, lvl.Board.Tile(0).Fullness())
	assert.Equal(t, core.MaxFullness, lvl.Board.Tile(1).Fullness(), "unlisted tiles keep the default")
}

func TestCompressedRoundTrip(t *testing.T) {
	lvl := sampleLevel(t)
	var plain, packed bytes.Buffer
	require.NoError(t, Encode(&plain, lvl))
	require.NoError(t, WriteCompressed(&packed, lvl))
	assert.True(t, bytes.HasPrefix(packed.Bytes(), zstdMagic))

	d := newDecoder()
	fromPlain, err := d.DecodeAny(bytes.NewReader(plain.Bytes()))
	require.NoError(t, err)
	fromPacked, err := d.DecodeAny(bytes.NewReader(packed.Bytes()))
	require.NoError(t, err)

	var a, b bytes.Buffer
	require.NoError(t, Encode(&a, fromPlain))
	require.NoError(t, Encode(&b, fromPacked))
	assert.Equal(t, a.String(), b.String())
}

func TestSaveLoadFile(t *testing.T) {
	dir := t.TempDir()
	for _, compress := range []bool{false, true} {
		path := filepath.Join(dir, "level.dsl")
		require.NoError(t, SaveFile(path, sampleLevel(t), compress))

		lvl, err := newDecoder().LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 4, lvl.Board.W)
		assert.Len(t, lvl.Seats, 2)

		matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
		require.NoError(t, err)
		assert.Empty(t, matches, "temporary file removed")
	}

	_, err := newDecoder().LoadFile(filepath.Join(dir, "missing.dsl"))
	assert.Error(t, err)
}
