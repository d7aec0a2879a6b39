// Package save reads and writes the tab-separated level format used for map
// files, editor saves and session snapshots.
package save

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/entity"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

var (
	ErrUnexpectedToken = errors.New("unexpected token")
	ErrUnexpectedEOF   = errors.New("unexpected end of file")
	ErrForbiddenSeat   = errors.New("forbidden seat id")
	ErrNoTeam          = errors.New("seat has no usable team id")
	ErrUnknownSeat     = errors.New("tile references unknown seat")
	ErrBadDimensions   = errors.New("invalid map dimensions")
	ErrDuplicateTile   = errors.New("tile listed twice")
)

// Level is everything a save file holds.
type Level struct {
	Tick      uint64
	Board     *core.Board
	Seats     []*seat.Seat
	Artifacts []*entity.ResearchArtifact
}

func formatError(line int, err error) error {
	return core.NewError(core.KindFormat, "load level", fmt.Errorf("line %d: %w", line, err))
}

// lineReader yields non-blank, non-comment lines split on tabs.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &lineReader{sc: sc}
}

func (lr *lineReader) next() ([]string, error) {
	for lr.sc.Scan() {
		lr.line++
		// Only the line ending and indentation go: a trailing tab separates
		// a key from an empty value such as an unset faction.
		text := strings.TrimRight(strings.TrimLeft(lr.sc.Text(), " \t"), " \r\n")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		return strings.Split(text, "\t"), nil
	}
	if err := lr.sc.Err(); err != nil {
		return nil, formatError(lr.line, err)
	}
	return nil, formatError(lr.line, ErrUnexpectedEOF)
}

// expect reads one line that must be exactly tok.
func (lr *lineReader) expect(tok string) error {
	fields, err := lr.next()
	if err != nil {
		return err
	}
	if len(fields) != 1 || fields[0] != tok {
		return formatError(lr.line, fmt.Errorf("%w: expected %s, read %q", ErrUnexpectedToken, tok, strings.Join(fields, "\t")))
	}
	return nil
}

// value reads a key<TAB>value line whose key must be key. A bare key reads
// as an empty value.
func (lr *lineReader) value(key string) (string, error) {
	fields, err := lr.next()
	if err != nil {
		return "", err
	}
	if len(fields) == 1 && fields[0] == key {
		return "", nil
	}
	if len(fields) != 2 || fields[0] != key {
		return "", formatError(lr.line, fmt.Errorf("%w: expected %s, read %q", ErrUnexpectedToken, key, strings.Join(fields, "\t")))
	}
	return fields[1], nil
}

func (lr *lineReader) intValue(key string) (int, error) {
	v, err := lr.value(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, formatError(lr.line, fmt.Errorf("%s: %w", key, err))
	}
	return n, nil
}

func (lr *lineReader) floatValue(key string) (float64, error) {
	v, err := lr.value(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, formatError(lr.line, fmt.Errorf("%s: %w", key, err))
	}
	return f, nil
}

// Decoder parses levels.
type Decoder struct {
	catalog *research.Catalog
	logger  zerolog.Logger
}

func NewDecoder(catalog *research.Catalog, logger zerolog.Logger) *Decoder {
	return &Decoder{
		catalog: catalog,
		logger:  logger.With().Str("component", "LevelDecoder").Logger(),
	}
}

// Decode reads a whole level. Any format violation aborts the load; nothing
// partial is returned.
func (d *Decoder) Decode(r io.Reader) (*Level, error) {
	lr := newLineReader(r)

	if err := lr.expect("[Info]"); err != nil {
		return nil, err
	}
	width, err := lr.intValue("width")
	if err != nil {
		return nil, err
	}
	height, err := lr.intValue("height")
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, formatError(lr.line, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height))
	}
	tick, err := lr.intValue("tick")
	if err != nil {
		return nil, err
	}
	if err := lr.expect("[/Info]"); err != nil {
		return nil, err
	}

	lvl := &Level{Tick: uint64(tick), Board: core.NewBoard(width, height)}

	if err := lr.expect("[Seats]"); err != nil {
		return nil, err
	}
	byID := make(map[core.SeatID]*seat.Seat)
	for {
		fields, err := lr.next()
		if err != nil {
			return nil, err
		}
		if len(fields) == 1 && fields[0] == "[/Seats]" {
			break
		}
		if len(fields) != 1 || fields[0] != "[Seat]" {
			return nil, formatError(lr.line, fmt.Errorf("%w: expected [Seat], read %q", ErrUnexpectedToken, strings.Join(fields, "\t")))
		}
		s, err := d.decodeSeat(lr)
		if err != nil {
			return nil, err
		}
		if err := lr.expect("[/Seat]"); err != nil {
			return nil, err
		}
		if _, dup := byID[s.ID]; dup {
			return nil, formatError(lr.line, fmt.Errorf("%w: %d", seat.ErrDuplicateSeat, s.ID))
		}
		byID[s.ID] = s
		lvl.Seats = append(lvl.Seats, s)
	}

	if err := d.decodeTiles(lr, lvl.Board, byID); err != nil {
		return nil, err
	}
	arts, err := d.decodeArtifacts(lr, byID)
	if err != nil {
		return nil, err
	}
	lvl.Artifacts = arts
	return lvl, nil
}

// DecodeSeat reads one seat block body, without the [Seat] markers.
func (d *Decoder) DecodeSeat(r io.Reader) (*seat.Seat, error) {
	return d.decodeSeat(newLineReader(r))
}

func (d *Decoder) decodeSeat(lr *lineReader) (*seat.Seat, error) {
	id, err := lr.intValue("seatId")
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, formatError(lr.line, fmt.Errorf("%w: %d", ErrForbiddenSeat, id))
	}
	s := seat.New(core.SeatID(id), d.catalog)
	log := d.logger.With().Int("seat_id", id).Logger()

	teams, err := lr.value("teamId")
	if err != nil {
		return nil, err
	}
	for _, tok := range strings.Split(teams, "/") {
		team, err := strconv.Atoi(tok)
		if err != nil {
			return nil, formatError(lr.line, fmt.Errorf("teamId: %w", err))
		}
		if team == seat.RogueTeamID {
			log.Warn().Msg("Forbidden team id 0 skipped")
			continue
		}
		s.AvailableTeamIDs = append(s.AvailableTeamIDs, team)
	}
	if len(s.AvailableTeamIDs) == 0 {
		return nil, formatError(lr.line, fmt.Errorf("%w: seat %d", ErrNoTeam, id))
	}

	player, err := lr.value("player")
	if err != nil {
		return nil, err
	}
	if s.PlayerType, err = seat.ParsePlayerType(player); err != nil {
		return nil, formatError(lr.line, err)
	}
	if s.Faction, err = lr.value("faction"); err != nil {
		return nil, err
	}
	if s.StartX, err = lr.intValue("startingX"); err != nil {
		return nil, err
	}
	if s.StartY, err = lr.intValue("startingY"); err != nil {
		return nil, err
	}
	if s.ColorID, err = lr.value("colorId"); err != nil {
		return nil, err
	}
	if s.Gold, err = lr.intValue("gold"); err != nil {
		return nil, err
	}
	if s.GoldMined, err = lr.intValue("goldMined"); err != nil {
		return nil, err
	}
	if s.Mana, err = lr.floatValue("mana"); err != nil {
		return nil, err
	}

	done, err := d.researchSection(lr, "ResearchDone")
	if err != nil {
		return nil, err
	}
	notAllowed, err := d.researchSection(lr, "ResearchNotAllowed")
	if err != nil {
		return nil, err
	}
	pending, err := d.researchSection(lr, "ResearchPending")
	if err != nil {
		return nil, err
	}
	if skipped := s.Research.Restore(done, notAllowed, pending); len(skipped) > 0 {
		log.Warn().Interface("skipped", researchNames(skipped)).Msg("Duplicate or conflicting research entries skipped")
	}
	return s, nil
}

func (d *Decoder) researchSection(lr *lineReader, name string) ([]research.ResearchType, error) {
	if err := lr.expect("[" + name + "]"); err != nil {
		return nil, err
	}
	var out []research.ResearchType
	for {
		fields, err := lr.next()
		if err != nil {
			return nil, err
		}
		if len(fields) != 1 {
			return nil, formatError(lr.line, fmt.Errorf("%w: %q in %s", ErrUnexpectedToken, strings.Join(fields, "\t"), name))
		}
		if fields[0] == "[/"+name+"]" {
			return out, nil
		}
		rt, err := research.ParseResearchType(fields[0])
		if err != nil {
			return nil, formatError(lr.line, err)
		}
		out = append(out, rt)
	}
}

func (d *Decoder) decodeTiles(lr *lineReader, board *core.Board, seats map[core.SeatID]*seat.Seat) error {
	if err := lr.expect("[Tiles]"); err != nil {
		return err
	}
	seen := make([]bool, board.Len())
	for {
		fields, err := lr.next()
		if err != nil {
			return err
		}
		if len(fields) == 1 && fields[0] == "[/Tiles]" {
			return nil
		}
		if len(fields) != 4 && len(fields) != 5 {
			return formatError(lr.line, fmt.Errorf("%w: tile line has %d fields", ErrUnexpectedToken, len(fields)))
		}
		if err := d.decodeTile(lr.line, fields, board, seats, seen); err != nil {
			return err
		}
	}
}

func (d *Decoder) decodeTile(line int, fields []string, board *core.Board, seats map[core.SeatID]*seat.Seat, seen []bool) error {
	x, errX := strconv.Atoi(fields[0])
	y, errY := strconv.Atoi(fields[1])
	tt, errT := strconv.ParseUint(fields[2], 10, 32)
	fullness, errF := strconv.ParseFloat(fields[3], 64)
	if err := errors.Join(errX, errY, errT, errF); err != nil {
		return formatError(line, err)
	}
	if !board.InBounds(x, y) {
		return formatError(line, fmt.Errorf("%w: %s", core.ErrInvalidCoordinates, core.TileName(x, y)))
	}

	var owner *seat.Seat
	if len(fields) == 5 {
		id, err := strconv.Atoi(fields[4])
		if err != nil {
			return formatError(line, err)
		}
		s, ok := seats[core.SeatID(id)]
		if !ok {
			return formatError(line, fmt.Errorf("%w: %d", ErrUnknownSeat, id))
		}
		owner = s
	}

	idx := board.Idx(x, y)
	if seen[idx] {
		return formatError(line, fmt.Errorf("%w: %s", ErrDuplicateTile, core.TileName(x, y)))
	}
	seen[idx] = true

	if _, err := board.SetType(idx, core.TileType(tt)); err != nil {
		return formatError(line, err)
	}
	if _, err := board.SetFullness(idx, fullness); err != nil {
		return formatError(line, err)
	}
	if owner == nil {
		return nil
	}
	if _, err := board.SetOwner(idx, owner.ID); err != nil {
		return formatError(line, err)
	}
	owner.ClaimedTiles++
	return nil
}

// decodeArtifacts reads the optional trailing artifact section. Hand-written
// map files end after [/Tiles].
func (d *Decoder) decodeArtifacts(lr *lineReader, seats map[core.SeatID]*seat.Seat) ([]*entity.ResearchArtifact, error) {
	fields, err := lr.next()
	if errors.Is(err, ErrUnexpectedEOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(fields) != 1 || fields[0] != "[ResearchArtifacts]" {
		return nil, formatError(lr.line, fmt.Errorf("%w: expected [ResearchArtifacts], read %q", ErrUnexpectedToken, strings.Join(fields, "\t")))
	}
	var out []*entity.ResearchArtifact
	for {
		fields, err := lr.next()
		if err != nil {
			return nil, err
		}
		if len(fields) == 1 && fields[0] == "[/ResearchArtifacts]" {
			return out, nil
		}
		if len(fields) != 7 {
			return nil, formatError(lr.line, fmt.Errorf("%w: artifact line has %d fields", ErrUnexpectedToken, len(fields)))
		}
		id, errID := uuid.Parse(fields[0])
		seatID, errS := strconv.Atoi(fields[1])
		rt, errR := research.ParseResearchType(fields[2])
		x, errX := strconv.Atoi(fields[3])
		y, errY := strconv.Atoi(fields[4])
		spawn, errSp := strconv.ParseUint(fields[5], 10, 64)
		deliver, errD := strconv.ParseUint(fields[6], 10, 64)
		if err := errors.Join(errID, errS, errR, errX, errY, errSp, errD); err != nil {
			return nil, formatError(lr.line, err)
		}
		if _, ok := seats[core.SeatID(seatID)]; !ok {
			return nil, formatError(lr.line, fmt.Errorf("%w: %d", ErrUnknownSeat, seatID))
		}
		out = append(out, &entity.ResearchArtifact{
			ID:          id,
			Seat:        core.SeatID(seatID),
			Research:    rt,
			Origin:      core.NewCoordinate(x, y),
			SpawnTick:   spawn,
			DeliverTick: deliver,
		})
	}
}

func researchNames(list []research.ResearchType) []string {
	out := make([]string, len(list))
	for i, rt := range list {
		out[i] = rt.String()
	}
	return out
}
