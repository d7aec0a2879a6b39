package save

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/research"
	"github.com/mitchelldurbincs/dungeonsync/internal/game/seat"
)

// Encode writes lvl in the format Decode reads. Seats are written in ID order
// and tiles in row-major order so identical states produce identical files.
func Encode(w io.Writer, lvl *Level) error {
	bw := bufio.NewWriter(w)
	b := lvl.Board

	fmt.Fprintf(bw, "[Info]\nwidth\t%d\nheight\t%d\ntick\t%d\n[/Info]\n", b.W, b.H, lvl.Tick)

	bw.WriteString("[Seats]\n")
	for _, s := range sortedSeats(lvl.Seats) {
		bw.WriteString("[Seat]\n")
		writeSeat(bw, s)
		bw.WriteString("[/Seat]\n")
	}
	bw.WriteString("[/Seats]\n")

	bw.WriteString("[Tiles]\n")
	for i := range b.T {
		writeTile(bw, &b.T[i])
	}
	bw.WriteString("[/Tiles]\n")

	if len(lvl.Artifacts) > 0 {
		bw.WriteString("[ResearchArtifacts]\n")
		for _, a := range lvl.Artifacts {
			fmt.Fprintf(bw, "%s\t%d\t%s\t%d\t%d\t%d\t%d\n",
				a.ID, a.Seat, a.Research, a.Origin.X, a.Origin.Y, a.SpawnTick, a.DeliverTick)
		}
		bw.WriteString("[/ResearchArtifacts]\n")
	}
	return bw.Flush()
}

// EncodeSeat writes one seat block body, without the [Seat] markers.
func EncodeSeat(w io.Writer, s *seat.Seat) error {
	bw := bufio.NewWriter(w)
	writeSeat(bw, s)
	return bw.Flush()
}

func writeSeat(bw *bufio.Writer, s *seat.Seat) {
	fmt.Fprintf(bw, "seatId\t%d\n", s.ID)
	fmt.Fprintf(bw, "teamId\t%s\n", teamList(s))
	fmt.Fprintf(bw, "player\t%s\n", s.PlayerType)
	fmt.Fprintf(bw, "faction\t%s\n", s.Faction)
	fmt.Fprintf(bw, "startingX\t%d\n", s.StartX)
	fmt.Fprintf(bw, "startingY\t%d\n", s.StartY)
	fmt.Fprintf(bw, "colorId\t%s\n", s.ColorID)
	fmt.Fprintf(bw, "gold\t%d\n", s.Gold)
	fmt.Fprintf(bw, "goldMined\t%d\n", s.GoldMined)
	fmt.Fprintf(bw, "mana\t%s\n", formatFloat(s.Mana))
	writeResearch(bw, "ResearchDone", s.Research.Done())
	writeResearch(bw, "ResearchNotAllowed", s.Research.NotAllowed())
	writeResearch(bw, "ResearchPending", s.Research.Pending())
}

// teamList writes the chosen team once one is set, else every candidate.
func teamList(s *seat.Seat) string {
	if s.TeamID != seat.NoTeam {
		return strconv.Itoa(s.TeamID)
	}
	ids := make([]string, len(s.AvailableTeamIDs))
	for i, id := range s.AvailableTeamIDs {
		ids[i] = strconv.Itoa(id)
	}
	return strings.Join(ids, "/")
}

func writeResearch(bw *bufio.Writer, section string, list []research.ResearchType) {
	fmt.Fprintf(bw, "[%s]\n", section)
	for _, rt := range list {
		fmt.Fprintf(bw, "%s\n", rt)
	}
	fmt.Fprintf(bw, "[/%s]\n", section)
}

// writeTile emits x, y, type ordinal, fullness and, for claimed tiles only,
// the owner.
func writeTile(bw *bufio.Writer, t *core.Tile) {
	fmt.Fprintf(bw, "%d\t%d\t%d\t%s", t.X, t.Y, uint32(t.Type()), formatFloat(t.Fullness()))
	if t.IsClaimed() {
		fmt.Fprintf(bw, "\t%d", t.Owner())
	}
	bw.WriteByte('\n')
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// sortedSeats drops the rogue seat, which is recreated on every load.
func sortedSeats(seats []*seat.Seat) []*seat.Seat {
	out := make([]*seat.Seat, 0, len(seats))
	for _, s := range seats {
		if s.ID != seat.RogueSeatID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
