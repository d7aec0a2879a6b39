package game

import (
	"context"
	"strconv"
	"strings"

	"github.com/mitchelldurbincs/dungeonsync/internal/game/core"
)

// This file contains all board rendering functionality for the game engine.

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorGray   = "\033[90m"
)

var seatColors = []string{ColorRed, ColorBlue, ColorGreen, ColorYellow, ColorPurple, ColorCyan}

const (
	emptySymbol = "·"
	dirtSymbol  = "▓"
	rockSymbol  = "▲"
	goldSymbol  = "$"
	waterSymbol = "~"
	lavaSymbol  = "^"
	wallSymbol  = "#"
	seatSymbols = "ABCDEFGH"
)

// Board returns an ANSI rendering of the map as viewer sees it. Tiles outside
// the viewer's vision are blank. core.NoSeat, or a seat without a vision
// table, sees everything. Must be called on the tick goroutine.
func (e *Engine) Board(viewer core.SeatID) string {
	width, height := e.board.W, e.board.H
	fog := viewer != core.NoSeat && e.vision.HasTable(viewer)

	var sb strings.Builder
	sb.Grow((width*16+8)*(height+3) + 100)

	sb.WriteString("   ")
	for x := 0; x < width; x++ {
		writeFixedWidth(&sb, x, 2)
	}
	sb.WriteString("\n")

	for y := 0; y < height; y++ {
		writeFixedWidth(&sb, y, 2)
		sb.WriteString(" ")
		for x := 0; x < width; x++ {
			idx := e.board.Idx(x, y)
			if fog && !e.vision.CanSee(viewer, idx) {
				sb.WriteString("  ")
				continue
			}
			writeTile(&sb, &e.board.T[idx])
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(emptySymbol + "=ground " + dirtSymbol + "=dirt " + rockSymbol + "=rock " +
		goldSymbol + "=gold " + waterSymbol + "=water " + lavaSymbol + "=lava A-H=claimed " +
		wallSymbol + "=claimed wall\n")
	return sb.String()
}

// RenderBoard is Board for callers outside the tick goroutine.
func (e *Engine) RenderBoard(ctx context.Context, viewer core.SeatID) (string, error) {
	var out string
	err := e.do(ctx, func() { out = e.Board(viewer) })
	return out, err
}

// writeTile writes a two-column cell for t.
func writeTile(sb *strings.Builder, t *core.Tile) {
	if t.IsClaimed() {
		sb.WriteString(seatColor(t.Owner()))
		sb.WriteByte(seatSymbol(t.Owner()))
		if t.IsFull() {
			sb.WriteString(wallSymbol)
		} else {
			sb.WriteString(" ")
		}
		sb.WriteString(ColorReset)
		return
	}

	switch t.Visual() {
	case core.VisualDirtFull:
		sb.WriteString(ColorWhite + " " + dirtSymbol)
	case core.VisualRockFull:
		sb.WriteString(ColorGray + " " + rockSymbol)
	case core.VisualGoldFull:
		sb.WriteString(ColorYellow + " " + goldSymbol)
	case core.VisualWaterGround:
		sb.WriteString(ColorCyan + " " + waterSymbol)
	case core.VisualLavaGround:
		sb.WriteString(ColorRed + " " + lavaSymbol)
	default:
		sb.WriteString(ColorGray + " " + emptySymbol)
	}
	sb.WriteString(ColorReset)
}

func writeFixedWidth(sb *strings.Builder, n, width int) {
	s := strconv.Itoa(n)
	for i := len(s); i < width; i++ {
		sb.WriteByte(' ')
	}
	sb.WriteString(s)
}

// seatSymbol returns the letter drawn on a seat's ground; seat 1 is A.
func seatSymbol(id core.SeatID) byte {
	if id <= 0 {
		return '?'
	}
	return seatSymbols[(int(id)-1)%len(seatSymbols)]
}

// seatColor returns the color for the given seat ID
func seatColor(id core.SeatID) string {
	if id <= 0 {
		return ColorWhite
	}
	return seatColors[int(id-1)%len(seatColors)]
}
