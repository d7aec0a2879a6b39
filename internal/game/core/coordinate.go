package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is a tile position. X grows east, Y grows south.
type Coordinate struct {
	X, Y int
}

func NewCoordinate(x, y int) Coordinate {
	return Coordinate{X: x, Y: y}
}

// FromIndex is the inverse of ToIndex for a board of the given width.
func FromIndex(idx, width int) Coordinate {
	return Coordinate{X: idx % width, Y: idx / width}
}

func (c Coordinate) IsValid(width, height int) bool {
	return c.X >= 0 && c.X < width && c.Y >= 0 && c.Y < height
}

// ToIndex returns the row-major arena index.
func (c Coordinate) ToIndex(width int) int {
	return c.Y*width + c.X
}

// DistanceTo is the Manhattan distance, which is also the number of cardinal
// steps between two open tiles on an empty board.
func (c Coordinate) DistanceTo(other Coordinate) int {
	return abs(c.X-other.X) + abs(c.Y-other.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Direction is one of the four cardinal directions. ValidNeighbors, and so
// tile neighbor lists, follow this order with out-of-bounds entries skipped.
type Direction int

const (
	North Direction = iota
	East
	South
	West
	numDirections
)

var directionNames = [numDirections]string{"north", "east", "south", "west"}

var directionDelta = [numDirections]Coordinate{
	North: {X: 0, Y: -1},
	East:  {X: 1, Y: 0},
	South: {X: 0, Y: 1},
	West:  {X: -1, Y: 0},
}

func (d Direction) String() string {
	if d < 0 || d >= numDirections {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// Opposite returns the direction pointing back.
func (d Direction) Opposite() Direction {
	return (d + 2) % numDirections
}

// Step returns the coordinate one tile away in d.
func (c Coordinate) Step(d Direction) Coordinate {
	delta := directionDelta[d]
	return Coordinate{X: c.X + delta.X, Y: c.Y + delta.Y}
}

// ValidNeighbors returns the in-bounds cardinal neighbors in Direction order.
func (c Coordinate) ValidNeighbors(width, height int) []Coordinate {
	valid := make([]Coordinate, 0, numDirections)
	for d := North; d < numDirections; d++ {
		if n := c.Step(d); n.IsValid(width, height) {
			valid = append(valid, n)
		}
	}
	return valid
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Name is the save file name of the tile at c.
func (c Coordinate) Name() string {
	return TileName(c.X, c.Y)
}

const tileNamePrefix = "Tile"

// TileName is the stable name of the tile at (x, y), e.g. "Tile_3_7".
func TileName(x, y int) string {
	return tileNamePrefix + "_" + strconv.Itoa(x) + "_" + strconv.Itoa(y)
}

// ParseTileName is the inverse of TileName. Failures are KindFormat errors.
func ParseTileName(name string) (Coordinate, error) {
	const op = "parse tile name"
	parts := strings.Split(name, "_")
	if len(parts) != 3 || parts[0] != tileNamePrefix {
		return Coordinate{}, NewError(KindFormat, op, fmt.Errorf("malformed tile name %q", name))
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return Coordinate{}, NewError(KindFormat, op, fmt.Errorf("tile name %q: %w", name, err))
	}
	y, err := strconv.Atoi(parts[2])
	if err != nil {
		return Coordinate{}, NewError(KindFormat, op, fmt.Errorf("tile name %q: %w", name, err))
	}
	return Coordinate{X: x, Y: y}, nil
}
