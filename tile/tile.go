// Package tile holds the immutable tile grid and the movement rules shared
// with the client's prediction code. Anything that changes here changes the
// reconciliation contract.
package tile

import "fmt"

// Kind identifies a tile in the closed tile set.
type Kind uint8

const (
	Ground Kind = iota
	Wall
	Water
)

// Tile runes used by the JSON map document and test fixtures.
const (
	runeGround = '.'
	runeWall   = '#'
	runeWater  = '~'
)

func kindForRune(r rune) (Kind, bool) {
	switch r {
	case runeGround:
		return Ground, true
	case runeWall:
		return Wall, true
	case runeWater:
		return Water, true
	default:
		return Ground, false
	}
}

func (k Kind) rune() rune {
	switch k {
	case Wall:
		return runeWall
	case Water:
		return runeWater
	default:
		return runeGround
	}
}

// Passable reports whether actors may stand on the tile kind. Walls block
// and so does water; the party has no boats.
func (k Kind) Passable() bool {
	return k == Ground
}

// Map is a W×H grid of tiles plus a spawn coordinate. It never changes for
// the lifetime of a room.
type Map struct {
	width  int
	height int
	tiles  []Kind
	spawnX int
	spawnY int
}

// NewMap builds a map from row strings ('.', '#', '~'). Rows must all be the
// same length and the spawn must land on a passable tile.
func NewMap(rows []string, spawnX, spawnY int) (*Map, error) {
	height := len(rows)
	if height == 0 {
		return nil, fmt.Errorf("tile: map has no rows")
	}
	width := len([]rune(rows[0]))
	if width == 0 {
		return nil, fmt.Errorf("tile: map has empty rows")
	}

	tiles := make([]Kind, 0, width*height)
	for y, row := range rows {
		runes := []rune(row)
		if len(runes) != width {
			return nil, fmt.Errorf("tile: row %d has width %d, want %d", y, len(runes), width)
		}
		for x, r := range runes {
			kind, ok := kindForRune(r)
			if !ok {
				return nil, fmt.Errorf("tile: unknown tile %q at (%d,%d)", r, x, y)
			}
			tiles = append(tiles, kind)
		}
	}

	m := &Map{width: width, height: height, tiles: tiles, spawnX: spawnX, spawnY: spawnY}
	if !m.Passable(spawnX, spawnY) {
		return nil, fmt.Errorf("tile: spawn (%d,%d) is not passable", spawnX, spawnY)
	}
	return m, nil
}

func (m *Map) Width() int  { return m.width }
func (m *Map) Height() int { return m.height }

// Spawn returns the coordinate new characters start on.
func (m *Map) Spawn() (int, int) { return m.spawnX, m.spawnY }

// InBounds reports whether (x,y) addresses a tile.
func (m *Map) InBounds(x, y int) bool {
	return x >= 0 && x < m.width && y >= 0 && y < m.height
}

// At returns the tile kind at (x,y). Out-of-bounds coordinates read as Wall
// so callers cannot walk off the grid by accident.
func (m *Map) At(x, y int) Kind {
	if !m.InBounds(x, y) {
		return Wall
	}
	return m.tiles[y*m.width+x]
}

// Passable reports whether an actor may stand on (x,y).
func (m *Map) Passable(x, y int) bool {
	return m.InBounds(x, y) && m.At(x, y).Passable()
}

// Rows renders the grid back into row strings, the same format NewMap and
// the map document accept.
func (m *Map) Rows() []string {
	rows := make([]string, 0, m.height)
	for y := 0; y < m.height; y++ {
		runes := make([]rune, 0, m.width)
		for x := 0; x < m.width; x++ {
			runes = append(runes, m.At(x, y).rune())
		}
		rows = append(rows, string(runes))
	}
	return rows
}
