package tile

import (
	"encoding/json"
	"fmt"
)

// Document is the JSON shape a world save may use to describe its grid
// inside the opaque world data blob.
type Document struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Spawn  Coord    `json:"spawn"`
	Tiles  []string `json:"tiles"`
}

// Coord is a tile coordinate in a map document.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Decode parses a map document out of raw world data. Callers are expected
// to fall back to Generate when the blob does not carry a grid.
func Decode(raw []byte) (*Map, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tile: decode map document: %w", err)
	}
	if len(doc.Tiles) == 0 {
		return nil, fmt.Errorf("tile: map document has no tiles")
	}
	m, err := NewMap(doc.Tiles, doc.Spawn.X, doc.Spawn.Y)
	if err != nil {
		return nil, err
	}
	if doc.Width != 0 && doc.Width != m.Width() {
		return nil, fmt.Errorf("tile: declared width %d does not match rows (%d)", doc.Width, m.Width())
	}
	if doc.Height != 0 && doc.Height != m.Height() {
		return nil, fmt.Errorf("tile: declared height %d does not match rows (%d)", doc.Height, m.Height())
	}
	return m, nil
}

// Encode renders a map back into its JSON document form.
func Encode(m *Map) ([]byte, error) {
	sx, sy := m.Spawn()
	doc := Document{
		Width:  m.Width(),
		Height: m.Height(),
		Spawn:  Coord{X: sx, Y: sy},
		Tiles:  m.Rows(),
	}
	return json.Marshal(doc)
}
