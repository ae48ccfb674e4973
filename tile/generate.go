package tile

import (
	"hash/fnv"
	"math/rand"
)

const (
	// DefaultWidth and DefaultHeight size generated maps for worlds whose
	// save carries no explicit grid.
	DefaultWidth  = 24
	DefaultHeight = 16

	waterChance = 0.06
	rockChance  = 0.04
)

// SeedValue folds a world seed string into a deterministic RNG seed.
func SeedValue(seed string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(seed))
	return int64(hasher.Sum64())
}

// Generate builds a deterministic map from a world seed: walled perimeter,
// scattered water and rock, and a guaranteed-clear spawn at the center. The
// same seed always yields the same grid.
func Generate(seed string, width, height int) *Map {
	if width < 3 {
		width = DefaultWidth
	}
	if height < 3 {
		height = DefaultHeight
	}

	rng := rand.New(rand.NewSource(SeedValue(seed)))

	tiles := make([]Kind, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			kind := Ground
			switch {
			case x == 0 || y == 0 || x == width-1 || y == height-1:
				kind = Wall
			case rng.Float64() < waterChance:
				kind = Water
			case rng.Float64() < rockChance:
				kind = Wall
			}
			tiles[y*width+x] = kind
		}
	}

	m := &Map{width: width, height: height, tiles: tiles, spawnX: width / 2, spawnY: height / 2}

	// Clear the spawn and its neighbors so nobody starts walled in.
	for _, offset := range [...][2]int{{0, 0}, {0, -1}, {0, 1}, {-1, 0}, {1, 0}} {
		x, y := m.spawnX+offset[0], m.spawnY+offset[1]
		if m.InBounds(x, y) && x != 0 && y != 0 && x != width-1 && y != height-1 {
			m.tiles[y*width+x] = Ground
		}
	}

	return m
}
