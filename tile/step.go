package tile

// Step is the movement evaluator: given a position and a direction it
// returns the resulting position and whether the actor moved. Blocked or
// out-of-bounds targets leave the position unchanged.
//
// Step is pure. The client's prediction code implements the same rules; any
// divergence between the two shows up as rubber-banding, so keep this the
// single source of truth for passability.
func Step(m *Map, x, y int, dir Direction) (int, int, bool) {
	dx, dy := dir.Delta()
	tx, ty := x+dx, y+dy
	if !m.Passable(tx, ty) {
		return x, y, false
	}
	return tx, ty, true
}
