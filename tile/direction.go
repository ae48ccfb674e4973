package tile

// Direction is one of the four cardinal movement directions. No diagonals.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// ParseDirection validates a direction string received from the client.
func ParseDirection(value string) (Direction, bool) {
	switch Direction(value) {
	case DirUp, DirDown, DirLeft, DirRight:
		return Direction(value), true
	default:
		return "", false
	}
}

// Delta returns the tile offset for the direction. Up is negative Y.
func (d Direction) Delta() (int, int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	default:
		return 0, 0
	}
}
