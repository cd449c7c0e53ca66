package game

import "fmt"

// Direction is an absolute heading on the grid.
type Direction int

const (
	Up Direction = iota
	Right
	Down
	Left
)

var directionNames = [...]string{"up", "right", "down", "left"}

// deltas maps each heading to its unit step. Up is (0,-1) because y grows downward.
var deltas = [...]Point{
	Up:    {X: 0, Y: -1},
	Right: {X: 1, Y: 0},
	Down:  {X: 0, Y: 1},
	Left:  {X: -1, Y: 0},
}

// rotation is indexed by [heading][action] and yields the new heading.
// Left turn maps (dx,dy) to (-dy,dx); right turn maps (dx,dy) to (dy,-dx).
var rotation = [4][3]Direction{
	Up:    {ActionStraight: Up, ActionLeft: Right, ActionRight: Left},
	Right: {ActionStraight: Right, ActionLeft: Down, ActionRight: Up},
	Down:  {ActionStraight: Down, ActionLeft: Left, ActionRight: Right},
	Left:  {ActionStraight: Left, ActionLeft: Up, ActionRight: Down},
}

func (d Direction) Valid() bool {
	return d >= Up && d <= Left
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Delta returns the unit step for d.
func (d Direction) Delta() Point {
	return deltas[d]
}

// Turn applies a relative action to d. The action must already be validated.
func (d Direction) Turn(a Action) Direction {
	return rotation[d][a]
}

// OneHot returns the (up, right, down) heading bits used by the encoding.
// Left has no bit of its own and is the all-zero pattern; networks trained
// against this encoding depend on that, so it must not gain a fourth bit.
func (d Direction) OneHot() (up, right, down float64) {
	switch d {
	case Up:
		return 1, 0, 0
	case Right:
		return 0, 1, 0
	case Down:
		return 0, 0, 1
	default:
		return 0, 0, 0
	}
}

// DirectionFromDelta converts a unit step back into a heading.
func DirectionFromDelta(p Point) (Direction, bool) {
	for d, delta := range deltas {
		if delta == p {
			return Direction(d), true
		}
	}
	return 0, false
}

// DirectionFromName parses "up", "right", "down" or "left".
func DirectionFromName(name string) (Direction, error) {
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", name)
}
