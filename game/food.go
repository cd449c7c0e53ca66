// food.go implements food placement.

package game

import (
	"math/rand"
)

// FreeCells lists every grid cell not covered by the body, row by row.
func FreeCells(size int, body *Body) []Point {
	free := make([]Point, 0, size*size-body.Len())
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := Point{X: x, Y: y}
			if !body.Contains(p) {
				free = append(free, p)
			}
		}
	}
	return free
}

// SpawnFood picks a cell uniformly at random among the free cells.
// It reports false when the body covers the whole grid, instead of
// searching forever for a spot that does not exist.
func SpawnFood(size int, body *Body, rng *rand.Rand) (Point, bool) {
	// Rejection sampling is cheap while the board is mostly empty.
	if body.Len()*2 < size*size {
		for i := 0; i < 32; i++ {
			p := Point{X: rng.Intn(size), Y: rng.Intn(size)}
			if !body.Contains(p) {
				return p, true
			}
		}
	}

	free := FreeCells(size, body)
	if len(free) == 0 {
		return Point{}, false
	}
	return free[rng.Intn(len(free))], true
}
