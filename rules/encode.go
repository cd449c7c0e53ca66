package rules

import (
	"github.com/brensch/neatsnake/game"
)

// NumFeatures is the length of the encoded state.
const NumFeatures = 11

// Feature indices.
const (
	FeatDangerStraight = iota
	FeatDangerLeft
	FeatDangerRight
	FeatTailStraight
	FeatTailLeft
	FeatTailRight
	FeatFoodRight
	FeatFoodBelow
	FeatDirUp
	FeatDirRight
	FeatDirDown
)

// FeatureNames lists the features in encoding order.
var FeatureNames = [NumFeatures]string{
	"danger_straight", "danger_left", "danger_right",
	"tail_dist_straight", "tail_dist_left", "tail_dist_right",
	"food_right", "food_below",
	"dir_up", "dir_right", "dir_down",
}

// Features is the 11-value observation handed to a policy.
type Features [NumFeatures]float64

// Slice returns the features as a fresh slice.
func (f Features) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, f[:])
	return out
}

// State encodes the current position from scratch on every call.
func (e *Environment) State() Features {
	var f Features
	head := e.body.Head()

	relative := [3]game.Direction{
		e.dir.Turn(game.ActionStraight),
		e.dir.Turn(game.ActionLeft),
		e.dir.Turn(game.ActionRight),
	}

	for i, d := range relative {
		if e.Blocked(head.Add(d.Delta())) {
			f[FeatDangerStraight+i] = 1
		}
		f[FeatTailStraight+i] = e.tailProximity(head, d)
	}

	if e.food.X > head.X {
		f[FeatFoodRight] = 1
	}
	if e.food.Y > head.Y {
		f[FeatFoodBelow] = 1
	}

	f[FeatDirUp], f[FeatDirRight], f[FeatDirDown] = e.dir.OneHot()
	return f
}

// tailProximity casts a ray from the head and returns 1/d for the first
// body cell (head excluded) d steps away, or 0 when the ray leaves the grid.
func (e *Environment) tailProximity(head game.Point, d game.Direction) float64 {
	delta := d.Delta()
	p := head
	for dist := 1; ; dist++ {
		p = p.Add(delta)
		if !p.InBounds(e.size) {
			return 0
		}
		// The head can never lie on its own ray, so any hit is a tail cell.
		if e.body.Contains(p) {
			return 1 / float64(dist)
		}
	}
}
