package policy

import (
	"context"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/rules"
)

// Greedy heads for the food using only what the encoding exposes. It never
// turns into a danger cell if a safe move exists.
type Greedy struct{}

func (Greedy) Act(_ context.Context, f rules.Features) (game.Action, error) {
	heading := HeadingFromFeatures(f)

	safe := -1
	for i := 0; i < game.NumActions; i++ {
		if f[rules.FeatDangerStraight+i] != 0 {
			continue
		}
		a := game.Action(i)
		if safe < 0 {
			safe = i
		}
		if towardFood(heading.Turn(a), f) {
			return a, nil
		}
	}
	if safe < 0 {
		return game.ActionStraight, nil
	}
	return game.Action(safe), nil
}

// HeadingFromFeatures decodes the heading bits. All zeros means Left.
func HeadingFromFeatures(f rules.Features) game.Direction {
	switch {
	case f[rules.FeatDirUp] != 0:
		return game.Up
	case f[rules.FeatDirRight] != 0:
		return game.Right
	case f[rules.FeatDirDown] != 0:
		return game.Down
	default:
		return game.Left
	}
}

func towardFood(d game.Direction, f rules.Features) bool {
	right := f[rules.FeatFoodRight] != 0
	below := f[rules.FeatFoodBelow] != 0
	switch d {
	case game.Right:
		return right
	case game.Left:
		return !right
	case game.Down:
		return below
	default:
		return !below
	}
}
