// Package harness runs episodes of the snake environment under a policy and
// turns them into a scalar fitness for an external training loop.
package harness

import (
	"context"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/rules"
)

// Policy maps an encoded state to a relative action. The harness does not
// care how it was produced.
type Policy interface {
	Act(ctx context.Context, state rules.Features) (game.Action, error)
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(ctx context.Context, state rules.Features) (game.Action, error)

func (f PolicyFunc) Act(ctx context.Context, state rules.Features) (game.Action, error) {
	return f(ctx, state)
}

// Constant always returns the same action.
func Constant(a game.Action) Policy {
	return PolicyFunc(func(context.Context, rules.Features) (game.Action, error) {
		return a, nil
	})
}

// Argmax picks the action with the highest activation. Ties go to the lowest
// index. The result is only meaningful for len(outputs) == game.NumActions;
// callers validate it like any other action.
func Argmax[T ~float32 | ~float64](outputs []T) game.Action {
	best := 0
	for i := 1; i < len(outputs); i++ {
		if outputs[i] > outputs[best] {
			best = i
		}
	}
	return game.Action(best)
}
