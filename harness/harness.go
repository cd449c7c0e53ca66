package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/rules"
)

// ErrAlreadyTerminal is returned when resuming a finished environment.
var ErrAlreadyTerminal = errors.New("environment is already terminal")

// Reason explains why an evaluation episode ended.
type Reason string

const (
	ReasonCollision  Reason = "collision"
	ReasonStagnation Reason = "stagnation"
	ReasonBoardFull  Reason = "board_full"
)

// Scoring holds the fitness shaping constants.
type Scoring struct {
	SurvivalBonus float64 // added every step
	FoodBonus     float64 // added when the step reward is positive
	DeathPenalty  float64 // subtracted on a collision
	// MaxStagnation is the number of consecutive steps without food after
	// which the episode is cut off. The cut-off is not penalised.
	MaxStagnation int
}

func DefaultScoring() Scoring {
	return Scoring{
		SurvivalBonus: 0.1,
		FoodBonus:     10,
		DeathPenalty:  5,
		MaxStagnation: 200,
	}
}

// StepInfo is handed to observers after every step.
type StepInfo struct {
	Step       int // 1-based
	Features   rules.Features
	Action     game.Action
	Reward     float64
	Terminal   bool
	Fitness    float64 // running total after this step
	Stagnation int
	// State is a snapshot taken after the step.
	State *game.GameState
}

// Options configures a single evaluation.
type Options struct {
	Scoring Scoring
	// OnStep is called synchronously after each step. Leave nil to avoid
	// the per-step snapshot.
	OnStep func(StepInfo)
	// Resume plays on from env's current position instead of resetting it.
	Resume bool
}

// DefaultOptions uses DefaultScoring and no observer.
func DefaultOptions() Options {
	return Options{Scoring: DefaultScoring()}
}

type Result struct {
	Fitness float64
	Steps   int
	Score   int
	Length  int
	Reason  Reason
}

// Trace summarises a result for logs and storage.
func (r Result) Trace() map[string]any {
	return map[string]any{
		"fitness": r.Fitness,
		"steps":   r.Steps,
		"score":   r.Score,
		"length":  r.Length,
		"reason":  string(r.Reason),
	}
}

// Evaluate resets env (unless opts.Resume) and plays one episode under
// policy, returning the shaped fitness. Any action outside {0,1,2} aborts the episode with an
// error wrapping game.ErrInvalidAction. A cancelled context aborts it with
// ctx.Err(); the partial result is returned alongside.
func Evaluate(ctx context.Context, env *rules.Environment, policy Policy, opts Options) (Result, error) {
	sc := opts.Scoring
	var state rules.Features
	if opts.Resume {
		if env.Terminal() {
			return Result{Score: env.Score(), Length: env.Length()}, ErrAlreadyTerminal
		}
		state = env.State()
	} else {
		var err error
		if state, err = env.Reset(); err != nil {
			return Result{}, fmt.Errorf("reset: %w", err)
		}
	}

	var res Result
	stagnation := 0
	finish := func(reason Reason) Result {
		res.Reason = reason
		res.Score = env.Score()
		res.Length = env.Length()
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(""), err
		}

		action, err := policy.Act(ctx, state)
		if err != nil {
			return finish(""), fmt.Errorf("policy at step %d: %w", res.Steps+1, err)
		}
		if !action.Valid() {
			return finish(""), fmt.Errorf("policy at step %d returned %w: %d", res.Steps+1, game.ErrInvalidAction, int(action))
		}

		next, reward, done, err := env.Step(action)
		if err != nil {
			return finish(""), fmt.Errorf("step %d: %w", res.Steps+1, err)
		}
		res.Steps++
		res.Fitness += sc.SurvivalBonus

		if reward > 0 {
			res.Fitness += sc.FoodBonus
			stagnation = 0
		} else {
			stagnation++
		}

		var reason Reason
		switch {
		case done && env.TerminalReason() == rules.ReasonBoardFull:
			reason = ReasonBoardFull
		case done:
			res.Fitness -= sc.DeathPenalty
			reason = ReasonCollision
		case stagnation > sc.MaxStagnation:
			reason = ReasonStagnation
		}

		if opts.OnStep != nil {
			opts.OnStep(StepInfo{
				Step:       res.Steps,
				Features:   state,
				Action:     action,
				Reward:     reward,
				Terminal:   reason != "",
				Fitness:    res.Fitness,
				Stagnation: stagnation,
				State:      env.Snapshot(),
			})
		}

		if reason != "" {
			return finish(reason), nil
		}
		state = next
	}
}
