// Package rules implements the snake environment: movement, collisions,
// growth, food relocation and the state encoding a policy observes.
//
// An Environment is single-threaded and owns all of its state, including
// its random source. Concurrent evaluations must each use their own.
package rules

import (
	"fmt"
	"math/rand"

	"github.com/brensch/neatsnake/game"
)

const (
	RewardFood  = 10.0
	RewardDeath = -10.0
)

// TerminalReason explains why an environment stopped.
type TerminalReason string

const (
	ReasonNone      TerminalReason = ""
	ReasonWall      TerminalReason = "wall"
	ReasonSelf      TerminalReason = "self"
	ReasonBoardFull TerminalReason = "board_full"
)

// Config describes an environment.
type Config struct {
	Size int
}

// DefaultConfig is a 20x20 board.
func DefaultConfig() Config {
	return Config{Size: game.DefaultSize}
}

func (c Config) Validate() error {
	if c.Size < game.MinSize {
		return &game.ConfigurationError{Field: "size", Reason: fmt.Sprintf("grid side %d is below %d", c.Size, game.MinSize)}
	}
	return nil
}

type Environment struct {
	size  int
	rng   *rand.Rand
	body  *game.Body
	dir   game.Direction
	food  game.Point
	score int

	terminal bool
	reason   TerminalReason
}

// NewEnvironment validates cfg and returns a reset environment.
// A nil rng is replaced by one seeded with 1.
func NewEnvironment(cfg Config, rng *rand.Rand) (*Environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	e := &Environment{size: cfg.Size, rng: rng}
	if _, err := e.Reset(); err != nil {
		return nil, err
	}
	return e, nil
}

// Restore builds an environment from a snapshot after validating it.
// Replays and tests use it to start from arbitrary positions.
func Restore(state *game.GameState, rng *rand.Rand) (*Environment, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	e := &Environment{
		size:  state.Size,
		rng:   rng,
		body:  game.NewBody(state.Body),
		dir:   state.Direction,
		food:  state.Food,
		score: state.Score,
	}
	if state.Terminal {
		// A fatal step leaves the body in place and turns the head toward
		// the cell that killed it, so the reason can be read back.
		reason := e.collision(e.body.Head().Add(e.dir.Delta()))
		if reason == ReasonNone {
			return nil, &game.ConfigurationError{Field: "terminal", Reason: "terminal snapshot with a free cell ahead"}
		}
		e.terminal = true
		e.reason = reason
	}
	return e, nil
}

// Reset places a one-segment snake at the centre heading up, spawns food
// and clears the score.
func (e *Environment) Reset() (Features, error) {
	center := game.Point{X: e.size / 2, Y: e.size / 2}
	e.body = game.NewBody([]game.Point{center})
	e.dir = game.Up
	e.score = 0
	e.terminal = false
	e.reason = ReasonNone

	food, ok := game.SpawnFood(e.size, e.body, e.rng)
	if !ok {
		return Features{}, &game.ConfigurationError{Field: "size", Reason: "no free cell for food"}
	}
	e.food = food
	return e.State(), nil
}

// Step applies a relative action and advances one tick.
//
// Collisions are checked against the body before it moves, tail included.
// On a collision nothing changes except the terminal flag. Stepping an
// environment that is already terminal is a no-op with zero reward.
func (e *Environment) Step(action game.Action) (Features, float64, bool, error) {
	if !action.Valid() {
		return Features{}, 0, e.terminal, fmt.Errorf("%w: %d", game.ErrInvalidAction, int(action))
	}
	if e.terminal {
		return e.State(), 0, true, nil
	}

	dir := e.dir.Turn(action)
	next := e.body.Head().Add(dir.Delta())

	if reason := e.collision(next); reason != ReasonNone {
		e.dir = dir
		e.terminal = true
		e.reason = reason
		return e.State(), RewardDeath, true, nil
	}

	e.dir = dir
	e.body.PushFront(next)

	if next != e.food {
		e.body.PopBack()
		return e.State(), 0, false, nil
	}

	e.score++
	food, ok := game.SpawnFood(e.size, e.body, e.rng)
	if !ok {
		// The snake covers the board; there is nowhere left to go.
		e.terminal = true
		e.reason = ReasonBoardFull
		return e.State(), RewardFood, true, nil
	}
	e.food = food
	return e.State(), RewardFood, false, nil
}

// Blocked reports whether p is a wall or a body cell. It is the single
// occupancy test shared by the terminal check and the danger features.
func (e *Environment) Blocked(p game.Point) bool {
	return e.collision(p) != ReasonNone
}

func (e *Environment) collision(p game.Point) TerminalReason {
	if !p.InBounds(e.size) {
		return ReasonWall
	}
	if e.body.Contains(p) {
		return ReasonSelf
	}
	return ReasonNone
}

func (e *Environment) Size() int                      { return e.size }
func (e *Environment) Food() game.Point               { return e.food }
func (e *Environment) Score() int                     { return e.score }
func (e *Environment) Length() int                    { return e.body.Len() }
func (e *Environment) Head() game.Point               { return e.body.Head() }
func (e *Environment) Direction() game.Direction      { return e.dir }
func (e *Environment) Terminal() bool                 { return e.terminal }
func (e *Environment) TerminalReason() TerminalReason { return e.reason }

// Snake returns a head-first copy of the body.
func (e *Environment) Snake() []game.Point {
	return e.body.Cells()
}

// Snapshot returns a detached copy of the current state.
func (e *Environment) Snapshot() *game.GameState {
	return &game.GameState{
		Size:      e.size,
		Body:      e.body.Cells(),
		Direction: e.dir,
		Food:      e.food,
		Score:     e.score,
		Terminal:  e.terminal,
	}
}
