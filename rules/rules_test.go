package rules

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/brensch/neatsnake/game"
)

func dumpState(state *game.GameState) string {
	if state == nil {
		return "<nil state>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Size=%d Dir=%s Score=%d Terminal=%v Food=%v\n", state.Size, state.Direction, state.Score, state.Terminal, state.Food)
	fmt.Fprintf(&b, "Body(%d):", len(state.Body))
	for _, p := range state.Body {
		fmt.Fprintf(&b, " %v", p)
	}
	b.WriteString("\n")

	if state.Size > 40 {
		return b.String()
	}
	occ := make(map[game.Point]int, len(state.Body))
	for i, p := range state.Body {
		occ[p] = i + 1
	}
	b.WriteString("Board:\n")
	for y := 0; y < state.Size; y++ {
		for x := 0; x < state.Size; x++ {
			p := game.Point{X: x, Y: y}
			switch {
			case occ[p] == 1:
				b.WriteByte('H')
			case occ[p] > 1:
				b.WriteByte('o')
			case p == state.Food:
				b.WriteByte('F')
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func logStep(t *testing.T, name string, before *game.GameState, action game.Action, after *game.GameState) {
	t.Helper()
	t.Logf("=== %s ===\nBefore:\n%sAction: %s\nAfter:\n%s", name, dumpState(before), action, dumpState(after))
}

func mustRestore(t *testing.T, state *game.GameState) *Environment {
	t.Helper()
	env, err := Restore(state, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("restore: %v\n%s", err, dumpState(state))
	}
	return env
}

func samePoints(a, b []game.Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewEnvironment_RejectsTinyGrid(t *testing.T) {
	for _, size := range []int{-1, 0, 1} {
		_, err := NewEnvironment(Config{Size: size}, nil)
		if !errors.Is(err, game.ErrConfiguration) {
			t.Fatalf("size=%d err=%v want ErrConfiguration", size, err)
		}
		var cfgErr *game.ConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "size" {
			t.Fatalf("size=%d err=%v want *ConfigurationError on size", size, err)
		}
	}
}

func TestReset_PlacesSnakeAtCentreHeadingUp(t *testing.T) {
	env, err := NewEnvironment(DefaultConfig(), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	// Dirty the state so Reset has something to undo.
	for i := 0; i < 5; i++ {
		if _, _, _, err := env.Step(game.ActionLeft); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	state, err := env.Reset()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	snap := env.Snapshot()
	if !samePoints(snap.Body, []game.Point{{X: 10, Y: 10}}) {
		t.Fatalf("body=%v want [(10,10)]", snap.Body)
	}
	if snap.Direction != game.Up || snap.Score != 0 || snap.Terminal {
		t.Fatalf("unexpected reset state:\n%s", dumpState(snap))
	}
	if snap.Food == snap.Body[0] || !snap.Food.InBounds(20) {
		t.Fatalf("bad food placement:\n%s", dumpState(snap))
	}
	if state != env.State() {
		t.Fatalf("reset returned %v, State() is %v", state, env.State())
	}
}

func TestStep_ImmediateDeathAtCorner(t *testing.T) {
	before := &game.GameState{
		Size:      20,
		Body:      []game.Point{{X: 0, Y: 0}},
		Direction: game.Up,
		Food:      game.Point{X: 5, Y: 5},
	}
	env := mustRestore(t, before)

	_, reward, terminal, err := env.Step(game.ActionStraight)
	after := env.Snapshot()
	logStep(t, "immediate death", before, game.ActionStraight, after)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !terminal || reward != RewardDeath {
		t.Fatalf("terminal=%v reward=%v want true,-10", terminal, reward)
	}
	if !samePoints(after.Body, before.Body) || after.Food != before.Food || after.Score != before.Score {
		t.Fatalf("state changed on collision")
	}
	if env.TerminalReason() != ReasonWall {
		t.Fatalf("reason=%q want wall", env.TerminalReason())
	}
}

func TestStep_NormalMoveShiftsBody(t *testing.T) {
	before := &game.GameState{
		Size:      7,
		Body:      []game.Point{{X: 3, Y: 3}, {X: 3, Y: 4}, {X: 3, Y: 5}},
		Direction: game.Up,
		Food:      game.Point{X: 0, Y: 0},
	}
	env := mustRestore(t, before)

	_, reward, terminal, err := env.Step(game.ActionStraight)
	after := env.Snapshot()
	logStep(t, "normal move", before, game.ActionStraight, after)
	if err != nil || terminal || reward != 0 {
		t.Fatalf("err=%v terminal=%v reward=%v", err, terminal, reward)
	}
	want := []game.Point{{X: 3, Y: 2}, {X: 3, Y: 3}, {X: 3, Y: 4}}
	if !samePoints(after.Body, want) {
		t.Fatalf("body=%v want=%v", after.Body, want)
	}
}

func TestStep_EatingFoodGrowsAndRelocatesFood(t *testing.T) {
	before := &game.GameState{
		Size:      20,
		Body:      []game.Point{{X: 5, Y: 5}, {X: 5, Y: 6}},
		Direction: game.Up,
		Food:      game.Point{X: 5, Y: 4},
	}
	env := mustRestore(t, before)

	_, reward, terminal, err := env.Step(game.ActionStraight)
	after := env.Snapshot()
	logStep(t, "eat food", before, game.ActionStraight, after)
	if err != nil || terminal {
		t.Fatalf("err=%v terminal=%v", err, terminal)
	}
	if reward != RewardFood {
		t.Fatalf("reward=%v want 10", reward)
	}
	want := []game.Point{{X: 5, Y: 4}, {X: 5, Y: 5}, {X: 5, Y: 6}}
	if !samePoints(after.Body, want) {
		t.Fatalf("body=%v want=%v", after.Body, want)
	}
	if after.Score != 1 {
		t.Fatalf("score=%d want 1", after.Score)
	}
	if after.Food == before.Food {
		t.Fatalf("food was not relocated")
	}
	for _, p := range after.Body {
		if p == after.Food {
			t.Fatalf("food %v placed on snake", after.Food)
		}
	}
}

func TestStep_TurningIntoOwnTailIsFatal(t *testing.T) {
	// The tail would vacate this tick, but collisions use the pre-move body.
	before := &game.GameState{
		Size:      20,
		Body:      []game.Point{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 5}},
		Direction: game.Up,
		Food:      game.Point{X: 0, Y: 0},
	}
	env := mustRestore(t, before)

	_, reward, terminal, err := env.Step(game.ActionLeft)
	after := env.Snapshot()
	logStep(t, "tail collision", before, game.ActionLeft, after)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !terminal || reward != RewardDeath || env.TerminalReason() != ReasonSelf {
		t.Fatalf("terminal=%v reward=%v reason=%q", terminal, reward, env.TerminalReason())
	}
	if !samePoints(after.Body, before.Body) {
		t.Fatalf("body changed on collision: %v", after.Body)
	}
}

func TestStep_RejectsInvalidActionWithoutMutating(t *testing.T) {
	env, err := NewEnvironment(DefaultConfig(), rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	before := env.Snapshot()
	for _, a := range []game.Action{-1, 3, 7} {
		_, _, _, err := env.Step(a)
		if !errors.Is(err, game.ErrInvalidAction) {
			t.Fatalf("action %d: err=%v want ErrInvalidAction", a, err)
		}
	}
	after := env.Snapshot()
	if !samePoints(after.Body, before.Body) || after.Food != before.Food || after.Direction != before.Direction {
		t.Fatalf("invalid action mutated state:\nbefore:\n%safter:\n%s", dumpState(before), dumpState(after))
	}
}

func TestStep_AfterTerminalIsFrozen(t *testing.T) {
	env := mustRestore(t, &game.GameState{
		Size:      5,
		Body:      []game.Point{{X: 0, Y: 0}},
		Direction: game.Up,
		Food:      game.Point{X: 4, Y: 4},
	})
	if _, _, terminal, _ := env.Step(game.ActionStraight); !terminal {
		t.Fatalf("expected terminal")
	}
	before := env.Snapshot()
	_, reward, terminal, err := env.Step(game.ActionLeft)
	if err != nil || !terminal || reward != 0 {
		t.Fatalf("err=%v terminal=%v reward=%v", err, terminal, reward)
	}
	if !samePoints(env.Snake(), before.Body) {
		t.Fatalf("terminal environment moved")
	}
}

func TestStep_FillingTheBoardEndsTheEpisode(t *testing.T) {
	before := &game.GameState{
		Size:      2,
		Body:      []game.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}},
		Direction: game.Left,
		Food:      game.Point{X: 0, Y: 1},
	}
	env := mustRestore(t, before)

	_, reward, terminal, err := env.Step(game.ActionRight)
	logStep(t, "board full", before, game.ActionRight, env.Snapshot())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !terminal || reward != RewardFood || env.TerminalReason() != ReasonBoardFull {
		t.Fatalf("terminal=%v reward=%v reason=%q", terminal, reward, env.TerminalReason())
	}
	if env.Length() != 4 || env.Score() != 1 {
		t.Fatalf("length=%d score=%d", env.Length(), env.Score())
	}
}

func TestRestore_RejectsBrokenSnapshot(t *testing.T) {
	_, err := Restore(&game.GameState{
		Size:      5,
		Body:      []game.Point{{X: 1, Y: 1}, {X: 3, Y: 3}},
		Direction: game.Up,
		Food:      game.Point{X: 0, Y: 0},
	}, nil)
	if !errors.Is(err, game.ErrConfiguration) {
		t.Fatalf("err=%v want ErrConfiguration", err)
	}
}

func TestRestore_TerminalSnapshotKeepsReason(t *testing.T) {
	env := mustRestore(t, &game.GameState{
		Size:      5,
		Body:      []game.Point{{X: 0, Y: 0}},
		Direction: game.Up,
		Food:      game.Point{X: 4, Y: 4},
	})
	if _, _, terminal, _ := env.Step(game.ActionStraight); !terminal {
		t.Fatalf("expected terminal")
	}

	back := mustRestore(t, env.Snapshot())
	if !back.Terminal() || back.TerminalReason() != ReasonWall {
		t.Fatalf("terminal=%v reason=%q want wall", back.Terminal(), back.TerminalReason())
	}

	_, err := Restore(&game.GameState{
		Size:      5,
		Body:      []game.Point{{X: 2, Y: 2}},
		Direction: game.Up,
		Food:      game.Point{X: 4, Y: 4},
		Terminal:  true,
	}, nil)
	if !errors.Is(err, game.ErrConfiguration) {
		t.Fatalf("err=%v want ErrConfiguration", err)
	}
}

func TestRestore_LargeBoardDoesNotAllocateByArea(t *testing.T) {
	state := &game.GameState{
		Size:      20000,
		Body:      []game.Point{{X: 1, Y: 1}},
		Direction: game.Up,
		Food:      game.Point{X: 0, Y: 0},
	}
	env, err := Restore(state, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if f := env.State(); f[FeatDangerStraight] != 0 || f[FeatDangerLeft] != 0 || f[FeatDangerRight] != 0 {
		t.Fatalf("features=%v", f)
	}
}

// TestRandomPlay_Invariants drives random actions through many episodes and
// checks containment, overlap and growth after every step.
func TestRandomPlay_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	env, err := NewEnvironment(Config{Size: 8}, rand.New(rand.NewSource(12)))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}

	for episode := 0; episode < 200; episode++ {
		if _, err := env.Reset(); err != nil {
			t.Fatalf("reset: %v", err)
		}
		for step := 0; step < 500; step++ {
			before := env.Snapshot()
			action := game.Action(rng.Intn(game.NumActions))
			_, reward, terminal, err := env.Step(action)
			if err != nil {
				t.Fatalf("step: %v", err)
			}
			after := env.Snapshot()

			if terminal {
				if env.TerminalReason() != ReasonBoardFull && len(after.Body) != len(before.Body) {
					logStep(t, "terminal length", before, action, after)
					t.Fatalf("length changed on a collision")
				}
				break
			}
			if err := after.Validate(); err != nil {
				logStep(t, "invariant", before, action, after)
				t.Fatalf("episode %d step %d: %v", episode, step, err)
			}
			grew := len(after.Body) - len(before.Body)
			if (reward > 0) != (grew == 1) || grew < 0 || grew > 1 {
				logStep(t, "growth", before, action, after)
				t.Fatalf("reward=%v but length delta=%d", reward, grew)
			}
		}
	}
}
