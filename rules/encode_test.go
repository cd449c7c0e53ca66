package rules

import (
	"math/rand"
	"testing"

	"github.com/brensch/neatsnake/game"
)

func TestState_DangerAndTailRays(t *testing.T) {
	env := mustRestore(t, &game.GameState{
		Size:      20,
		Body:      []game.Point{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 5}},
		Direction: game.Up,
		Food:      game.Point{X: 8, Y: 2},
	})

	got := env.State()
	want := Features{
		0, 1, 0, // relative left of up is (1,0), where the tail sits
		0, 1, 0,
		1, 0,
		1, 0, 0,
	}
	if got != want {
		t.Fatalf("features=%v want=%v\n%s", got, want, dumpState(env.Snapshot()))
	}
}

func TestState_TailDistanceDecaysAndLeftHeadingHasNoBit(t *testing.T) {
	env := mustRestore(t, &game.GameState{
		Size:      10,
		Body:      []game.Point{{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 7, Y: 5}, {X: 7, Y: 4}, {X: 7, Y: 3}, {X: 7, Y: 2}, {X: 6, Y: 2}, {X: 5, Y: 2}},
		Direction: game.Left,
		Food:      game.Point{X: 0, Y: 0},
	})

	got := env.State()
	want := Features{
		0, 0, 0,
		0, 1.0 / 3.0, 0,
		0, 0,
		0, 0, 0,
	}
	if got != want {
		t.Fatalf("features=%v want=%v\n%s", got, want, dumpState(env.Snapshot()))
	}
}

func TestState_WallsCountAsDanger(t *testing.T) {
	env := mustRestore(t, &game.GameState{
		Size:      20,
		Body:      []game.Point{{X: 0, Y: 0}},
		Direction: game.Up,
		Food:      game.Point{X: 3, Y: 3},
	})
	got := env.State()
	if got[FeatDangerStraight] != 1 || got[FeatDangerLeft] != 0 || got[FeatDangerRight] != 1 {
		t.Fatalf("danger bits=%v want [1 0 1]", got[:3])
	}
	if got[FeatFoodRight] != 1 || got[FeatFoodBelow] != 1 {
		t.Fatalf("food bits=%v want [1 1]", got[FeatFoodRight:FeatFoodBelow+1])
	}
}

func TestState_HeadingBits(t *testing.T) {
	cases := []struct {
		dir  game.Direction
		want [3]float64
	}{
		{game.Up, [3]float64{1, 0, 0}},
		{game.Right, [3]float64{0, 1, 0}},
		{game.Down, [3]float64{0, 0, 1}},
		{game.Left, [3]float64{0, 0, 0}},
	}
	for _, tc := range cases {
		env := mustRestore(t, &game.GameState{
			Size:      6,
			Body:      []game.Point{{X: 3, Y: 3}},
			Direction: tc.dir,
			Food:      game.Point{X: 0, Y: 0},
		})
		f := env.State()
		got := [3]float64{f[FeatDirUp], f[FeatDirRight], f[FeatDirDown]}
		if got != tc.want {
			t.Fatalf("%s: heading bits=%v want=%v", tc.dir, got, tc.want)
		}
	}
}

func TestState_IsDeterministic(t *testing.T) {
	env, err := NewEnvironment(DefaultConfig(), rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	rng := rand.New(rand.NewSource(6))
	for i := 0; i < 100 && !env.Terminal(); i++ {
		a, b := env.State(), env.State()
		if a != b {
			t.Fatalf("step %d: State() not deterministic: %v vs %v", i, a, b)
		}
		if _, _, _, err := env.Step(game.Action(rng.Intn(game.NumActions))); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
}

func TestState_StepReturnsFreshEncoding(t *testing.T) {
	env, err := NewEnvironment(DefaultConfig(), rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	got, _, _, err := env.Step(game.ActionRight)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if got != env.State() {
		t.Fatalf("step returned %v, State() is %v", got, env.State())
	}
}

func BenchmarkState(b *testing.B) {
	env, err := NewEnvironment(DefaultConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		b.Fatalf("new env: %v", err)
	}
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 30 && !env.Terminal(); i++ {
		_, _, _, _ = env.Step(game.Action(rng.Intn(game.NumActions)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = env.State()
	}
}
