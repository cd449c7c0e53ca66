// Command watch animates a policy playing one episode at a time.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/neatsnake/config"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/policy"
	"github.com/brensch/neatsnake/render"
	"github.com/brensch/neatsnake/rules"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults are embedded)")
	ref := flag.String("policy", "greedy", "Policy: greedy, network:<file> or onnx:<file>")
	seed := flag.Int64("seed", 1, "Seed of the first episode; restarts count up from here")
	size := flag.Int("size", 0, "Grid side (overrides env.size)")
	delay := flag.Duration("delay", 80*time.Millisecond, "Time between frames")
	ascii := flag.Bool("ascii", false, "Print plain frames to stdout instead of the interactive view")
	features := flag.Bool("features", true, "Show the encoded features beside the board")
	flag.Parse()

	if err := run(*configPath, *ref, *seed, *size, *delay, *ascii, *features); err != nil {
		fmt.Fprintln(os.Stderr, "watch:", err)
		os.Exit(1)
	}
}

func run(configPath, ref string, seed int64, size int, delay time.Duration, ascii, features bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if size > 0 {
		cfg.Env.Size = size
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	p, closer, err := policy.Load(ref, cfg.OnnxConfig(), cfg.Onnx.Sessions)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watcher{
		env:     cfg.Rules(),
		scoring: cfg.HarnessScoring(),
		policy:  p,
		label:   ref,
	}

	if ascii {
		r := &render.ASCIIRenderer{W: os.Stdout, ShowFeatures: features}
		res, err := w.play(ctx, seed, func(f render.Frame) error {
			if err := r.Draw(f); err != nil {
				return err
			}
			time.Sleep(delay)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("episode over: %s after %d steps, score %d, fitness %.1f\n", res.Reason, res.Steps, res.Score, res.Fitness)
		return nil
	}

	r := render.NewStyledRenderer(os.Stdout)
	r.ShowFeatures = features
	m := newModel(ctx, w, r, seed, delay)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	m.stopEpisode()
	return err
}

// watcher plays episodes for display.
type watcher struct {
	env     rules.Config
	scoring harness.Scoring
	policy  harness.Policy
	label   string
}

// play runs one episode and hands every step to draw. draw may block to pace
// the episode; an error from it ends the episode.
func (w watcher) play(ctx context.Context, seed int64, draw func(render.Frame) error) (harness.Result, error) {
	env, err := rules.NewEnvironment(w.env, rand.New(rand.NewSource(seed)))
	if err != nil {
		return harness.Result{}, err
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	label := fmt.Sprintf("%s seed %d", w.label, seed)
	opts := harness.Options{
		Scoring: w.scoring,
		OnStep: func(si harness.StepInfo) {
			if err := draw(render.FrameFromStep(label, si)); err != nil {
				cancel(err)
			}
		},
	}
	res, err := harness.Evaluate(ctx, env, w.policy, opts)
	if cause := context.Cause(ctx); err != nil && cause != nil && cause != ctx.Err() {
		return res, cause
	}
	return res, err
}
