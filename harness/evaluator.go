package harness

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/neatsnake/rules"
)

// Candidate is one member of a population.
type Candidate struct {
	ID     string
	Policy Policy
}

// Score aggregates the episodes played by one candidate.
type Score struct {
	CandidateID string
	// Fitness is the mean fitness across episodes.
	Fitness float64
	Results []Result
}

// Best returns the highest single-episode result.
func (s Score) Best() Result {
	var best Result
	for i, r := range s.Results {
		if i == 0 || r.Fitness > best.Fitness {
			best = r
		}
	}
	return best
}

// Evaluator scores whole populations. Each episode gets its own Environment
// and random source, so candidates can be played in parallel.
type Evaluator struct {
	Env      rules.Config
	Scoring  Scoring // zero means DefaultScoring
	Workers  int     // <= 0 means GOMAXPROCS
	Episodes int     // per candidate, <= 0 means 1
	Seed     int64   // episode i of every candidate uses Seed+i

	// Observe, when set, returns the step hook for one episode. It is
	// called from worker goroutines.
	Observe func(candidateID string, episode int, seed int64) func(StepInfo)

	Logger *slog.Logger
}

// NewEvaluator returns an evaluator with default scoring on cfg.
func NewEvaluator(cfg rules.Config, seed int64) *Evaluator {
	return &Evaluator{
		Env:      cfg,
		Scoring:  DefaultScoring(),
		Episodes: 1,
		Seed:     seed,
	}
}

// EvaluatePopulation plays every candidate and returns scores in candidate
// order. The first error cancels the remaining work.
func (e *Evaluator) EvaluatePopulation(ctx context.Context, candidates []Candidate) ([]Score, error) {
	if err := e.Env.Validate(); err != nil {
		return nil, err
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	episodes := e.Episodes
	if episodes <= 0 {
		episodes = 1
	}

	run := *e
	if run.Scoring == (Scoring{}) {
		run.Scoring = DefaultScoring()
	}

	scores := make([]Score, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range candidates {
		g.Go(func() error {
			s, err := run.evaluateCandidate(gctx, c, episodes)
			if err != nil {
				return fmt.Errorf("candidate %s: %w", c.ID, err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// EvaluateRepeated plays a single policy for the given number of episodes.
func (e *Evaluator) EvaluateRepeated(ctx context.Context, id string, policy Policy, episodes int) (Score, error) {
	cp := *e
	cp.Episodes = episodes
	scores, err := cp.EvaluatePopulation(ctx, []Candidate{{ID: id, Policy: policy}})
	if err != nil {
		return Score{}, err
	}
	return scores[0], nil
}

func (e *Evaluator) evaluateCandidate(ctx context.Context, c Candidate, episodes int) (Score, error) {
	s := Score{CandidateID: c.ID, Results: make([]Result, 0, episodes)}
	total := 0.0
	for ep := 0; ep < episodes; ep++ {
		seed := e.Seed + int64(ep)
		env, err := rules.NewEnvironment(e.Env, rand.New(rand.NewSource(seed)))
		if err != nil {
			return Score{}, err
		}
		opts := Options{Scoring: e.Scoring}
		if e.Observe != nil {
			opts.OnStep = e.Observe(c.ID, ep, seed)
		}
		res, err := Evaluate(ctx, env, c.Policy, opts)
		if err != nil {
			return Score{}, fmt.Errorf("episode %d: %w", ep, err)
		}
		if e.Logger != nil {
			e.Logger.Debug("episode finished",
				"candidate", c.ID,
				"episode", ep,
				"fitness", res.Fitness,
				"steps", res.Steps,
				"score", res.Score,
				"reason", res.Reason,
			)
		}
		s.Results = append(s.Results, res)
		total += res.Fitness
	}
	s.Fitness = total / float64(episodes)
	return s, nil
}
