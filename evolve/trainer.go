// Package evolve breeds fixed-topology networks against the harness:
// rank by mean fitness, keep the elite, fill the rest with mutated
// (and sometimes crossed-over) children of selected parents.
package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/ledger"
	"github.com/brensch/neatsnake/policy"
)

type Settings struct {
	Population    int
	Hidden        int
	Elite         int
	MutationRate  float64
	MutationSigma float64
	Crossover     float64
	Selector      Selector
	Seed          int64
}

// Generation is the ranked outcome of one Step.
type Generation struct {
	Index  int
	Ranked []ScoredGenome
	Mean   float64
}

func (g Generation) Best() ScoredGenome { return g.Ranked[0] }

type Trainer struct {
	settings  Settings
	evaluator *harness.Evaluator

	// Ledger, when set, receives every candidate of every generation
	// under RunID.
	Ledger *ledger.Ledger
	RunID  string
	Logger *slog.Logger

	rng        *rand.Rand
	population [][]float64
	generation int
	best       ScoredGenome
	hasBest    bool
}

// NewTrainer seeds a random initial population.
func NewTrainer(s Settings, ev *harness.Evaluator) (*Trainer, error) {
	switch {
	case ev == nil:
		return nil, errors.New("evaluator is required")
	case s.Population <= 0:
		return nil, fmt.Errorf("invalid population: %d", s.Population)
	case s.Hidden <= 0:
		return nil, fmt.Errorf("invalid hidden size: %d", s.Hidden)
	case s.Elite < 0 || s.Elite > s.Population:
		return nil, fmt.Errorf("invalid elite count: %d", s.Elite)
	}
	if s.Selector == nil {
		s.Selector = TournamentSelector{}
	}

	t := &Trainer{
		settings:  s,
		evaluator: ev,
		Logger:    slog.Default(),
		rng:       rand.New(rand.NewSource(s.Seed)),
	}
	t.population = make([][]float64, s.Population)
	for i := range t.population {
		t.population[i] = policy.RandomGenome(s.Hidden, t.rng)
	}
	return t, nil
}

// Generation returns the index of the next generation to be evaluated.
func (t *Trainer) Generation() int { return t.generation }

// Best returns the fittest genome seen so far.
func (t *Trainer) Best() (ScoredGenome, bool) { return t.best, t.hasBest }

// BestFile returns the best genome in its saveable form.
func (t *Trainer) BestFile() *policy.File {
	return &policy.File{
		ID:         t.best.ID,
		Generation: t.bestGeneration(),
		Fitness:    t.best.Fitness,
		Hidden:     t.settings.Hidden,
		Genome:     append([]float64(nil), t.best.Genome...),
	}
}

func (t *Trainer) bestGeneration() int {
	var gen, idx int
	if _, err := fmt.Sscanf(t.best.ID, "g%d-%d", &gen, &idx); err != nil {
		return 0
	}
	return gen
}

// Step evaluates the current population, records it and breeds the next.
func (t *Trainer) Step(ctx context.Context) (Generation, error) {
	gen := t.generation
	candidates := make([]harness.Candidate, len(t.population))
	for i, genome := range t.population {
		net, err := policy.NewNetwork(t.settings.Hidden, genome)
		if err != nil {
			return Generation{}, err
		}
		candidates[i] = harness.Candidate{ID: candidateID(gen, i), Policy: net}
	}

	scores, err := t.evaluator.EvaluatePopulation(ctx, candidates)
	if err != nil {
		return Generation{}, fmt.Errorf("generation %d: %w", gen, err)
	}

	ranked := make([]ScoredGenome, len(scores))
	var total float64
	for i, s := range scores {
		best := s.Best()
		ranked[i] = ScoredGenome{
			ID:      s.CandidateID,
			Genome:  t.population[i],
			Fitness: s.Fitness,
			Score:   best.Score,
			Steps:   best.Steps,
			Reason:  string(best.Reason),
		}
		total += s.Fitness
	}
	Rank(ranked)
	out := Generation{Index: gen, Ranked: ranked, Mean: total / float64(len(ranked))}

	if t.Ledger != nil {
		if err := t.Ledger.RecordGeneration(ctx, t.records(out)); err != nil {
			return Generation{}, err
		}
	}

	if !t.hasBest || ranked[0].Fitness > t.best.Fitness {
		t.best = ranked[0]
		t.hasBest = true
	}

	t.Logger.Info("generation",
		"gen", gen,
		"best", ranked[0].Fitness,
		"mean", out.Mean,
		"best_score", ranked[0].Score,
		"best_reason", ranked[0].Reason,
		"all_time", t.best.Fitness,
	)

	next, err := t.breed(ranked)
	if err != nil {
		return Generation{}, err
	}
	t.population = next
	t.generation++
	return out, nil
}

// Run steps until generations have been evaluated or ctx is done. onGen, if
// non-nil, sees each generation and may stop the run by returning an error.
func (t *Trainer) Run(ctx context.Context, generations int, onGen func(Generation) error) (ScoredGenome, error) {
	for i := 0; i < generations; i++ {
		g, err := t.Step(ctx)
		if err != nil {
			return t.best, err
		}
		if onGen != nil {
			if err := onGen(g); err != nil {
				return t.best, err
			}
		}
	}
	return t.best, nil
}

func (t *Trainer) breed(ranked []ScoredGenome) ([][]float64, error) {
	s := t.settings
	next := make([][]float64, 0, s.Population)
	for i := 0; i < s.Elite; i++ {
		next = append(next, ranked[i].Genome)
	}

	parents := max(s.Elite, 1)
	for len(next) < s.Population {
		a, err := s.Selector.PickParent(t.rng, ranked, parents)
		if err != nil {
			return nil, err
		}
		child := a
		if t.rng.Float64() < s.Crossover {
			b, err := s.Selector.PickParent(t.rng, ranked, parents)
			if err != nil {
				return nil, err
			}
			child = policy.Crossover(a, b, t.rng)
		}
		next = append(next, policy.Mutate(child, t.rng, s.MutationRate, s.MutationSigma))
	}
	return next, nil
}

func (t *Trainer) records(g Generation) []ledger.CandidateRecord {
	out := make([]ledger.CandidateRecord, len(g.Ranked))
	for i, s := range g.Ranked {
		out[i] = ledger.CandidateRecord{
			RunID:       t.RunID,
			Generation:  g.Index,
			CandidateID: s.ID,
			Fitness:     s.Fitness,
			Score:       s.Score,
			Steps:       s.Steps,
			Reason:      s.Reason,
			Genome:      EncodeGenome(s.Genome),
		}
	}
	return out
}

func candidateID(gen, i int) string {
	return fmt.Sprintf("g%03d-%03d", gen, i)
}
