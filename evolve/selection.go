package evolve

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ScoredGenome pairs a flat weight vector with its mean fitness.
type ScoredGenome struct {
	ID      string
	Genome  []float64
	Fitness float64
	Score   int
	Steps   int
	Reason  string
}

// Rank sorts best first. Ties keep their original order so a run is
// reproducible for a fixed seed.
func Rank(scored []ScoredGenome) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Fitness > scored[j].Fitness
	})
}

// Selector chooses parents from a ranked population.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) ([]float64, error)
}

var errNoRandom = errors.New("random source is required")

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string { return "elite" }

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) ([]float64, error) {
	if rng == nil {
		return nil, errNoRandom
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)].Genome, nil
}

// TournamentSelector samples TournamentSize genomes from the top PoolSize
// and keeps the fittest.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string { return "tournament" }

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) ([]float64, error) {
	if rng == nil {
		return nil, errNoRandom
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return nil, fmt.Errorf("invalid elite count: %d", eliteCount)
	}

	poolSize := s.PoolSize
	if poolSize <= 0 {
		poolSize = eliteCount * 2
	}
	poolSize = max(poolSize, eliteCount)
	poolSize = min(poolSize, len(ranked))

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}
	tournamentSize = min(tournamentSize, poolSize)

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		c := ranked[rng.Intn(poolSize)]
		if c.Fitness > best.Fitness {
			best = c
		}
	}
	return best.Genome, nil
}

// SelectorByName resolves the selector names accepted in configuration.
func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", "tournament":
		return TournamentSelector{}, nil
	case "elite":
		return EliteSelector{}, nil
	default:
		return nil, fmt.Errorf("unknown selector %q", name)
	}
}
