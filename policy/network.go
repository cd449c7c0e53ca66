// Package policy holds the decision makers the harness can evaluate: a
// small feed-forward network driven by a flat genome, a greedy baseline
// and an ONNX-backed model.
package policy

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/rules"
)

const DefaultHidden = 16

// GenomeSize is the number of weights a network with the given hidden
// width needs: input->hidden weights and biases, then hidden->output.
func GenomeSize(hidden int) int {
	return hidden*rules.NumFeatures + hidden + game.NumActions*hidden + game.NumActions
}

// Network is an 11-hidden-3 perceptron with tanh activations. It is
// immutable after construction and safe for concurrent use.
type Network struct {
	hidden int
	genome []float64

	w1 *mat.Dense
	b1 *mat.VecDense
	w2 *mat.Dense
	b2 *mat.VecDense
}

// NewNetwork lays genome out as row-major matrices. The genome is copied.
func NewNetwork(hidden int, genome []float64) (*Network, error) {
	if hidden <= 0 {
		return nil, &game.ConfigurationError{Field: "hidden", Reason: fmt.Sprintf("hidden width %d must be positive", hidden)}
	}
	if want := GenomeSize(hidden); len(genome) != want {
		return nil, &game.ConfigurationError{Field: "genome", Reason: fmt.Sprintf("got %d weights, hidden=%d needs %d", len(genome), hidden, want)}
	}

	g := make([]float64, len(genome))
	copy(g, genome)

	off := 0
	take := func(n int) []float64 {
		s := g[off : off+n]
		off += n
		return s
	}

	n := &Network{hidden: hidden, genome: g}
	n.w1 = mat.NewDense(hidden, rules.NumFeatures, take(hidden*rules.NumFeatures))
	n.b1 = mat.NewVecDense(hidden, take(hidden))
	n.w2 = mat.NewDense(game.NumActions, hidden, take(game.NumActions*hidden))
	n.b2 = mat.NewVecDense(game.NumActions, take(game.NumActions))
	return n, nil
}

func (n *Network) Hidden() int { return n.hidden }

// Genome returns a copy of the flat weights.
func (n *Network) Genome() []float64 {
	out := make([]float64, len(n.genome))
	copy(out, n.genome)
	return out
}

// Forward returns the three output activations.
func (n *Network) Forward(x rules.Features) [game.NumActions]float64 {
	in := mat.NewVecDense(rules.NumFeatures, x.Slice())

	h := mat.NewVecDense(n.hidden, nil)
	h.MulVec(n.w1, in)
	h.AddVec(h, n.b1)
	tanh(h)

	o := mat.NewVecDense(game.NumActions, nil)
	o.MulVec(n.w2, h)
	o.AddVec(o, n.b2)
	tanh(o)

	var out [game.NumActions]float64
	for i := range out {
		out[i] = o.AtVec(i)
	}
	return out
}

func (n *Network) Act(_ context.Context, x rules.Features) (game.Action, error) {
	out := n.Forward(x)
	return harness.Argmax(out[:]), nil
}

func tanh(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, math.Tanh(v.AtVec(i)))
	}
}

// RandomGenome draws every weight uniformly from [-1, 1).
func RandomGenome(hidden int, rng *rand.Rand) []float64 {
	g := make([]float64, GenomeSize(hidden))
	for i := range g {
		g[i] = rng.Float64()*2 - 1
	}
	return g
}

// Mutate returns a copy of genome where each weight is perturbed by
// Gaussian noise with the given sigma, with probability rate.
func Mutate(genome []float64, rng *rand.Rand, rate, sigma float64) []float64 {
	out := make([]float64, len(genome))
	copy(out, genome)
	for i := range out {
		if rng.Float64() < rate {
			out[i] += rng.NormFloat64() * sigma
		}
	}
	return out
}

// Crossover picks each weight from a or b with equal probability.
// The parents must have the same length.
func Crossover(a, b []float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		if rng.Intn(2) == 0 {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
	return out
}
