// Package randstate holds the process-wide random state shared by problem
// generators and the shuffle pass.
//
// A State is created once from a seed and passed explicitly to every
// consumer. Reseed restores every source to its initial position in place,
// so consumers holding a reference observe the reset.
package randstate

import (
	"math/rand/v2"

	exprand "golang.org/x/exp/rand"
)

// Stream constant for the second PCG word, so seeds 0 and 1 still produce
// well separated sequences.
const pcgStream = 0x9e3779b97f4a7c15

type State struct {
	seed    uint64
	pcg     *rand.PCG
	rng     *rand.Rand
	numeric exprand.Source
}

func New(seed uint64) *State {
	pcg := rand.NewPCG(seed, seed^pcgStream)
	return &State{
		seed:    seed,
		pcg:     pcg,
		rng:     rand.New(pcg),
		numeric: exprand.NewSource(seed),
	}
}

// Seed returns the seed the State was created with.
func (s *State) Seed() uint64 {
	return s.seed
}

// Reseed rewinds every source to the initial seed.
func (s *State) Reseed() {
	s.pcg.Seed(s.seed, s.seed^pcgStream)
	s.numeric.Seed(s.seed)
}

// Rand returns the general purpose generator.
func (s *State) Rand() *rand.Rand {
	return s.rng
}

// NumericSource returns the source used by gonum distributions.
func (s *State) NumericSource() exprand.Source {
	return s.numeric
}

// Shuffle permutes n elements uniformly using the general purpose generator.
func (s *State) Shuffle(n int, swap func(i, j int)) {
	s.rng.Shuffle(n, swap)
}
