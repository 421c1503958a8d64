package main

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// A fetchDistribution picks which of the n valid batch start indices
// the next fetch targets. Implementations carry their own seeded
// source, so a benchmark run replays the same fetch pattern.
type fetchDistribution interface {
	name() string
	sample() int
}

type uniformFetchDistribution struct {
	n   int
	rng *rand.Rand
}

func newUniformFetchDistribution(n int, seed uint64) *uniformFetchDistribution {
	return &uniformFetchDistribution{
		n:   n,
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (u *uniformFetchDistribution) name() string {
	return "uniform"
}

func (u *uniformFetchDistribution) sample() int {
	return u.rng.Intn(u.n)
}

// paretoFetchDistribution skews fetches toward low start indices the
// way hot shards soak up reads in a real training run: the share of
// fetches landing at or past index k falls off as (1 - k/n)^alpha.
//
// Draws invert the Pareto CDF instead of tabulating per-index
// probabilities, so n can be as large as a full corpus of batch
// starts without any setup cost.
type paretoFetchDistribution struct {
	n      int
	pareto distuv.Pareto
}

func newParetoFetchDistribution(n int, alpha float64, seed uint64) *paretoFetchDistribution {
	return &paretoFetchDistribution{
		n: n,
		pareto: distuv.Pareto{
			Xm:    1,
			Alpha: alpha,
			Src:   rand.NewSource(seed),
		},
	}
}

func (p *paretoFetchDistribution) name() string {
	return "pareto"
}

func (p *paretoFetchDistribution) sample() int {
	// A Pareto(1, alpha) draw is >= 1 with most mass just above 1.
	// Folding it through 1 - 1/x maps that mass onto the low indices
	// and the rare large draws onto the tail.
	x := p.pareto.Rand()
	idx := int((1 - 1/x) * float64(p.n))
	return min(idx, p.n-1)
}
