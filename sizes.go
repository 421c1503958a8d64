package main

import (
	"slices"

	"github.com/loomtrain/tokenfeed/tokenfeed"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// shardSizes is the generation plan for a synthetic corpus: how many
// sequences each shard file will hold, ascending. Byte math lives here
// too, so reporting stays in step with the token width being generated.
type shardSizes []int

func (s shardSizes) min() int {
	return s[0]
}

func (s shardSizes) max() int {
	return s[len(s)-1]
}

func (s shardSizes) percentile(p float32) int {
	if p < 0 || p > 100 {
		panic("percentile out of range")
	}
	return s[int(float32(len(s))*p/100)]
}

func (s shardSizes) totalSequences() int64 {
	var sum int64
	for _, sequences := range s {
		sum += int64(sequences)
	}
	return sum
}

func (s shardSizes) totalBytes(seqLen int, ts tokenfeed.TokenSize) int64 {
	return s.totalSequences() * tokenfeed.SequenceBytes(seqLen, ts)
}

// planUniformShardSizes sizes every shard identically.
func planUniformShardSizes(n, sequences int) shardSizes {
	sizes := make(shardSizes, n)
	for i := range sizes {
		sizes[i] = sequences
	}
	return sizes
}

// planLognormalShardSizes draws shard sizes from a lognormal and
// rescales them onto [minSeqs, maxSeqs], mimicking the long-tailed
// shard distribution of a real pretraining corpus: most shards small,
// a few holding a large share of the sequences. The source is seeded,
// so regenerating a corpus yields the same plan.
func planLognormalShardSizes(n, minSeqs, maxSeqs int, mu, sigma float64) shardSizes {
	if n == 1 {
		return shardSizes{minSeqs}
	}

	ln := distuv.LogNormal{
		Mu:    mu,
		Sigma: sigma,
		Src:   rand.NewSource(12),
	}
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = ln.Rand()
	}

	var (
		sizes = make(shardSizes, n)
		lo    = slices.Min(samples)
		hi    = slices.Max(samples)
	)
	for i, sample := range samples {
		frac := (sample - lo) / (hi - lo)
		sizes[i] = minSeqs + int(frac*float64(maxSeqs-minSeqs))
	}

	slices.Sort(sizes)

	return sizes
}
