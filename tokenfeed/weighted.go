package tokenfeed

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// WeightedEntry pairs a sub-dataset with its target draw proportion.
type WeightedEntry struct {
	Dataset *Dataset
	Weight  float64
}

// WeightedDataset presents N sub-datasets as a single virtual dataset
// whose draw proportions converge to the requested weights at every
// prefix. Selection is a deterministic error-balancing interleave, not a
// random sampler: for a virtual length N the per-dataset counts satisfy
// |counts[i] - w[i]*N| < 1.
type WeightedDataset struct {
	datasets []*Dataset

	// Parallel vectors of length virtualLength: which sub-dataset serves
	// virtual index k, and which of its local indices.
	datasetIndex []int
	sampleIndex  []uint64
}

// NewWeightedDataset composes sub-datasets with explicit weights.
// Weights must be positive; they are normalized to sum to one. If
// virtualLength exceeds the combined sub-dataset lengths, local indices
// wrap modulo each sub-dataset's length.
func NewWeightedDataset(
	entries []WeightedEntry,
	virtualLength uint64,
	shuffle Shuffle,
) (*WeightedDataset, error) {
	if len(entries) == 0 {
		return nil, errorf(KindConfig, "weighted dataset has no entries")
	}
	weights := make([]float64, len(entries))
	datasets := make([]*Dataset, len(entries))
	for i, entry := range entries {
		if entry.Weight <= 0 {
			return nil, errorf(KindConfig, "weight %f of entry %d is not positive", entry.Weight, i)
		}
		if entry.Dataset.NumSequences() == 0 {
			return nil, errorf(KindConfig, "entry %d has no sequences", i)
		}
		weights[i] = entry.Weight
		datasets[i] = entry.Dataset
	}
	return newWeightedDataset(datasets, weights, virtualLength, shuffle)
}

// NewLengthWeightedDataset composes sub-datasets weighted by their
// lengths, so each underlying sequence is equally likely to appear.
func NewLengthWeightedDataset(
	datasets []*Dataset,
	virtualLength uint64,
	shuffle Shuffle,
) (*WeightedDataset, error) {
	if len(datasets) == 0 {
		return nil, errorf(KindConfig, "weighted dataset has no entries")
	}
	weights := make([]float64, len(datasets))
	for i, ds := range datasets {
		weights[i] = float64(ds.NumSequences())
	}
	if floats.Sum(weights) == 0 {
		return nil, errorf(KindConfig, "all sub-datasets are empty")
	}
	return newWeightedDataset(datasets, weights, virtualLength, shuffle)
}

func newWeightedDataset(
	datasets []*Dataset,
	weights []float64,
	virtualLength uint64,
	shuffle Shuffle,
) (*WeightedDataset, error) {
	if virtualLength == 0 {
		return nil, errorf(KindConfig, "virtual length must be positive")
	}

	total := floats.Sum(weights)
	for i := range weights {
		weights[i] /= total
	}

	ds := &WeightedDataset{
		datasets:     datasets,
		datasetIndex: make([]int, virtualLength),
		sampleIndex:  make([]uint64, virtualLength),
	}

	// Greedy error-balancing interleave: at step k, pick the dataset
	// furthest behind its target count w[i]*(k+1), smaller index winning
	// ties. Keeps every prefix within one sample of proportional.
	counts := make([]uint64, len(datasets))
	for k := uint64(0); k < virtualLength; k++ {
		best := 0
		bestScore := weights[0]*float64(k+1) - float64(counts[0])
		for i := 1; i < len(datasets); i++ {
			score := weights[i]*float64(k+1) - float64(counts[i])
			if score > bestScore {
				best = i
				bestScore = score
			}
		}
		ds.datasetIndex[k] = best
		ds.sampleIndex[k] = counts[best] % datasets[best].NumSequences()
		counts[best]++
	}

	shuffle.apply(int(virtualLength), func(i, j int) {
		ds.datasetIndex[i], ds.datasetIndex[j] = ds.datasetIndex[j], ds.datasetIndex[i]
		ds.sampleIndex[i], ds.sampleIndex[j] = ds.sampleIndex[j], ds.sampleIndex[i]
	})

	return ds, nil
}

// NumSequences reports the virtual length.
func (ds *WeightedDataset) NumSequences() uint64 {
	return uint64(len(ds.datasetIndex))
}

// subCall is one coalesced request to a single sub-dataset: a maximal
// run of identical source whose local indices are contiguous.
type subCall struct {
	dataset  int
	br       BatchRange
	batchPos int
}

func (ds *WeightedDataset) coalesce(br BatchRange) []subCall {
	var calls []subCall
	for idx := br.Start; idx <= br.End; idx++ {
		var (
			d   = ds.datasetIndex[idx]
			s   = ds.sampleIndex[idx]
			pos = int(idx - br.Start)
		)
		if len(calls) > 0 {
			last := &calls[len(calls)-1]
			if last.dataset == d && s == last.br.End+1 {
				last.br.End = s
				continue
			}
		}
		calls = append(calls, subCall{
			dataset:  d,
			br:       BatchRange{Start: s, End: s},
			batchPos: pos,
		})
	}
	return calls
}

// GetSamples resolves the virtual range into one sub-call per maximal
// adjacent same-source run whose local indices are consecutive, issues
// them in order and merges the results back into the original slice
// order. A same-source run whose local indices are not consecutive
// (they wrap past the sub-dataset's end, or a shuffle reordered them)
// is split into several sub-calls.
func (ds *WeightedDataset) GetSamples(ctx context.Context, br BatchRange) ([][]int32, error) {
	if err := br.validate(ds.NumSequences()); err != nil {
		return nil, err
	}
	sequences := make([][]int32, br.Width())
	for _, call := range ds.coalesce(br) {
		got, err := ds.datasets[call.dataset].GetSamples(ctx, call.br)
		if err != nil {
			return nil, fmt.Errorf("sub-dataset %d range [%d, %d]: %w",
				call.dataset, call.br.Start, call.br.End, err)
		}
		copy(sequences[call.batchPos:], got)
	}
	return sequences, nil
}

// Close closes every sub-dataset.
func (ds *WeightedDataset) Close() error {
	var firstErr error
	for _, sub := range ds.datasets {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
