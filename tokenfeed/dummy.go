package tokenfeed

import "context"

// DummyDataset returns all-zero sequences without touching storage.
// Useful for isolating data-plane latency from everything else.
type DummyDataset struct {
	numSequences uint64
	seqLen       int
}

// NewDummyDataset creates a zero-fill dataset exposing numSequences
// sequences of seqLen+1 tokens each.
func NewDummyDataset(numSequences uint64, seqLen int) *DummyDataset {
	return &DummyDataset{numSequences: numSequences, seqLen: seqLen}
}

// NumSequences reports the configured cap.
func (ds *DummyDataset) NumSequences() uint64 {
	return ds.numSequences
}

// GetSamples returns zero-filled sequences for the range.
func (ds *DummyDataset) GetSamples(_ context.Context, br BatchRange) ([][]int32, error) {
	if err := br.validate(ds.numSequences); err != nil {
		return nil, err
	}
	sequences := make([][]int32, br.Width())
	for i := range sequences {
		sequences[i] = make([]int32, ds.seqLen+1)
	}
	return sequences, nil
}
