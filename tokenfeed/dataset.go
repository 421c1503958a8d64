package tokenfeed

import (
	"context"
)

// datasetKind discriminates the closed set of dataset variants.
type datasetKind int

const (
	kindLocal datasetKind = iota + 1
	kindHTTP
	kindRemote
	kindWeighted
	kindDummy
)

// Dataset is the uniform retrieval handle over the concrete back-ends.
// It is a tagged union rather than an interface: the variant set is
// closed and small, and switch dispatch keeps the façade monomorphic.
// A Dataset owns exactly one variant and adds no behavior beyond
// delegation.
type Dataset struct {
	kind     datasetKind
	local    *LocalDataset
	http     *HTTPDataset
	remote   *RemoteDataset
	weighted *WeightedDataset
	dummy    *DummyDataset
}

// DatasetFromLocal wraps a local directory dataset.
func DatasetFromLocal(ds *LocalDataset) *Dataset {
	return &Dataset{kind: kindLocal, local: ds}
}

// DatasetFromHTTP wraps a ranged-fetch HTTP dataset.
func DatasetFromHTTP(ds *HTTPDataset) *Dataset {
	return &Dataset{kind: kindHTTP, http: ds}
}

// DatasetFromRemote wraps a TCP sample-server client.
func DatasetFromRemote(ds *RemoteDataset) *Dataset {
	return &Dataset{kind: kindRemote, remote: ds}
}

// DatasetFromWeighted wraps a weighted composition.
func DatasetFromWeighted(ds *WeightedDataset) *Dataset {
	return &Dataset{kind: kindWeighted, weighted: ds}
}

// DatasetFromDummy wraps a zero-fill dataset.
func DatasetFromDummy(ds *DummyDataset) *Dataset {
	return &Dataset{kind: kindDummy, dummy: ds}
}

// Kind names the wrapped variant.
func (d *Dataset) Kind() string {
	switch d.kind {
	case kindLocal:
		return "local"
	case kindHTTP:
		return "http"
	case kindRemote:
		return "tcp"
	case kindWeighted:
		return "weighted"
	case kindDummy:
		return "dummy"
	default:
		return "invalid"
	}
}

// NumSequences reports the number of addressable sequences.
func (d *Dataset) NumSequences() uint64 {
	switch d.kind {
	case kindLocal:
		return d.local.NumSequences()
	case kindHTTP:
		return d.http.NumSequences()
	case kindRemote:
		return d.remote.NumSequences()
	case kindWeighted:
		return d.weighted.NumSequences()
	case kindDummy:
		return d.dummy.NumSequences()
	default:
		panic("invalid dataset")
	}
}

// GetSamples returns the sequences addressed by the range, in index
// order.
func (d *Dataset) GetSamples(ctx context.Context, br BatchRange) ([][]int32, error) {
	switch d.kind {
	case kindLocal:
		return d.local.GetSamples(ctx, br)
	case kindHTTP:
		return d.http.GetSamples(ctx, br)
	case kindRemote:
		return d.remote.GetSamples(ctx, br)
	case kindWeighted:
		return d.weighted.GetSamples(ctx, br)
	case kindDummy:
		return d.dummy.GetSamples(ctx, br)
	default:
		panic("invalid dataset")
	}
}

// Close releases whatever the variant holds open (maps, connections).
func (d *Dataset) Close() error {
	switch d.kind {
	case kindLocal:
		return d.local.Close()
	case kindRemote:
		return d.remote.Close()
	case kindWeighted:
		return d.weighted.Close()
	default:
		return nil
	}
}
