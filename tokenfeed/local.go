package tokenfeed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// Extensions a directory scan recognizes as token files. Files are flat
// little-endian token arrays with no header; .npy files are assumed
// preprocessed to that shape (no NumPy header parsing is attempted).
var localExtensions = map[string]struct{}{
	".npy": {},
	".bin": {},
	".ds":  {},
}

// LocalDataset serves sequences from memory-mapped files in a local
// directory; subdirectories are not scanned. The file list, the maps and
// the pointer vector are all fixed at construction; reads afterwards are
// lock-free.
type LocalDataset struct {
	seqLen    int
	tokenSize TokenSize
	seqBytes  int64
	catalogue []FileEntry
	files     []*mappedFile
	pointers  []SequencePointer
}

// NewLocalDataset scans dir for token files, maps them read-only and
// indexes every sequence. Files are ordered by path so the catalogue is
// stable across runs.
func NewLocalDataset(dir string, seqLen int, ts TokenSize, shuffle Shuffle) (*LocalDataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := localExtensions[filepath.Ext(entry.Name())]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	slices.Sort(paths)
	if len(paths) == 0 {
		return nil, errorf(KindConfig, "no token files found in %s", dir)
	}

	ds := &LocalDataset{
		seqLen:    seqLen,
		tokenSize: ts,
		seqBytes:  SequenceBytes(seqLen, ts),
	}
	for _, path := range paths {
		mf, err := mapFile(path)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("mapping %s: %w", path, err)
		}
		ds.files = append(ds.files, mf)
		ds.catalogue = append(ds.catalogue, FileEntry{
			Locator: path,
			Size:    mf.size(),
		})
	}

	ds.pointers, err = buildPointers(ds.catalogue, ds.seqBytes)
	if err != nil {
		ds.Close()
		return nil, err
	}
	shufflePointers(ds.pointers, shuffle)

	return ds, nil
}

// NumSequences reports the number of addressable sequences.
func (ds *LocalDataset) NumSequences() uint64 {
	return uint64(len(ds.pointers))
}

// GetSamples resolves each index in the range to its pointer, slices the
// sequence straight out of the map and returns owned, converted copies
// in index order.
func (ds *LocalDataset) GetSamples(_ context.Context, br BatchRange) ([][]int32, error) {
	if err := br.validate(ds.NumSequences()); err != nil {
		return nil, err
	}
	sequences := make([][]int32, 0, br.Width())
	for idx := br.Start; idx <= br.End; idx++ {
		ptr := ds.pointers[idx]
		raw := ds.files[ptr.File].sequence(ptr.Offset, ds.seqBytes)
		tokens, err := DecodeTokens(raw, ds.tokenSize)
		if err != nil {
			return nil, fmt.Errorf("decoding sequence %d: %w", idx, err)
		}
		sequences = append(sequences, tokens)
	}
	return sequences, nil
}

// Catalogue returns the discovered file catalogue.
func (ds *LocalDataset) Catalogue() []FileEntry {
	return ds.catalogue
}

// Close unmaps all files. The dataset must not be used afterwards.
func (ds *LocalDataset) Close() error {
	var firstErr error
	for _, mf := range ds.files {
		if err := mf.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ds.files = nil
	return firstErr
}
