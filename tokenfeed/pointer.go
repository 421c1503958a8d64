package tokenfeed

// buildPointers produces every valid sequence pointer for a catalogue,
// in file-then-offset order. A file whose size is not a whole number of
// sequences contributes its floor(size/seqBytes) leading sequences; the
// partial tail is dropped. A file smaller than a single sequence is an
// alignment error, and a zero-sized file a config error, both failing
// construction outright.
func buildPointers(catalogue []FileEntry, seqBytes int64) ([]SequencePointer, error) {
	var total int64
	for _, entry := range catalogue {
		if entry.Size == 0 {
			return nil, errorf(KindConfig, "file %q is empty", entry.Locator)
		}
		if entry.Size < seqBytes {
			return nil, errorf(
				KindAlignment,
				"file %q is %d bytes, smaller than one sequence (%d bytes)",
				entry.Locator, entry.Size, seqBytes,
			)
		}
		total += entry.Size / seqBytes
	}
	pointers := make([]SequencePointer, 0, total)
	for fileIdx, entry := range catalogue {
		n := entry.Size / seqBytes
		for i := int64(0); i < n; i++ {
			pointers = append(pointers, SequencePointer{
				File:   fileIdx,
				Offset: i * seqBytes,
			})
		}
	}
	return pointers, nil
}

// shufflePointers applies the dataset's shuffle to a freshly built
// pointer vector.
func shufflePointers(pointers []SequencePointer, shuffle Shuffle) {
	shuffle.apply(len(pointers), func(i, j int) {
		pointers[i], pointers[j] = pointers[j], pointers[i]
	})
}
