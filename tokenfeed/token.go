package tokenfeed

import (
	"encoding/binary"
)

// TokenSize is the on-disk (and on-the-wire, for raw files) width of a
// single token. Tokens are stored little-endian unsigned and widened to
// int32 in memory.
type TokenSize int

// Possible `TokenSize` values.
const (
	TokenSize2 TokenSize = 2
	TokenSize4 TokenSize = 4
)

// Bytes reports the width of a single token in bytes.
func (ts TokenSize) Bytes() int {
	return int(ts)
}

func (ts TokenSize) String() string {
	switch ts {
	case TokenSize2:
		return "u16"
	case TokenSize4:
		return "u32"
	default:
		return "invalid"
	}
}

// ParseTokenSize converts a configured byte width into a TokenSize.
func ParseTokenSize(n int) (TokenSize, error) {
	switch n {
	case 2:
		return TokenSize2, nil
	case 4:
		return TokenSize4, nil
	default:
		return 0, errorf(KindConfig, "invalid token size %d, must be 2 or 4", n)
	}
}

// SequenceBytes reports the storage footprint of one sequence: the
// seqLen-token context window plus the next-token target.
func SequenceBytes(seqLen int, ts TokenSize) int64 {
	return int64(seqLen+1) * int64(ts.Bytes())
}

// DecodeTokens converts a raw little-endian token buffer into the
// canonical int32 form. Values are zero-extended, never sign-extended.
func DecodeTokens(buf []byte, ts TokenSize) ([]int32, error) {
	width := ts.Bytes()
	if len(buf)%width != 0 {
		return nil, errorf(
			KindAlignment,
			"buffer of %d bytes is not a whole number of %s tokens",
			len(buf), ts,
		)
	}
	tokens := make([]int32, len(buf)/width)
	switch ts {
	case TokenSize2:
		for i := range tokens {
			tokens[i] = int32(binary.LittleEndian.Uint16(buf[i*2:]))
		}
	case TokenSize4:
		for i := range tokens {
			tokens[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	default:
		return nil, errorf(KindConfig, "invalid token size %d", ts)
	}
	return tokens, nil
}

// BatchRange names a closed interval [Start, End] of sequence indices
// in a dataset's post-shuffle ordering.
type BatchRange struct {
	Start uint64
	End   uint64
}

// Width reports the number of sequences the range addresses.
func (br BatchRange) Width() uint64 {
	return br.End - br.Start + 1
}

func (br BatchRange) validate(numSequences uint64) error {
	if br.End < br.Start {
		return errorf(KindConfig, "invalid batch range [%d, %d]", br.Start, br.End)
	}
	if br.End >= numSequences {
		return errorf(
			KindOutOfRange,
			"batch range [%d, %d] exceeds dataset length %d",
			br.Start, br.End, numSequences,
		)
	}
	return nil
}

// SequencePointer locates the start of one sequence within a file
// catalogue.
type SequencePointer struct {
	File   int
	Offset int64
}

// FileEntry is one catalogue entry: where a file lives and how large it
// is. Sizes are discovered at construction and never change.
type FileEntry struct {
	Locator string
	Size    int64
}
