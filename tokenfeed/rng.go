package tokenfeed

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

// Rand is a deterministic random stream backed by a ChaCha20 keystream.
// The mapping from seed to outputs is a compatibility contract: two
// implementations keyed with the same 64-bit seed must produce the same
// draws, so shuffles are reproducible across processes and languages.
//
// Key layout: the seed little-endian in the first 8 key bytes, the
// remaining 24 key bytes and the 12 nonce bytes all zero, counter 0.
type Rand struct {
	cipher *chacha20.Cipher
}

// NewRand creates a Rand keyed by the given seed.
func NewRand(seed uint64) *Rand {
	var key [chacha20.KeySize]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		// Key and nonce sizes are fixed above.
		panic(err)
	}
	return &Rand{cipher: cipher}
}

// Uint64 returns the next 8 keystream bytes as a little-endian uint64.
func (r *Rand) Uint64() uint64 {
	var buf [8]byte
	r.cipher.XORKeyStream(buf[:], buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// Uint64n returns a draw in [0, n). Panics if n is zero. The reduction
// is a plain modulo; the bias is negligible for any realistic catalogue
// and the simple mapping is part of the cross-implementation contract.
func (r *Rand) Uint64n(n uint64) uint64 {
	if n == 0 {
		panic("Uint64n: n must be positive")
	}
	return r.Uint64() % n
}

// Shuffle permutes n elements with a Fisher-Yates walk from the top.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := int(r.Uint64n(uint64(i + 1)))
		swap(i, j)
	}
}

// Shuffle describes whether (and how) a dataset permutes its sequence
// ordering at construction. The permutation is fixed for the dataset's
// lifetime.
type Shuffle struct {
	seeded bool
	seed   uint64
}

// NoShuffle leaves sequences in catalogue order.
func NoShuffle() Shuffle {
	return Shuffle{}
}

// SeededShuffle permutes sequences with a deterministic shuffle keyed by
// seed.
func SeededShuffle(seed uint64) Shuffle {
	return Shuffle{seeded: true, seed: seed}
}

// Seeded reports whether the shuffle permutes at all, and with which
// seed.
func (s Shuffle) Seeded() (uint64, bool) {
	return s.seed, s.seeded
}

func (s Shuffle) apply(n int, swap func(i, j int)) {
	if !s.seeded {
		return
	}
	NewRand(s.seed).Shuffle(n, swap)
}
