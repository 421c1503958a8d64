package tokenfeed

import (
	"slices"
	"testing"
)

// Keystream vectors generated from an independent RFC 8439 ChaCha20
// implementation (key = seed LE + zeros, zero nonce, counter 0). These
// pin the cross-implementation contract: any other implementation keyed
// with the same seed must reproduce these draws exactly.
var rngVectors = map[uint64][]uint64{
	0:  {0x903df1a0ade0b876, 0x28bd8653e56a5d40, 0x1aed8da0b819d2bd, 0xc70d778bccef36a8, 0x8d4857517c5941da, 0x374ad8b83fe02477},
	7:  {0x44984265b9e39ef1, 0x0dcbd60e30af96e4, 0x2c25e41254e711df, 0x29c79355e7631693, 0xeffdc5ce6cb1945b, 0x6b11fc59031c4237},
	42: {0x6ae30a5126e5761f, 0xb4eb7f595c8b5c62, 0xb389b53dce2c0416, 0x2666a8a4f7a882dc, 0xd8d10f71284160eb, 0x600a085b1a4f2604},
}

func TestRandKeystreamVectors(t *testing.T) {
	for seed, want := range rngVectors {
		rng := NewRand(seed)
		for i, w := range want {
			if got := rng.Uint64(); got != w {
				t.Errorf("seed %d draw %d: got %#x, want %#x", seed, i, got, w)
			}
		}
	}
}

func TestRandUint64n(t *testing.T) {
	var (
		rng  = NewRand(42)
		want = []uint64{55, 562, 54, 292, 659, 252, 70, 63}
	)
	for i, w := range want {
		if got := rng.Uint64n(1000); got != w {
			t.Errorf("draw %d: got %d, want %d", i, got, w)
		}
	}
}

func TestRandShuffleVectors(t *testing.T) {
	cases := []struct {
		seed uint64
		n    int
		want []int
	}{
		{seed: 42, n: 2, want: []int{0, 1}},
		{seed: 42, n: 6, want: []int{0, 5, 1, 4, 2, 3}},
		{seed: 42, n: 8, want: []int{4, 5, 1, 3, 2, 6, 0, 7}},
		{seed: 42, n: 10, want: []int{1, 3, 7, 4, 2, 8, 0, 6, 9, 5}},
		{seed: 7, n: 10, want: []int{0, 1, 8, 5, 6, 9, 2, 7, 4, 3}},
		{seed: 1, n: 16, want: []int{11, 14, 2, 12, 3, 6, 1, 13, 15, 7, 0, 9, 4, 10, 8, 5}},
	}
	for _, tc := range cases {
		perm := make([]int, tc.n)
		for i := range perm {
			perm[i] = i
		}
		NewRand(tc.seed).Shuffle(tc.n, func(i, j int) {
			perm[i], perm[j] = perm[j], perm[i]
		})
		if !slices.Equal(perm, tc.want) {
			t.Errorf("seed %d n %d: got %v, want %v", tc.seed, tc.n, perm, tc.want)
		}
	}
}

func TestRandDeterminism(t *testing.T) {
	a, b := NewRand(12345), NewRand(12345)
	for i := 0; i < 100; i++ {
		if av, bv := a.Uint64(), b.Uint64(); av != bv {
			t.Fatalf("draw %d diverged: %#x vs %#x", i, av, bv)
		}
	}
}

func TestShuffleApply(t *testing.T) {
	xs := []int{0, 1, 2, 3, 4, 5}
	NoShuffle().apply(len(xs), func(i, j int) {
		xs[i], xs[j] = xs[j], xs[i]
	})
	if !slices.Equal(xs, []int{0, 1, 2, 3, 4, 5}) {
		t.Errorf("no-shuffle permuted: %v", xs)
	}

	SeededShuffle(42).apply(len(xs), func(i, j int) {
		xs[i], xs[j] = xs[j], xs[i]
	})
	if !slices.Equal(xs, []int{0, 5, 1, 4, 2, 3}) {
		t.Errorf("seeded shuffle: got %v", xs)
	}
}
