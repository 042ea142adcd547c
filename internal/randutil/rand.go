// Package randutil derives deterministic random streams from string seeds.
// Every shuffle and bot jitter draws from here so that a game is reproducible
// from its session seed alone, across platforms.
package randutil

import (
	"hash/fnv"
	rand "math/rand/v2"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// SplitMix64 is a SplitMix64 generator seeded from a string. It satisfies the
// rand/v2 Source interface so it can back a *rand.Rand where richer helpers
// are needed.
type SplitMix64 struct {
	state uint64
}

// NewSplitMix64 seeds a stream from the FNV-1a hash of the seed string's
// UTF-8 bytes.
func NewSplitMix64(seed string) *SplitMix64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return &SplitMix64{state: h.Sum64()}
}

// Uint64 returns the next value in the stream.
func (s *SplitMix64) Uint64() uint64 {
	s.state += goldenRatio64
	return mix(s.state)
}

// IntN returns a uniform value in [0, n). Rejection sampling rather than a
// bare modulo keeps the Fisher-Yates shuffle unbiased.
func (s *SplitMix64) IntN(n int) int {
	if n <= 0 {
		panic("randutil: IntN with non-positive n")
	}
	bound := uint64(n)
	threshold := -bound % bound
	for {
		v := s.Uint64()
		if v >= threshold {
			return int(v % bound)
		}
	}
}

// New returns a *rand.Rand backed by a SplitMix64 stream for the seed string.
func New(seed string) *rand.Rand {
	return rand.New(NewSplitMix64(seed))
}

// NewInt64 returns a *rand.Rand seeded deterministically from an int64, for
// call sites that carry numeric seeds.
func NewInt64(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
