// Package prng provides the seeded pseudo-random stream shared by every
// challenge generator. Reproducibility is the goal, not unpredictability:
// the same seed always yields the same sequence.
package prng

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// NewSeed derives a fresh seed from the owner id, a random nonce and the wall clock.
func NewSeed(ownerID int64, now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read seed nonce: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(ownerID, 10)))
	h.Write([]byte{'|'})
	h.Write(nonce)
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Stream is a counter-mode hash stream: block i is sha256(seed || i).
type Stream struct {
	seed    []byte
	counter uint64
}

// New creates a stream for seed. An empty seed is valid but discouraged.
func New(seed string) *Stream {
	return &Stream{seed: []byte(seed)}
}

// Uint64 returns the next 64 bits of the stream.
func (s *Stream) Uint64() uint64 {
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], s.counter)
	s.counter++

	h := sha256.New()
	h.Write(s.seed)
	h.Write(ctr[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Float64 returns a value in [0, 1).
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Intn returns a value in [0, n). It panics if n <= 0.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		panic("prng: Intn with non-positive n")
	}
	return int(s.Uint64() % uint64(n))
}

// IntRange returns a value in [lo, hi], inclusive on both ends.
func (s *Stream) IntRange(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.Intn(hi-lo+1)
}

// FloatRange returns a value in [lo, hi).
func (s *Stream) FloatRange(lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}

// Bool returns true with probability one half.
func (s *Stream) Bool() bool {
	return s.Uint64()&1 == 1
}

// Shuffle performs a Fisher-Yates shuffle of n elements using swap.
func (s *Stream) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		swap(i, j)
	}
}

// Perm returns a permutation of [0, n).
func (s *Stream) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	s.Shuffle(n, func(i, j int) { p[i], p[j] = p[j], p[i] })
	return p
}

// Pick returns a random element of items. It panics on an empty slice.
func Pick[T any](s *Stream, items []T) T {
	return items[s.Intn(len(items))]
}
