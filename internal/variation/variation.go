// Package variation provides the seeded random streams every stochastic
// decision in the generator draws from.
package variation

import (
	"fmt"
	"math"

	"github.com/friggog/tree-gen/internal/params"
)

const golden = 0x9e3779b97f4a7c15

// Stream is a deterministic xorshift64* sequence. A Stream is not safe for
// concurrent use; derive one per stem instead of sharing.
type Stream struct {
	seed  uint64
	state uint64
	err   error
}

// New seeds a stream. Equal seeds always replay the same sequence.
func New(seed uint64) *Stream {
	state := mix(seed + golden)
	if state == 0 {
		state = golden
	}
	return &Stream{seed: seed, state: state}
}

// Seed returns the seed the stream was created from.
func (s *Stream) Seed() uint64 {
	return s.seed
}

// Derive hashes a parent seed and a key path into a child seed. The result
// depends only on its inputs, so sibling streams never depend on the order in
// which they were created.
func Derive(seed uint64, keys ...uint64) uint64 {
	h := mix(seed ^ golden)
	for i, k := range keys {
		h = mix(h ^ mix(k+uint64(i+1)*golden))
	}
	return h
}

func mix(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *Stream) next() uint64 {
	s.state ^= s.state >> 12
	s.state ^= s.state << 25
	s.state ^= s.state >> 27
	return s.state * 0x2545f4914f6cdd1d
}

// Uint64 returns the next raw value.
func (s *Stream) Uint64() uint64 {
	return s.next()
}

// Float64 returns a value in [0, 1).
func (s *Stream) Float64() float64 {
	return float64(s.next()>>11) / (1 << 53)
}

// Uniform returns a value in [center-|variation|, center+|variation|]. One
// value is consumed from the stream even when variation is zero so that
// turning one variation on does not reshuffle unrelated draws.
//
// A non-finite bound records a configuration error, readable through Err,
// and yields center.
func (s *Stream) Uniform(center, variation float64) float64 {
	u := s.Float64()
	if !finite(center) || !finite(variation) {
		s.fail(center, variation)
		return center
	}
	if variation == 0 {
		return center
	}
	return center + (2*u-1)*math.Abs(variation)
}

// Intn returns a value in [0, n). n <= 0 yields 0.
func (s *Stream) Intn(n int) int {
	v := s.next()
	if n <= 0 {
		return 0
	}
	return int(v % uint64(n))
}

// Err reports the first non-finite bound seen by the stream.
func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) fail(a, b float64) {
	if s.err != nil {
		return
	}
	s.err = &params.ConfigurationError{
		Field:  "variation",
		Reason: fmt.Sprintf("bound is not finite (%v, %v)", a, b),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
