// Package random provides seeded random sources.
//
// Seeds come from crypto/rand; the streams themselves are math/rand/v2 PCG
// generators so callers can reproduce a run from its seed.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Source is the random stream consumed by weighted selection and dice-like
// decisions. Implementations must be safe for concurrent use.
type Source interface {
	Float64() float64
	IntN(n int) int
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// New returns a concurrency-safe source seeded from crypto/rand.
func New() (*Locked, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return FromSeed(seed), nil
}

// FromSeed returns a concurrency-safe deterministic source.
func FromSeed(seed int64) *Locked {
	return &Locked{r: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// Locked serializes access to a math/rand/v2 generator.
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// Float64 returns a value in [0, 1).
func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// IntN returns a value in [0, n). It returns 0 when n <= 0.
func (l *Locked) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
