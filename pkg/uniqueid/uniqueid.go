// Package uniqueid generates numeric keys that are absent from a set of
// keys currently in use.
//
// The default generator hands out sequential numbers while that is cheap
// and falls back to random numbers once the sequence collides. All
// generated numbers are below 2^53 so they survive a round trip through
// a JavaScript number.
package uniqueid

import (
	"math/rand/v2"
	"sync"
)

const (
	// MaxSafeInteger is the largest integer a float64 represents exactly.
	MaxSafeInteger = 1<<53 - 1

	sequentialLimit = 1 << 30
	randomSmallSize = 1 << 29
)

// KeySet is the read-only view of the keys a generator must avoid.
type KeySet interface {
	// Has reports whether key is in use.
	Has(key uint64) bool

	// Len returns the number of keys in use.
	Len() int
}

// Generator returns a key that is not in keys.
type Generator interface {
	Next(keys KeySet) uint64
}

// Sequential is the default Generator. It remembers the last number it
// returned and is safe for concurrent use. A Sequential should serve a
// single KeySet; use one instance per table.
type Sequential struct {
	mu      sync.Mutex
	last    uint64
	started bool
	rand    func(n uint64) uint64
}

// New creates a Sequential generator.
func New() *Sequential {
	return &Sequential{rand: rand.Uint64N}
}

// Next returns a key not contained in keys.
func (g *Sequential) Next(keys KeySet) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var next uint64
	switch {
	case !g.started:
		next = uint64(keys.Len())
	case g.last < sequentialLimit:
		next = g.last + 1
	default:
		next = 0
	}

	if !keys.Has(next) {
		return g.remember(next)
	}

	if keys.Len() < randomSmallSize {
		for keys.Has(next) {
			next = g.rand(sequentialLimit)
		}
		return g.remember(next)
	}

	if uint64(keys.Len()) > MaxSafeInteger {
		panic("uniqueid: every safe integer is in use")
	}

	for keys.Has(next) {
		next = g.rand(MaxSafeInteger)
	}
	return g.remember(next)
}

func (g *Sequential) remember(n uint64) uint64 {
	g.last = n
	g.started = true
	return n
}

// Compile-time interface satisfaction check.
var _ Generator = (*Sequential)(nil)
