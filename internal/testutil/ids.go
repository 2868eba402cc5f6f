package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates predictable record ids: prefix-0001, prefix-0002, ...
//
// This enables deterministic test execution and golden snapshot comparison.
// The same scenario with a fresh SequenceGenerator produces byte-identical traces.
//
// Thread-safety: All methods are safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator for the given prefix.
//
// If prefix is empty, ids are prefixed with "id".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in sequence.
//
// Implements domain.IDGenerator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// FixedGenerator returns the same id every time. Used to provoke
// duplicate-id failures.
type FixedGenerator struct {
	ID string
}

// Generate returns the fixed id.
func (g FixedGenerator) Generate() string {
	return g.ID
}
