package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator produces predictable build run IDs: "<prefix>-0001",
// "<prefix>-0002", ...
//
// Production builds use UUIDv7 run IDs; tests inject this generator so
// recorded history and golden output are byte-identical across runs.
//
// Thread-safety: safe for concurrent use.
type FixedIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDGenerator creates a generator. An empty prefix becomes "run".
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next ID in sequence.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
