package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock reports.
var Epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe clock for tests that advances by one
// second on every reading, starting at Epoch.
//
// It satisfies build.Clock, so recorded build timestamps are identical
// across test runs.
type DeterministicClock struct {
	mu    sync.Mutex
	ticks int64
}

// NewDeterministicClock creates a clock whose first Now() returns Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now returns Epoch plus one second per previous call.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := Epoch.Add(time.Duration(c.ticks) * time.Second)
	c.ticks++
	return now
}

// Reset rewinds the clock so the next Now() returns Epoch again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
