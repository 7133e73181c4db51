package testutil

import (
	"sync"
	"time"
)

// DeterministicClock numbers the steps of a scripted run.
//
// The first call to Next returns 1. The clock can be reset so the same
// script runs twice with identical step numbers.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a new deterministic clock starting at 0.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the next step number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last step number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset resets the clock to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// Date parses a YYYY-MM-DD date in UTC. It panics on malformed input,
// which in tests is a typo in a literal.
func Date(text string) time.Time {
	t, err := time.Parse("2006-01-02", text)
	if err != nil {
		panic("testutil.Date: " + err.Error())
	}
	return t
}
