package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant a DeterministicClock reports.
var DefaultEpoch = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

// DeterministicClock provides a thread-safe monotonic wall clock for tests.
//
// Every call to Now advances the clock by a fixed step, so timestamps are
// strictly increasing and identical across runs of the same scenario.
// The clock can be reset for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch time.Time
	step  time.Duration
	ticks int64
}

// NewDeterministicClock creates a clock starting at DefaultEpoch that
// advances one second per call.
//
// The first call to Now() returns DefaultEpoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{epoch: DefaultEpoch, step: time.Second}
}

// NewDeterministicClockAt creates a clock starting at epoch with the given step.
func NewDeterministicClockAt(epoch time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{epoch: epoch.UTC(), step: step}
}

// Now returns the current instant and advances the clock.
//
// Implements domain.Clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.epoch.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Current returns the instant the next Now() call will report, without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch.Add(time.Duration(c.ticks) * c.step)
}

// Reset rewinds the clock to its epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
