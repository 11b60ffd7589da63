package testutil

import (
	"sync"
	"time"
)

// Clock is a manual clock for timing-dependent tests. Every call to Now
// advances it by a fixed step, so elapsed times are deterministic.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewClock returns a clock initialized to a fixed UTC start time.
func NewClock(step time.Duration) *Clock {
	return &Clock{
		current: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		step:    step,
	}
}

// Now returns the current time and advances the clock by one step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.current
	c.current = c.current.Add(c.step)

	return now
}

// Advance moves the clock forward by d, simulating work.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
}
