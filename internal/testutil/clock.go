package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a SteppingClock: 2024-01-01T00:00:00Z.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// SteppingClock is a deterministic wall clock for tests.
//
// Every call to Now returns the current instant and then advances it by
// step, so consecutive records get strictly increasing timestamps and a
// scenario replays with identical created_at values.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SteppingClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewSteppingClock creates a clock starting at start and advancing by step.
// A zero start means Epoch; a zero step means one second.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	if start.IsZero() {
		start = Epoch
	}
	if step == 0 {
		step = time.Second
	}
	return &SteppingClock{start: start.UTC(), step: step}
}

// Now returns the current instant and advances the clock.
//
// Implements ledger.Clock.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Peek returns the instant the next Now call will return.
func (c *SteppingClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.n) * c.step)
}

// Reset rewinds the clock to its start.
func (c *SteppingClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

// FrozenClock always returns the same instant. Use it to exercise
// tie-breaking on equal timestamps.
type FrozenClock struct {
	At time.Time
}

// Now returns c.At.
func (c FrozenClock) Now() time.Time {
	return c.At
}
