package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSteppingClock_StartsAtEpoch(t *testing.T) {
	clock := NewSteppingClock(time.Time{}, 0)
	assert.Equal(t, Epoch, clock.Peek())
	assert.Equal(t, Epoch, clock.Now())
}

func TestSteppingClock_AdvancesByStep(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewSteppingClock(start, 250*time.Millisecond)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(250*time.Millisecond), clock.Now())
	assert.Equal(t, start.Add(500*time.Millisecond), clock.Now())
	assert.Equal(t, start.Add(750*time.Millisecond), clock.Peek())
}

func TestSteppingClock_Reset(t *testing.T) {
	clock := NewSteppingClock(time.Time{}, time.Second)

	clock.Now()
	clock.Now()
	clock.Now()
	assert.Equal(t, Epoch.Add(3*time.Second), clock.Peek())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestSteppingClock_ThreadSafe(t *testing.T) {
	clock := NewSteppingClock(time.Time{}, time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}

	wg.Wait()

	seen := make(map[time.Time]bool)
	for i := range results {
		for _, ts := range results[i] {
			require.False(t, seen[ts], "duplicate instant %s", ts)
			seen[ts] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestFrozenClock_NeverMoves(t *testing.T) {
	clock := FrozenClock{At: Epoch}
	assert.Equal(t, clock.Now(), clock.Now())
}
