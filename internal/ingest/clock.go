package ingest

import (
	"sync"
	"time"
)

// MonotonicClock wraps a wall clock and never returns a millisecond earlier
// than one it already returned, even if the wall clock steps back.
type MonotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewMonotonicClock wraps now, typically time.Now.
func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	return &MonotonicClock{now: now}
}

// Now returns the current time truncated to milliseconds.
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms < c.last {
		ms = c.last
	}
	c.last = ms
	return time.UnixMilli(ms)
}
