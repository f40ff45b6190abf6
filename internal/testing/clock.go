package testing

import (
	"sync"
	"time"
)

// Epoch is the default starting point of Clock
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// Clock is a manually driven clock for tests that need time to pass
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns Clock set to Epoch
func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
