package timectrl

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for the engine's observation loops. Pair workers
// depend on this interface rather than the time package directly so that
// scenario tests can drive observation cadence deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once the
	// duration d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall-clock implementation used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// waiter is a pending After registration on a ManualClock.
type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// ManualClock is a Clock whose time only moves when Advance is called.
// Timers registered through After fire, in deadline order, as Advance
// sweeps past their deadlines.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

// NewManualClock constructs a manual clock anchored at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{deadline: deadline, ch: ch})
	return ch
}

// Advance moves the clock forward by d and fires every timer whose
// deadline falls within the swept interval. Each fired channel receives
// its own deadline so cadence-driven loops observe evenly spaced times.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due []waiter
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(now) {
			due = append(due, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, w := range due {
		w.ch <- w.deadline
	}
}

// PendingWaiters reports how many timers are registered and not yet fired.
// Tests use it to know a cadence loop is parked on After before advancing.
func (c *ManualClock) PendingWaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Set jumps the clock directly to t without firing timers whose deadlines
// are skipped. Intended for test setup, not for mid-run adjustment.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
