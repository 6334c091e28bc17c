package clock

import (
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time stands still until Advance is
// called; AfterFunc callbacks then run synchronously on the advancing
// goroutine in deadline order, with Now reporting each callback's deadline.
//
// Callbacks may call AfterFunc and Stop. They must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	seq     uint64
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	seq      uint64
	callback func()
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run once the clock reaches now+d. When d <= 0, f
// runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	if d <= 0 {
		f()
		return &fakeTimer{clock: c, waiter: &fakeWaiter{fired: true}}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		seq:      c.seq,
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)
	return &fakeTimer{clock: c, waiter: waiter}
}

// Advance moves the clock forward by d, firing every waiter whose deadline
// falls inside the window, including waiters registered by callbacks
// during the advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		waiter := c.popDue(target)
		if waiter == nil {
			break
		}
		waiter.callback()
	}

	c.mu.Lock()
	if c.current.Before(target) {
		c.current = target
	}
	c.mu.Unlock()
}

// Set jumps the clock to t without firing anything. Use it to model a
// process that was down while time passed.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// PendingCount returns the number of registered waiters that have neither
// fired nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// NextDeadline returns the earliest pending deadline.
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return time.Time{}, false
	}
	earliest := c.waiters[0]
	for _, w := range c.waiters[1:] {
		if w.before(earliest) {
			earliest = w
		}
	}
	return earliest.deadline, true
}

// popDue removes and returns the earliest waiter due at or before target,
// moving the clock to its deadline.
func (c *FakeClock) popDue(target time.Time) *fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if idx < 0 || w.before(c.waiters[idx]) {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}

	waiter := c.waiters[idx]
	c.waiters = append(c.waiters[:idx], c.waiters[idx+1:]...)
	waiter.fired = true
	if waiter.deadline.After(c.current) {
		c.current = waiter.deadline
	}
	return waiter
}

func (c *FakeClock) remove(waiter *fakeWaiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if waiter.fired || waiter.stopped {
		return false
	}
	waiter.stopped = true
	for i, w := range c.waiters {
		if w == waiter {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}
	return true
}

func (w *fakeWaiter) before(other *fakeWaiter) bool {
	if w.deadline.Equal(other.deadline) {
		return w.seq < other.seq
	}
	return w.deadline.Before(other.deadline)
}

type fakeTimer struct {
	clock  *FakeClock
	waiter *fakeWaiter
}

func (t *fakeTimer) Stop() bool { return t.clock.remove(t.waiter) }
