// Package clock abstracts wall-clock time so timer-driven code can be
// tested deterministically. Production code injects Real(); tests inject
// Fake() and move time forward explicitly with Advance.
package clock

import "time"

// Clock is the subset of the time package the control plane depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f. If d <= 0 the call happens as
	// soon as possible: in a new goroutine for Real, synchronously for Fake.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from happening. It returns false if the
	// call already happened or the timer was already stopped.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
