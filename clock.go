package dircache

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the wall-clock time source dircache consults for generation
// ages, expiration checks, and last_updated timestamps. [Entry] and [Cache]
// never call time.Now directly.
//
// [clock.Clock] from github.com/benbjohnson/clock already satisfies this
// interface (its Now method has the same signature), so a
// [clock.Mock] can be passed anywhere a Clock is expected for deterministic
// tests of expiration and aging behavior.
type Clock interface {
	Now() time.Time
}

// RealClock is the production [Clock], backed by
// github.com/benbjohnson/clock's wall-clock implementation.
type RealClock struct {
	inner clock.Clock
}

// NewRealClock returns a [RealClock] reading the actual system time.
func NewRealClock() RealClock {
	return RealClock{inner: clock.New()}
}

// Now returns the current wall-clock time.
func (c RealClock) Now() time.Time {
	if c.inner == nil {
		return clock.New().Now()
	}

	return c.inner.Now()
}

// sinceEpoch returns the duration between the epoch and the clock's current
// time, failing with KindSystemTime if the clock reports a time before the
// epoch.
func sinceEpoch(clk Clock) (time.Duration, error) {
	now := clk.Now()
	if now.Before(time.Unix(0, 0)) {
		return 0, newErr(KindSystemTime, ErrSystemTime)
	}

	return now.Sub(time.Unix(0, 0)), nil
}
