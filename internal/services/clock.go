package services

import "time"

// Clock supplies the current time. The engine takes one so tests can pin
// timing-sensitive paths to a fixed instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func NewSystemClock() Clock { return systemClock{} }

// FixedClock is a settable Clock for tests.
type FixedClock struct {
	Current time.Time
}

func (c *FixedClock) Now() time.Time { return c.Current }

func (c *FixedClock) Advance(d time.Duration) { c.Current = c.Current.Add(d) }
