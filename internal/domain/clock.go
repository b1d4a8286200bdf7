package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze "today" via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used by Today. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Today returns the current calendar day in loc as a UTC midnight timestamp.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return CivilDate(clock.Now().In(loc))
}
