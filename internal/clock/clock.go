// Package clock provides the injectable time source for the reservation engine
// and the business-day arithmetic used by the no-show sweep. The venue operates
// past midnight, so a business day runs from the boundary hour (05:00 KST) to
// 04:59:59 the next calendar day.
package clock

import (
	"log"
	"time"
)

// DefaultTimezone is the venue's timezone.
const DefaultTimezone = "Asia/Seoul"

// DefaultBoundaryHour is the wall-clock hour at which a business day starts.
const DefaultBoundaryHour = 5

// Clock abstracts "now" so the engine can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reports the current time in a fixed location.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock loads the given timezone. An unknown timezone falls back to
// UTC rather than failing startup.
func NewSystemClock(timezone string) *SystemClock {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("Warning: failed to load timezone %q: %v. Falling back to UTC.", timezone, err)
		loc = time.UTC
	}
	return &SystemClock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's location.
func (c *SystemClock) Location() *time.Location {
	return c.loc
}

// BusinessDayStart returns the start instant of the business day containing t.
// For wall-clock times before the boundary hour the business day began at the
// boundary hour of the previous calendar day.
func BusinessDayStart(t time.Time, boundaryHour int) time.Time {
	start := time.Date(t.Year(), t.Month(), t.Day(), boundaryHour, 0, 0, 0, t.Location())
	if t.Hour() < boundaryHour {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// NextBusinessDayStart returns the first business-day boundary strictly after t.
func NextBusinessDayStart(t time.Time, boundaryHour int) time.Time {
	return BusinessDayStart(t, boundaryHour).AddDate(0, 0, 1)
}

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	current time.Time
}

// NewFakeClock creates a FakeClock pinned to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the pinned time.
func (c *FakeClock) Now() time.Time {
	return c.current
}

// Set pins the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.current = t
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
