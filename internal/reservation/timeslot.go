package reservation

import (
	"errors"
	"fmt"
	"time"
)

// earlyMorningCutoff separates early-morning hours that belong to the next
// calendar day from regular daytime hours. A slot stored as 0-5 means the
// small hours after a past-midnight session, not the morning of the stored
// date.
const earlyMorningCutoff = 6

// ErrInvalidTimeSlot is returned when a slot's end does not come after its
// start.
var ErrInvalidTimeSlot = errors.New("time slot end must be after start")

// TimeSlot is a rental window on a given date. Hours are wall-clock start and
// end hours; EndHour may exceed 24 to denote early morning of the next day
// (26 = 02:00 next day).
type TimeSlot struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// NewTimeSlot validates and returns a slot.
func NewTimeSlot(startHour, endHour int) (TimeSlot, error) {
	s := TimeSlot{StartHour: startHour, EndHour: endHour}
	if startHour < 0 || endHour < 0 {
		return s, fmt.Errorf("%w: negative hour", ErrInvalidTimeSlot)
	}
	if s.NormalizedEnd() <= s.NormalizedStart() {
		return s, fmt.Errorf("%w: %d-%d", ErrInvalidTimeSlot, startHour, endHour)
	}
	return s, nil
}

// NormalizedStart maps the start hour onto a single 6..29 scale where
// early-morning hours count as 24+.
func (ts TimeSlot) NormalizedStart() int {
	if ts.StartHour < earlyMorningCutoff {
		return ts.StartHour + 24
	}
	return ts.StartHour
}

// NormalizedEnd maps the end hour onto the same scale. An end at exactly the
// cutoff still belongs to the next day (a 22-6 slot ends at 06:00 tomorrow).
func (ts TimeSlot) NormalizedEnd() int {
	if ts.EndHour <= earlyMorningCutoff {
		return ts.EndHour + 24
	}
	return ts.EndHour
}

// Overlaps reports whether two slots intersect, comparing half-open
// [start, end) intervals on the normalized scale.
func (ts TimeSlot) Overlaps(other TimeSlot) bool {
	return ts.NormalizedStart() < other.NormalizedEnd() &&
		other.NormalizedStart() < ts.NormalizedEnd()
}

// Duration is the slot length.
func (ts TimeSlot) Duration() time.Duration {
	return time.Duration(ts.NormalizedEnd()-ts.NormalizedStart()) * time.Hour
}

// String renders the slot in its stored wall-clock form, e.g. "22-26".
func (ts TimeSlot) String() string {
	return fmt.Sprintf("%d-%d", ts.StartHour, ts.EndHour)
}

// instant places an hour on the normalized scale onto the calendar date. Hours
// of 24 and above land on the following day.
func instant(date time.Time, normalizedHour int) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	if normalizedHour >= 24 {
		return day.AddDate(0, 0, 1).Add(time.Duration(normalizedHour-24) * time.Hour)
	}
	return day.Add(time.Duration(normalizedHour) * time.Hour)
}

// StartAt returns the wall-clock instant the slot begins on the given date.
func (ts TimeSlot) StartAt(date time.Time) time.Time {
	return instant(date, ts.NormalizedStart())
}

// EndAt returns the wall-clock instant the slot ends on the given date.
func (ts TimeSlot) EndAt(date time.Time) time.Time {
	return instant(date, ts.NormalizedEnd())
}
