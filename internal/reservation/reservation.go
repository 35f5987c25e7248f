// Package reservation holds the reservation entity and its status state
// machine. Transitions return a new value; the entity never mutates in place
// and never consults a clock on its own — time-based eligibility (advance
// notice, no-show thresholds) is the caller's concern.
package reservation

import (
	"time"
)

// Reservation is an immutable snapshot of a rental reservation. The Date field
// is the calendar day of the slot at midnight in the venue's timezone; slots
// whose hours run past 24 spill into the following day.
type Reservation struct {
	ID       string
	UserID   string
	DeviceID string
	Date     time.Time
	Slot     TimeSlot
	Status   Status
	Number   string

	CheckedInAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New constructs a pending reservation. The slot is validated; the
// reservation number is derived from the date.
func New(id, userID, deviceID string, date time.Time, slot TimeSlot, now time.Time) (Reservation, error) {
	if _, err := NewTimeSlot(slot.StartHour, slot.EndHour); err != nil {
		return Reservation{}, err
	}
	return Reservation{
		ID:        id,
		UserID:    userID,
		DeviceID:  deviceID,
		Date:      time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()),
		Slot:      slot,
		Status:    StatusPending,
		Number:    GenerateNumber(date),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// StartAt is the instant the rental slot begins.
func (r Reservation) StartAt() time.Time {
	return r.Slot.StartAt(r.Date)
}

// EndAt is the instant the rental slot ends.
func (r Reservation) EndAt() time.Time {
	return r.Slot.EndAt(r.Date)
}

// MeetsAdvanceNotice reports whether the slot starts at least minNotice after
// now (the 24-hour rule, with the threshold injected as policy).
func (r Reservation) MeetsAdvanceNotice(now time.Time, minNotice time.Duration) bool {
	return !r.StartAt().Before(now.Add(minNotice))
}

// SameDate reports whether both reservations are for the same calendar day.
func (r Reservation) SameDate(other Reservation) bool {
	return r.Date.Year() == other.Date.Year() &&
		r.Date.Month() == other.Date.Month() &&
		r.Date.Day() == other.Date.Day()
}

// ConflictsWith reports whether the other reservation occupies the same device
// on the same date with an overlapping slot.
func (r Reservation) ConflictsWith(other Reservation) bool {
	if r.ID == other.ID {
		return false
	}
	if r.DeviceID != other.DeviceID {
		return false
	}
	if !r.SameDate(other) {
		return false
	}
	return r.Slot.Overlaps(other.Slot)
}

// HasUserConflict reports whether the same user already holds an active
// reservation overlapping this slot, regardless of device.
func (r Reservation) HasUserConflict(other Reservation) bool {
	if r.ID == other.ID {
		return false
	}
	if r.UserID != other.UserID {
		return false
	}
	if !r.Status.IsActive() || !other.Status.IsActive() {
		return false
	}
	if !r.SameDate(other) {
		return false
	}
	return r.Slot.Overlaps(other.Slot)
}

// transition returns a copy with the new status and updated timestamp.
func (r Reservation) transition(next Status, now time.Time) (Reservation, error) {
	updated, err := r.Status.TransitionTo(next)
	if err != nil {
		return r, err
	}
	r.Status = updated
	r.UpdatedAt = now
	return r, nil
}

// Approve moves a pending reservation to approved.
func (r Reservation) Approve(now time.Time) (Reservation, error) {
	return r.transition(StatusApproved, now)
}

// Reject moves a pending reservation to rejected.
func (r Reservation) Reject(now time.Time) (Reservation, error) {
	return r.transition(StatusRejected, now)
}

// Cancel moves a pending or approved reservation to cancelled.
func (r Reservation) Cancel(now time.Time) (Reservation, error) {
	return r.transition(StatusCancelled, now)
}

// CheckIn moves an approved reservation to checked_in and records the
// check-in instant.
func (r Reservation) CheckIn(now time.Time) (Reservation, error) {
	checked, err := r.transition(StatusCheckedIn, now)
	if err != nil {
		return r, err
	}
	at := now
	checked.CheckedInAt = &at
	return checked, nil
}

// Complete moves a checked-in reservation to completed.
func (r Reservation) Complete(now time.Time) (Reservation, error) {
	return r.transition(StatusCompleted, now)
}

// MarkAsNoShow moves an approved reservation to no_show. A reservation that
// was ever checked in cannot become a no-show.
func (r Reservation) MarkAsNoShow(now time.Time) (Reservation, error) {
	return r.transition(StatusNoShow, now)
}
