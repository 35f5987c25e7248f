package reservation

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ErrInvalidStateTransition is returned when a transition is requested from a
// status that does not permit it.
var ErrInvalidStateTransition = errors.New("invalid reservation state transition")

// allowedTransitions encodes the one-directional status graph. A status absent
// from the map is terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn: {StatusCompleted},
}

// CanTransitionTo reports whether the status graph permits moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// TransitionTo returns next if the transition is legal.
func (s Status) TransitionTo(next Status) (Status, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s, next)
	}
	return next, nil
}

// IsTerminal reports whether no further reservation-level transition is
// permitted from s.
func (s Status) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// IsActive reports whether the reservation still occupies its slot for
// conflict purposes.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCheckedIn:
		return true
	}
	return false
}

// ActiveStatuses lists the statuses that block a time slot.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusApproved, StatusCheckedIn}
}
