// Package booking is the application service tying the reservation state
// machine, the validation rules, the device status manager, and notifications
// together. Persistence commits first; device-state side effects follow and
// never veto a committed transition.
package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"gamecenter-reservation-backend/internal/clock"
	"gamecenter-reservation-backend/internal/devstate"
	"gamecenter-reservation-backend/internal/noshow"
	"gamecenter-reservation-backend/internal/notification"
	"gamecenter-reservation-backend/internal/reservation"
	"gamecenter-reservation-backend/internal/store"
)

// Role is the actor's authorization level.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor has staff privileges.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// canAccess reports whether the actor owns the reservation or is staff.
func (a Actor) canAccess(r reservation.Reservation) bool {
	return a.IsAdmin() || a.ID == r.UserID
}

var (
	// ErrPermissionDenied is returned when the actor may not perform the
	// operation on the target reservation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrDeviceUnavailable is returned when the target device does not accept
	// reservations right now.
	ErrDeviceUnavailable = errors.New("device is not available for reservation")
	// ErrAdvanceNotice is returned when the slot starts too soon.
	ErrAdvanceNotice = errors.New("reservation does not meet the advance notice requirement")
	// ErrTimeSlotConflict is returned when the device already has an active
	// reservation overlapping the slot.
	ErrTimeSlotConflict = errors.New("time slot conflicts with an existing reservation")
	// ErrUserDoubleBooking is returned when the user already holds an active
	// reservation overlapping the slot.
	ErrUserDoubleBooking = errors.New("user already has a reservation in this time slot")
)

// Policy holds the booking-side timing rules.
type Policy struct {
	AdvanceNotice time.Duration
}

// Service exposes the reservation lifecycle operations.
type Service struct {
	repo     store.ReservationRepository
	devices  store.DeviceRepository
	manager  *devstate.Manager
	detector *noshow.Detector
	notifier notification.EventNotifier
	clk      clock.Clock
	policy   Policy
}

// NewService wires the reservation service. notifier may be nil.
func NewService(
	repo store.ReservationRepository,
	devices store.DeviceRepository,
	manager *devstate.Manager,
	detector *noshow.Detector,
	notifier notification.EventNotifier,
	clk clock.Clock,
	policy Policy,
) *Service {
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &Service{
		repo:     repo,
		devices:  devices,
		manager:  manager,
		detector: detector,
		notifier: notifier,
		clk:      clk,
		policy:   policy,
	}
}

// newID returns a random 128-bit hex identifier.
func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken.
		panic(fmt.Sprintf("failed to generate reservation id: %v", err))
	}
	return hex.EncodeToString(buf)
}

// CreateInput carries a reservation request.
type CreateInput struct {
	DeviceID string
	Date     time.Time
	Slot     reservation.TimeSlot
}

// CreateReservation validates and persists a new pending reservation. The
// checks run in a fixed order so clients get the most actionable error:
// actor, device existence, device availability, advance notice, device slot
// conflict, then the user's own schedule.
func (s *Service) CreateReservation(ctx context.Context, actor Actor, in CreateInput) (reservation.Reservation, error) {
	if actor.ID == "" {
		return reservation.Reservation{}, fmt.Errorf("%w: missing actor", ErrPermissionDenied)
	}

	dev, err := s.devices.FindDeviceByID(ctx, in.DeviceID)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !dev.Bookable {
		return reservation.Reservation{}, fmt.Errorf("%w: device %s is not bookable", ErrDeviceUnavailable, dev.ID)
	}
	if s.manager.Status(dev.ID).Status == devstate.StatusMaintenance {
		return reservation.Reservation{}, fmt.Errorf("%w: device %s is under maintenance", ErrDeviceUnavailable, dev.ID)
	}

	now := s.clk.Now()
	r, err := reservation.New(newID(), actor.ID, in.DeviceID, in.Date, in.Slot, now)
	if err != nil {
		return reservation.Reservation{}, err
	}

	if !r.MeetsAdvanceNotice(now, s.policy.AdvanceNotice) {
		return reservation.Reservation{}, fmt.Errorf("%w: slot starts at %s",
			ErrAdvanceNotice, r.StartAt().Format(time.RFC3339))
	}

	existing, err := s.repo.FindActiveByDeviceAndDate(ctx, in.DeviceID, r.Date)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to check device schedule: %w", err)
	}
	for _, other := range existing {
		if r.ConflictsWith(other) {
			return reservation.Reservation{}, fmt.Errorf("%w: overlaps reservation %s", ErrTimeSlotConflict, other.ID)
		}
	}

	mine, err := s.repo.FindActiveByUser(ctx, actor.ID)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to check user schedule: %w", err)
	}
	for _, other := range mine {
		if r.HasUserConflict(other) {
			return reservation.Reservation{}, fmt.Errorf("%w: overlaps reservation %s", ErrUserDoubleBooking, other.ID)
		}
	}

	if err := s.repo.SaveReservation(ctx, r); err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to save reservation: %w", err)
	}
	log.Printf("Reservation %s (%s) created for device %s by user %s", r.ID, r.Number, r.DeviceID, actor.ID)
	return r, nil
}

// GetReservation returns a reservation the actor is allowed to see.
func (s *Service) GetReservation(ctx context.Context, actor Actor, id string) (reservation.Reservation, error) {
	r, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !actor.canAccess(r) {
		return reservation.Reservation{}, ErrPermissionDenied
	}
	return r, nil
}

// ListUserReservations returns the user's active reservations. Members may
// only list their own.
func (s *Service) ListUserReservations(ctx context.Context, actor Actor, userID string) ([]reservation.Reservation, error) {
	if !actor.IsAdmin() && actor.ID != userID {
		return nil, ErrPermissionDenied
	}
	return s.repo.FindActiveByUser(ctx, userID)
}

// ApproveReservation moves a pending reservation to approved and places a
// hold on the device. Staff only.
func (s *Service) ApproveReservation(ctx context.Context, actor Actor, id string) (reservation.Reservation, error) {
	if !actor.IsAdmin() {
		return reservation.Reservation{}, ErrPermissionDenied
	}

	r, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}

	approved, err := r.Approve(s.clk.Now())
	if err != nil {
		return reservation.Reservation{}, err
	}
	if err := s.repo.UpdateReservation(ctx, approved); err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to persist approval of %s: %w", id, err)
	}

	// The approval stands even if the hold cannot be placed; staff resolve
	// the maintenance clash by cancelling one side.
	if err := s.manager.Reserve(approved.DeviceID, approved.ID, approved.StartAt(), approved.UserID); err != nil {
		log.Printf("Warning: approved reservation %s but could not hold device %s: %v", id, approved.DeviceID, err)
	}
	return approved, nil
}

// RejectReservation moves a pending reservation to rejected. Staff only.
func (s *Service) RejectReservation(ctx context.Context, actor Actor, id string) (reservation.Reservation, error) {
	if !actor.IsAdmin() {
		return reservation.Reservation{}, ErrPermissionDenied
	}

	r, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}

	rejected, err := r.Reject(s.clk.Now())
	if err != nil {
		return reservation.Reservation{}, err
	}
	if err := s.repo.UpdateReservation(ctx, rejected); err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to persist rejection of %s: %w", id, err)
	}
	return rejected, nil
}

// CancelReservation cancels a pending or approved reservation. The owner or
// staff may cancel; a device hold bound to the reservation is released and a
// cancellation event goes out.
func (s *Service) CancelReservation(ctx context.Context, actor Actor, id, reason string) (reservation.Reservation, error) {
	r, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !actor.canAccess(r) {
		return reservation.Reservation{}, ErrPermissionDenied
	}

	cancelled, err := r.Cancel(s.clk.Now())
	if err != nil {
		return reservation.Reservation{}, err
	}
	if err := s.repo.UpdateReservation(ctx, cancelled); err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to persist cancellation of %s: %w", id, err)
	}

	s.manager.AutoRelease(cancelled.DeviceID, cancelled.ID)
	s.notifier.ReservationCancelled(cancelled.ID, cancelled.DeviceID, cancelled.UserID, reason)
	log.Printf("Reservation %s cancelled by %s: %s", id, actor.ID, reason)
	return cancelled, nil
}

// CheckIn records the customer's arrival. The reservation transitions to
// checked_in and the device either starts the rental or holds until the slot
// opens. The owner or staff may check in; a device under maintenance blocks
// the check-in entirely.
func (s *Service) CheckIn(ctx context.Context, actor Actor, id string) (reservation.Reservation, error) {
	r, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !actor.canAccess(r) {
		return reservation.Reservation{}, ErrPermissionDenied
	}
	if s.manager.Status(r.DeviceID).Status == devstate.StatusMaintenance {
		return reservation.Reservation{}, fmt.Errorf("%w: device %s is under maintenance", ErrDeviceUnavailable, r.DeviceID)
	}

	checked, err := r.CheckIn(s.clk.Now())
	if err != nil {
		return reservation.Reservation{}, err
	}
	if err := s.repo.UpdateReservation(ctx, checked); err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to persist check-in of %s: %w", id, err)
	}

	if err := s.manager.CheckIn(checked.DeviceID, checked.ID, checked.StartAt(), checked.EndAt(), checked.UserID); err != nil {
		log.Printf("Warning: checked in reservation %s but device %s did not follow: %v", id, checked.DeviceID, err)
	}
	return checked, nil
}

// CompleteReservation finishes a checked-in rental and releases the device
// early if its slot is still running.
func (s *Service) CompleteReservation(ctx context.Context, actor Actor, id string) (reservation.Reservation, error) {
	r, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !actor.canAccess(r) {
		return reservation.Reservation{}, ErrPermissionDenied
	}

	completed, err := r.Complete(s.clk.Now())
	if err != nil {
		return reservation.Reservation{}, err
	}
	if err := s.repo.UpdateReservation(ctx, completed); err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to persist completion of %s: %w", id, err)
	}

	s.manager.AutoRelease(completed.DeviceID, completed.ID)
	return completed, nil
}

// MarkAsNoShow flags a reservation whose customer never arrived. Staff only;
// the grace check and the transition live in the detector. Any device hold
// bound to the reservation is dropped.
func (s *Service) MarkAsNoShow(ctx context.Context, actor Actor, id string) (reservation.Reservation, error) {
	if !actor.IsAdmin() {
		return reservation.Reservation{}, ErrPermissionDenied
	}

	marked, err := s.detector.Check(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}

	s.manager.AutoRelease(marked.DeviceID, marked.ID)
	return marked, nil
}

// ExtendRental pushes the end of a checked-in rental to a later hour. The new
// end must extend the current slot and must not collide with the device's
// other reservations.
func (s *Service) ExtendRental(ctx context.Context, actor Actor, id string, newEndHour int) (reservation.Reservation, error) {
	r, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !actor.canAccess(r) {
		return reservation.Reservation{}, ErrPermissionDenied
	}
	if r.Status != reservation.StatusCheckedIn {
		return reservation.Reservation{}, fmt.Errorf("%w: %s is not checked in", reservation.ErrInvalidStateTransition, id)
	}

	newSlot, err := reservation.NewTimeSlot(r.Slot.StartHour, newEndHour)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if newSlot.NormalizedEnd() <= r.Slot.NormalizedEnd() {
		return reservation.Reservation{}, fmt.Errorf("%w: new end %d does not extend the slot", reservation.ErrInvalidTimeSlot, newEndHour)
	}

	extended := r
	extended.Slot = newSlot
	extended.UpdatedAt = s.clk.Now()

	others, err := s.repo.FindActiveByDeviceAndDate(ctx, r.DeviceID, r.Date)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to check device schedule: %w", err)
	}
	for _, other := range others {
		if extended.ConflictsWith(other) {
			return reservation.Reservation{}, fmt.Errorf("%w: overlaps reservation %s", ErrTimeSlotConflict, other.ID)
		}
	}

	if err := s.repo.UpdateReservation(ctx, extended); err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to persist extension of %s: %w", id, err)
	}

	if err := s.manager.ExtendRental(extended.DeviceID, extended.EndAt()); err != nil {
		log.Printf("Warning: extended reservation %s but device %s did not follow: %v", id, extended.DeviceID, err)
	}
	log.Printf("Reservation %s extended to hour %d", id, newEndHour)
	return extended, nil
}

// DeviceSchedule returns the device's active reservations for a date,
// visible to any actor.
func (s *Service) DeviceSchedule(ctx context.Context, deviceID string, date time.Time) ([]reservation.Reservation, error) {
	return s.repo.FindActiveByDeviceAndDate(ctx, deviceID, date)
}

// PendingCheckIns lists reservations whose slot has opened without a
// check-in. Staff only.
func (s *Service) PendingCheckIns(ctx context.Context, actor Actor) ([]noshow.PendingCheckIn, error) {
	if !actor.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	return s.detector.PendingCheckIns(ctx)
}

// NoShowStats summarises no-show counts over a date range. Staff only.
func (s *Service) NoShowStats(ctx context.Context, actor Actor, from, to time.Time) (noshow.Stats, error) {
	if !actor.IsAdmin() {
		return noshow.Stats{}, ErrPermissionDenied
	}
	return s.detector.Stats(ctx, from, to)
}
