// Package noshow marks reservations never claimed by their customer. Two
// paths exist: staff flag an individual reservation once a short grace has
// passed, and a daily sweep catches everything the previous business day
// left behind. A business day runs from the boundary hour (05:00 by default)
// to just before the next one, so overnight slots settle with the day they
// belong to.
package noshow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gamecenter-reservation-backend/internal/clock"
	"gamecenter-reservation-backend/internal/reservation"
	"gamecenter-reservation-backend/internal/store"
)

// ErrTooEarly is returned when a staff no-show request arrives before the
// interactive grace period has elapsed.
var ErrTooEarly = errors.New("grace period has not elapsed")

// Policy holds the timing knobs. The interactive grace is deliberately
// shorter than the sweep grace: a staff member looking at an empty seat needs
// less benefit of the doubt than an unattended batch job.
type Policy struct {
	InteractiveGrace time.Duration
	SweepGrace       time.Duration
	BoundaryHour     int
}

// DeviceReleaser drops the device hold bound to a no-show reservation. The
// release is identity-guarded on the releaser's side, so releasing a hold
// that already moved on is harmless.
type DeviceReleaser interface {
	AutoRelease(deviceID, reservationID string)
}

// Detector implements both no-show paths over the reservation store.
type Detector struct {
	repo     store.ReservationRepository
	clk      clock.Clock
	policy   Policy
	releaser DeviceReleaser
}

// NewDetector creates a Detector. releaser may be nil when no device state
// is tracked.
func NewDetector(repo store.ReservationRepository, clk clock.Clock, policy Policy, releaser DeviceReleaser) *Detector {
	return &Detector{repo: repo, clk: clk, policy: policy, releaser: releaser}
}

// Check marks a single reservation as a no-show on staff request. The
// reservation must be approved and its slot must have started at least the
// interactive grace ago; otherwise ErrTooEarly. State-machine violations
// (already checked in, terminal) surface as ErrInvalidStateTransition.
func (d *Detector) Check(ctx context.Context, reservationID string) (reservation.Reservation, error) {
	r, err := d.repo.FindReservationByID(ctx, reservationID)
	if err != nil {
		return reservation.Reservation{}, err
	}

	now := d.clk.Now()
	if now.Before(r.StartAt().Add(d.policy.InteractiveGrace)) {
		return reservation.Reservation{}, fmt.Errorf("%w: reservation %s started at %s",
			ErrTooEarly, r.ID, r.StartAt().Format(time.RFC3339))
	}

	marked, err := r.MarkAsNoShow(now)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if err := d.repo.UpdateReservation(ctx, marked); err != nil {
		return reservation.Reservation{}, fmt.Errorf("failed to persist no-show for %s: %w", r.ID, err)
	}
	d.release(marked)
	log.Printf("Reservation %s marked as no-show", r.ID)
	return marked, nil
}

// RunDailySweep marks every approved reservation of the just-ended business
// day whose customer never checked in. The window is the 24 hours before the
// current business day start; within it the sweep grace still applies, so a
// slot that opened minutes before the boundary is left for the staff path.
// Returns the number of reservations marked.
func (d *Detector) RunDailySweep(ctx context.Context) (int, error) {
	now := d.clk.Now()
	windowEnd := clock.BusinessDayStart(now, d.policy.BoundaryHour)
	windowStart := windowEnd.Add(-24 * time.Hour)

	// Early-morning slots carry the previous calendar date, so the date scan
	// reaches one day further back than the window itself.
	candidates, err := d.repo.FindByDateRange(ctx, windowStart.AddDate(0, 0, -1), windowEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to load sweep candidates: %w", err)
	}

	marked := 0
	for _, r := range candidates {
		if r.Status != reservation.StatusApproved {
			continue
		}
		startAt := r.StartAt()
		if startAt.Before(windowStart) || !startAt.Before(windowEnd) {
			continue
		}
		if now.Before(startAt.Add(d.policy.SweepGrace)) {
			continue
		}
		swept, err := r.MarkAsNoShow(now)
		if err != nil {
			log.Printf("Warning: sweep skipped reservation %s: %v", r.ID, err)
			continue
		}
		if err := d.repo.UpdateReservation(ctx, swept); err != nil {
			log.Printf("Warning: sweep failed to persist no-show for %s: %v", r.ID, err)
			continue
		}
		d.release(swept)
		marked++
	}

	log.Printf("No-show sweep finished: %d of %d candidates marked (window %s to %s)",
		marked, len(candidates), windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
	return marked, nil
}

func (d *Detector) release(r reservation.Reservation) {
	if d.releaser != nil {
		d.releaser.AutoRelease(r.DeviceID, r.ID)
	}
}

// PendingCheckIn is an approved reservation whose slot has opened without a
// check-in yet.
type PendingCheckIn struct {
	Reservation reservation.Reservation
	Overdue     time.Duration
}

// PendingCheckIns lists reservations staff should chase right now: approved,
// slot started, slot not yet over.
func (d *Detector) PendingCheckIns(ctx context.Context) ([]PendingCheckIn, error) {
	now := d.clk.Now()
	candidates, err := d.repo.FindByDateRange(ctx, now.AddDate(0, 0, -1), now)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending check-ins: %w", err)
	}

	var out []PendingCheckIn
	for _, r := range candidates {
		if r.Status != reservation.StatusApproved {
			continue
		}
		if r.StartAt().After(now) || !r.EndAt().After(now) {
			continue
		}
		out = append(out, PendingCheckIn{Reservation: r, Overdue: now.Sub(r.StartAt())})
	}
	return out, nil
}

// Stats summarises no-show counts over a date range.
type Stats struct {
	Total   int64   `json:"total"`
	NoShows int64   `json:"no_shows"`
	Rate    float64 `json:"rate"`
}

// Stats returns reservation and no-show counts for [from, to] with the
// derived rate.
func (d *Detector) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	total, noShows, err := d.repo.NoShowStats(ctx, from, to)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Total: total, NoShows: noShows}
	if total > 0 {
		s.Rate = float64(noShows) / float64(total)
	}
	return s, nil
}
