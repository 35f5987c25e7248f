package devstate

import (
	"context"
	"fmt"
	"log"

	"gamecenter-reservation-backend/internal/reservation"
	"gamecenter-reservation-backend/internal/store"
)

// Restore rebuilds device state from persisted reservations after a restart.
// In-memory timers do not survive the process, so every approved or
// checked_in reservation around the current date is replayed through the same
// transitions a live event would have taken: holds are re-bound, running
// rentals re-arm their end timer, and rentals that expired while the process
// was down release immediately.
func (m *Manager) Restore(ctx context.Context, repo store.ReservationRepository) error {
	now := m.clk.Now()
	// A slot can spill past midnight and early-morning slots belong to the
	// previous calendar date, so scan one day to each side.
	from := now.AddDate(0, 0, -1)
	to := now.AddDate(0, 0, 1)

	reservations, err := repo.FindByDateRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to load reservations for restore: %w", err)
	}

	restored := 0
	for _, r := range reservations {
		switch r.Status {
		case reservation.StatusCheckedIn:
			if err := m.CheckIn(r.DeviceID, r.ID, r.StartAt(), r.EndAt(), r.UserID); err != nil {
				log.Printf("Warning: could not restore checked-in reservation %s on device %s: %v", r.ID, r.DeviceID, err)
				continue
			}
			restored++
		case reservation.StatusApproved:
			// The hold only matters while the slot can still be used; a
			// missed slot is the no-show sweep's problem.
			if r.EndAt().After(now) {
				if err := m.Reserve(r.DeviceID, r.ID, r.StartAt(), r.UserID); err != nil {
					log.Printf("Warning: could not restore hold for reservation %s on device %s: %v", r.ID, r.DeviceID, err)
					continue
				}
				restored++
			}
		}
	}

	log.Printf("Device state restored: %d of %d reservations replayed", restored, len(reservations))
	return nil
}
