package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gamecenter-reservation-backend/internal/model"
	"gamecenter-reservation-backend/internal/reservation"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// DSN-less development runs.
type MemoryStore struct {
	mu           sync.RWMutex
	reservations map[string]reservation.Reservation
	devices      map[string]model.Device
	history      []model.DeviceStatusHistory
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reservations: make(map[string]reservation.Reservation),
		devices:      make(map[string]model.Device),
	}
}

// PutDevice registers or replaces a device.
func (s *MemoryStore) PutDevice(dev model.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[dev.ID] = dev
}

// History returns a copy of the appended status history.
func (s *MemoryStore) History() []model.DeviceStatusHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DeviceStatusHistory, len(s.history))
	copy(out, s.history)
	return out
}

func (s *MemoryStore) FindReservationByID(_ context.Context, id string) (reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) SaveReservation(_ context.Context, r reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reservations[r.ID]; exists {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	s.reservations[r.ID] = r
	return nil
}

func (s *MemoryStore) UpdateReservation(_ context.Context, r reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reservations[r.ID]; !exists {
		return fmt.Errorf("reservation %s: %w", r.ID, ErrNotFound)
	}
	s.reservations[r.ID] = r
	return nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func (s *MemoryStore) FindActiveByDeviceAndDate(_ context.Context, deviceID string, date time.Time) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []reservation.Reservation
	for _, r := range s.reservations {
		if r.DeviceID == deviceID && r.Status.IsActive() && sameDay(r.Date, date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindActiveByUser(_ context.Context, userID string) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []reservation.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID && r.Status.IsActive() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindByDateRange(_ context.Context, fromDate, toDate time.Time) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from := time.Date(fromDate.Year(), fromDate.Month(), fromDate.Day(), 0, 0, 0, 0, fromDate.Location())
	to := time.Date(toDate.Year(), toDate.Month(), toDate.Day(), 23, 59, 59, 0, toDate.Location())
	var out []reservation.Reservation
	for _, r := range s.reservations {
		if !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) NoShowStats(_ context.Context, fromDate, toDate time.Time) (int64, int64, error) {
	rs, err := s.FindByDateRange(context.Background(), fromDate, toDate)
	if err != nil {
		return 0, 0, err
	}
	var total, noShows int64
	for _, r := range rs {
		total++
		if r.Status == reservation.StatusNoShow {
			noShows++
		}
	}
	return total, noShows, nil
}

func (s *MemoryStore) FindDeviceByID(_ context.Context, id string) (model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dev, ok := s.devices[id]
	if !ok {
		return model.Device{}, fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return dev, nil
}

func (s *MemoryStore) AppendStatusHistory(_ context.Context, h model.DeviceStatusHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, h)
	return nil
}
