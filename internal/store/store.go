// Package store is the persistence boundary of the reservation engine. The
// engine only ever talks to the ReservationRepository and DeviceRepository
// interfaces; GORM and in-memory implementations live here.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gamecenter-reservation-backend/internal/model"
	"gamecenter-reservation-backend/internal/reservation"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ReservationRepository defines the reservation persistence operations the
// engine depends on.
type ReservationRepository interface {
	FindReservationByID(ctx context.Context, id string) (reservation.Reservation, error)
	SaveReservation(ctx context.Context, r reservation.Reservation) error
	UpdateReservation(ctx context.Context, r reservation.Reservation) error
	// FindActiveByDeviceAndDate returns non-terminal reservations for the
	// device on the calendar date.
	FindActiveByDeviceAndDate(ctx context.Context, deviceID string, date time.Time) ([]reservation.Reservation, error)
	// FindActiveByUser returns the user's non-terminal reservations.
	FindActiveByUser(ctx context.Context, userID string) ([]reservation.Reservation, error)
	// FindByDateRange returns reservations whose calendar date lies in
	// [fromDate, toDate] inclusive.
	FindByDateRange(ctx context.Context, fromDate, toDate time.Time) ([]reservation.Reservation, error)
	// NoShowStats counts reservations and no-shows in the date range.
	NoShowStats(ctx context.Context, fromDate, toDate time.Time) (total, noShows int64, err error)
}

// DeviceRepository defines the device lookups the engine depends on.
type DeviceRepository interface {
	FindDeviceByID(ctx context.Context, id string) (model.Device, error)
}

// Store combines the repositories with the non-critical history sink.
type Store interface {
	ReservationRepository
	DeviceRepository
	// AppendStatusHistory records a device status transition in the cold
	// table. Failures are the caller's non-critical side-effect channel.
	AppendStatusHistory(ctx context.Context, h model.DeviceStatusHistory) error
}

// gormStore implements Store using GORM.
type gormStore struct {
	db  *gorm.DB
	loc *time.Location
}

// NewGormStore creates a new GORM-backed store. Reservation dates are
// interpreted in loc, the venue's timezone.
func NewGormStore(db *gorm.DB, loc *time.Location) Store {
	return &gormStore{db: db, loc: loc}
}

func (s *gormStore) toRecord(r reservation.Reservation) model.Reservation {
	return model.Reservation{
		ID:          r.ID,
		UserID:      r.UserID,
		DeviceID:    r.DeviceID,
		Date:        r.Date,
		StartHour:   r.Slot.StartHour,
		EndHour:     r.Slot.EndHour,
		Status:      string(r.Status),
		Number:      r.Number,
		CheckedInAt: r.CheckedInAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *gormStore) fromRecord(rec model.Reservation) reservation.Reservation {
	date := rec.Date.In(s.loc)
	return reservation.Reservation{
		ID:          rec.ID,
		UserID:      rec.UserID,
		DeviceID:    rec.DeviceID,
		Date:        time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc),
		Slot:        reservation.TimeSlot{StartHour: rec.StartHour, EndHour: rec.EndHour},
		Status:      reservation.Status(rec.Status),
		Number:      rec.Number,
		CheckedInAt: rec.CheckedInAt,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func (s *gormStore) fromRecords(recs []model.Reservation) []reservation.Reservation {
	out := make([]reservation.Reservation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.fromRecord(rec))
	}
	return out
}

func activeStatusStrings() []string {
	statuses := reservation.ActiveStatuses()
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, string(st))
	}
	return out
}

func (s *gormStore) FindReservationByID(ctx context.Context, id string) (reservation.Reservation, error) {
	var rec model.Reservation
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reservation.Reservation{}, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
		}
		return reservation.Reservation{}, fmt.Errorf("failed to load reservation %s: %w", id, err)
	}
	return s.fromRecord(rec), nil
}

func (s *gormStore) SaveReservation(ctx context.Context, r reservation.Reservation) error {
	rec := s.toRecord(r)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to save reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *gormStore) UpdateReservation(ctx context.Context, r reservation.Reservation) error {
	rec := s.toRecord(r)
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to update reservation %s: %w", r.ID, err)
	}
	return nil
}

func (s *gormStore) FindActiveByDeviceAndDate(ctx context.Context, deviceID string, date time.Time) ([]reservation.Reservation, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
	var recs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND date = ? AND status IN ?", deviceID, day, activeStatusStrings()).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active reservations for device %s: %w", deviceID, err)
	}
	return s.fromRecords(recs), nil
}

func (s *gormStore) FindActiveByUser(ctx context.Context, userID string) ([]reservation.Reservation, error) {
	var recs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, activeStatusStrings()).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active reservations for user %s: %w", userID, err)
	}
	return s.fromRecords(recs), nil
}

func (s *gormStore) FindByDateRange(ctx context.Context, fromDate, toDate time.Time) ([]reservation.Reservation, error) {
	from := time.Date(fromDate.Year(), fromDate.Month(), fromDate.Day(), 0, 0, 0, 0, s.loc)
	to := time.Date(toDate.Year(), toDate.Month(), toDate.Day(), 0, 0, 0, 0, s.loc)
	var recs []model.Reservation
	err := s.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations in range: %w", err)
	}
	return s.fromRecords(recs), nil
}

func (s *gormStore) NoShowStats(ctx context.Context, fromDate, toDate time.Time) (int64, int64, error) {
	from := time.Date(fromDate.Year(), fromDate.Month(), fromDate.Day(), 0, 0, 0, 0, s.loc)
	to := time.Date(toDate.Year(), toDate.Month(), toDate.Day(), 0, 0, 0, 0, s.loc)

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("date >= ? AND date <= ?", from, to).
		Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	var noShows int64
	if err := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("date >= ? AND date <= ? AND status = ?", from, to, string(reservation.StatusNoShow)).
		Count(&noShows).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count no-shows: %w", err)
	}
	return total, noShows, nil
}

func (s *gormStore) FindDeviceByID(ctx context.Context, id string) (model.Device, error) {
	var dev model.Device
	if err := s.db.WithContext(ctx).First(&dev, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Device{}, fmt.Errorf("device %s: %w", id, ErrNotFound)
		}
		return model.Device{}, fmt.Errorf("failed to load device %s: %w", id, err)
	}
	return dev, nil
}

func (s *gormStore) AppendStatusHistory(ctx context.Context, h model.DeviceStatusHistory) error {
	if err := s.db.WithContext(ctx).Create(&h).Error; err != nil {
		return fmt.Errorf("failed to append status history for device %s: %w", h.DeviceID, err)
	}
	return nil
}
