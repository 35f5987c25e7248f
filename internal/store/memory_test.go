package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamecenter-reservation-backend/internal/model"
	"gamecenter-reservation-backend/internal/reservation"
)

func newMemoryReservation(t *testing.T, id, userID, deviceID string, date time.Time, start, end int) reservation.Reservation {
	t.Helper()
	slot, err := reservation.NewTimeSlot(start, end)
	require.NoError(t, err)
	r, err := reservation.New(id, userID, deviceID, date, slot, date.Add(-48*time.Hour))
	require.NoError(t, err)
	return r
}

func TestMemoryStore_ReservationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	r := newMemoryReservation(t, "r1", "u1", "d1", date, 14, 16)
	require.NoError(t, s.SaveReservation(ctx, r))

	// Duplicate saves are rejected.
	assert.Error(t, s.SaveReservation(ctx, r))

	got, err := s.FindReservationByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = s.FindReservationByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	approved, err := r.Approve(date)
	require.NoError(t, err)
	require.NoError(t, s.UpdateReservation(ctx, approved))

	got, err = s.FindReservationByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusApproved, got.Status)

	assert.ErrorIs(t, s.UpdateReservation(ctx, newMemoryReservation(t, "ghost", "u1", "d1", date, 14, 16)), ErrNotFound)
}

func TestMemoryStore_ActiveQueries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	active := newMemoryReservation(t, "r1", "u1", "d1", date, 14, 16)
	require.NoError(t, s.SaveReservation(ctx, active))

	cancelled, err := newMemoryReservation(t, "r2", "u1", "d1", date, 18, 20).Cancel(date)
	require.NoError(t, err)
	require.NoError(t, s.SaveReservation(ctx, cancelled))

	otherDay := newMemoryReservation(t, "r3", "u1", "d1", date.AddDate(0, 0, 1), 14, 16)
	require.NoError(t, s.SaveReservation(ctx, otherDay))

	byDevice, err := s.FindActiveByDeviceAndDate(ctx, "d1", date)
	require.NoError(t, err)
	require.Len(t, byDevice, 1)
	assert.Equal(t, "r1", byDevice[0].ID)

	byUser, err := s.FindActiveByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 2) // r1 and r3; cancelled r2 excluded

	ranged, err := s.FindByDateRange(ctx, date, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, ranged, 3)
}

func TestMemoryStore_NoShowStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	r1 := newMemoryReservation(t, "r1", "u1", "d1", date, 14, 16)
	approved, err := r1.Approve(date)
	require.NoError(t, err)
	noShow, err := approved.MarkAsNoShow(date)
	require.NoError(t, err)
	require.NoError(t, s.SaveReservation(ctx, noShow))
	require.NoError(t, s.SaveReservation(ctx, newMemoryReservation(t, "r2", "u2", "d1", date, 18, 20)))

	total, noShows, err := s.NoShowStats(ctx, date, date)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), noShows)
}

func TestMemoryStore_Devices(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.PutDevice(model.Device{ID: "d1", DisplayName: "PS5 #1", Bookable: true})

	dev, err := s.FindDeviceByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "PS5 #1", dev.DisplayName)

	_, err = s.FindDeviceByID(ctx, "d9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedDeviceRepository(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutDevice(model.Device{ID: "d1", DisplayName: "PS5 #1", Bookable: true})

	cached := NewCachedDeviceRepository(s, time.Minute)

	dev, err := cached.FindDeviceByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "PS5 #1", dev.DisplayName)

	// A stale name is served from cache until invalidated.
	s.PutDevice(model.Device{ID: "d1", DisplayName: "PS5 #1 (renamed)", Bookable: true})
	dev, err = cached.FindDeviceByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "PS5 #1", dev.DisplayName)

	cached.Invalidate("d1")
	dev, err = cached.FindDeviceByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "PS5 #1 (renamed)", dev.DisplayName)

	// Misses are not cached.
	_, err = cached.FindDeviceByID(ctx, "d9")
	assert.ErrorIs(t, err, ErrNotFound)
}
