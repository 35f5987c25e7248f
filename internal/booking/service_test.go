package booking

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamecenter-reservation-backend/internal/clock"
	"gamecenter-reservation-backend/internal/devstate"
	"gamecenter-reservation-backend/internal/model"
	"gamecenter-reservation-backend/internal/noshow"
	"gamecenter-reservation-backend/internal/reservation"
	"gamecenter-reservation-backend/internal/store"
)

var seoul = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		panic(err)
	}
	return loc
}()

type cancelEvent struct {
	reservationID, deviceID, userID, reason string
}

// recordingNotifier captures cancellation events for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	cancelled []cancelEvent
}

func (n *recordingNotifier) DeviceStatusChanged(deviceID, status string) {}

func (n *recordingNotifier) ReservationCancelled(reservationID, deviceID, userID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, cancelEvent{reservationID, deviceID, userID, reason})
}

type fixture struct {
	svc      *Service
	mem      *store.MemoryStore
	clk      *clock.FakeClock
	mgr      *devstate.Manager
	notifier *recordingNotifier
}

// newFixture pins the clock to 2026-03-09 12:00 KST and seeds two bookable
// devices plus one that is not.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFakeClock(time.Date(2026, 3, 9, 12, 0, 0, 0, seoul))
	mem := store.NewMemoryStore()
	mem.PutDevice(model.Device{ID: "pc-01", DisplayName: "PC 1", DeviceType: "pc", Bookable: true})
	mem.PutDevice(model.Device{ID: "pc-02", DisplayName: "PC 2", DeviceType: "pc", Bookable: true})
	mem.PutDevice(model.Device{ID: "console-99", DisplayName: "Broken console", DeviceType: "console", Bookable: false})

	notifier := &recordingNotifier{}
	mgr := devstate.NewManager(clk, notifier, mem)
	t.Cleanup(mgr.Shutdown)

	det := noshow.NewDetector(mem, clk, noshow.Policy{
		InteractiveGrace: 30 * time.Minute,
		SweepGrace:       60 * time.Minute,
		BoundaryHour:     5,
	}, mgr)

	svc := NewService(mem, mem, mgr, det, notifier, clk, Policy{AdvanceNotice: 24 * time.Hour})
	return &fixture{svc: svc, mem: mem, clk: clk, mgr: mgr, notifier: notifier}
}

var (
	alice = Actor{ID: "alice", Role: RoleMember}
	bob   = Actor{ID: "bob", Role: RoleMember}
	staff = Actor{ID: "staff", Role: RoleAdmin}
)

// tomorrowSlot books pc-01 for 2026-03-10 14:00-16:00, comfortably past the
// advance notice from the fixture clock.
func tomorrowSlot() CreateInput {
	return CreateInput{
		DeviceID: "pc-01",
		Date:     time.Date(2026, 3, 10, 0, 0, 0, 0, seoul),
		Slot:     reservation.TimeSlot{StartHour: 14, EndHour: 16},
	}
}

func TestService_CreateReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)

	assert.Equal(t, reservation.StatusPending, r.Status)
	assert.Equal(t, "alice", r.UserID)
	assert.True(t, strings.HasPrefix(r.Number, "GP-20260310-"), "number %q", r.Number)

	stored, err := f.mem.FindReservationByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, stored)
}

func TestService_CreateReservation_Validation(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		prepare func(f *fixture)
		input   func() CreateInput
		wantErr error
	}{
		{
			name:    "missing actor",
			actor:   Actor{},
			input:   tomorrowSlot,
			wantErr: ErrPermissionDenied,
		},
		{
			name:  "unknown device",
			actor: alice,
			input: func() CreateInput {
				in := tomorrowSlot()
				in.DeviceID = "pc-404"
				return in
			},
			wantErr: store.ErrNotFound,
		},
		{
			name:  "device not bookable",
			actor: alice,
			input: func() CreateInput {
				in := tomorrowSlot()
				in.DeviceID = "console-99"
				return in
			},
			wantErr: ErrDeviceUnavailable,
		},
		{
			name:  "device under maintenance",
			actor: alice,
			prepare: func(f *fixture) {
				f.mgr.SetMaintenance("pc-01")
			},
			input:   tomorrowSlot,
			wantErr: ErrDeviceUnavailable,
		},
		{
			name:  "advance notice not met",
			actor: alice,
			input: func() CreateInput {
				in := tomorrowSlot()
				// Same day as the fixture clock.
				in.Date = time.Date(2026, 3, 9, 0, 0, 0, 0, seoul)
				return in
			},
			wantErr: ErrAdvanceNotice,
		},
		{
			name:  "invalid slot",
			actor: alice,
			input: func() CreateInput {
				in := tomorrowSlot()
				in.Slot = reservation.TimeSlot{StartHour: 16, EndHour: 14}
				return in
			},
			wantErr: reservation.ErrInvalidTimeSlot,
		},
		{
			name:  "device slot conflict",
			actor: alice,
			prepare: func(f *fixture) {
				_, err := f.svc.CreateReservation(context.Background(), bob, tomorrowSlot())
				require.NoError(t, err)
			},
			input: func() CreateInput {
				in := tomorrowSlot()
				in.Slot = reservation.TimeSlot{StartHour: 15, EndHour: 17}
				return in
			},
			wantErr: ErrTimeSlotConflict,
		},
		{
			name:  "user double booking across devices",
			actor: alice,
			prepare: func(f *fixture) {
				_, err := f.svc.CreateReservation(context.Background(), alice, tomorrowSlot())
				require.NoError(t, err)
			},
			input: func() CreateInput {
				in := tomorrowSlot()
				in.DeviceID = "pc-02"
				in.Slot = reservation.TimeSlot{StartHour: 15, EndHour: 17}
				return in
			},
			wantErr: ErrUserDoubleBooking,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.prepare != nil {
				tt.prepare(f)
			}
			_, err := f.svc.CreateReservation(context.Background(), tt.actor, tt.input())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_ApproveReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)

	_, err = f.svc.ApproveReservation(ctx, alice, r.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	approved, err := f.svc.ApproveReservation(ctx, staff, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusApproved, approved.Status)

	// Approval places a hold on the device.
	status := f.mgr.Status("pc-01")
	assert.Equal(t, devstate.StatusReserved, status.Status)
	assert.Equal(t, r.ID, status.CurrentReservationID)
}

func TestService_RejectReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)

	_, err = f.svc.RejectReservation(ctx, alice, r.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	rejected, err := f.svc.RejectReservation(ctx, staff, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusRejected, rejected.Status)
	assert.Equal(t, devstate.StatusAvailable, f.mgr.Status("pc-01").Status)
}

func TestService_CancelReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)
	_, err = f.svc.ApproveReservation(ctx, staff, r.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelReservation(ctx, bob, r.ID, "changed plans")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	cancelled, err := f.svc.CancelReservation(ctx, alice, r.ID, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCancelled, cancelled.Status)

	// The hold placed at approval is gone and the event went out.
	assert.Equal(t, devstate.StatusAvailable, f.mgr.Status("pc-01").Status)
	require.Len(t, f.notifier.cancelled, 1)
	assert.Equal(t, cancelEvent{r.ID, "pc-01", "alice", "changed plans"}, f.notifier.cancelled[0])
}

func TestService_CancelReservation_AfterCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.checkedInReservation(t)

	_, err := f.svc.CancelReservation(ctx, alice, r.ID, "too late")
	assert.ErrorIs(t, err, reservation.ErrInvalidStateTransition)
}

// checkedInReservation drives a reservation through create, approve and
// check-in, advancing the clock past the slot start.
func (f *fixture) checkedInReservation(t *testing.T) reservation.Reservation {
	t.Helper()
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)
	_, err = f.svc.ApproveReservation(ctx, staff, r.ID)
	require.NoError(t, err)

	f.clk.Set(time.Date(2026, 3, 10, 14, 5, 0, 0, seoul))
	checked, err := f.svc.CheckIn(ctx, alice, r.ID)
	require.NoError(t, err)
	return checked
}

func TestService_CheckIn(t *testing.T) {
	f := newFixture(t)

	checked := f.checkedInReservation(t)
	assert.Equal(t, reservation.StatusCheckedIn, checked.Status)
	require.NotNil(t, checked.CheckedInAt)
	assert.Equal(t, f.clk.Now(), *checked.CheckedInAt)

	// The slot already opened, so the rental starts immediately.
	status := f.mgr.Status("pc-01")
	assert.Equal(t, devstate.StatusInUse, status.Status)
	assert.Equal(t, checked.ID, status.CurrentReservationID)
}

func TestService_CheckIn_BeforeSlotHoldsDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)
	_, err = f.svc.ApproveReservation(ctx, staff, r.ID)
	require.NoError(t, err)

	// Arriving half an hour early keeps the device reserved.
	f.clk.Set(time.Date(2026, 3, 10, 13, 30, 0, 0, seoul))
	checked, err := f.svc.CheckIn(ctx, alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCheckedIn, checked.Status)
	assert.Equal(t, devstate.StatusReserved, f.mgr.Status("pc-01").Status)
}

func TestService_CheckIn_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)

	// Pending reservations cannot be checked in.
	_, err = f.svc.CheckIn(ctx, alice, r.ID)
	assert.ErrorIs(t, err, reservation.ErrInvalidStateTransition)

	_, err = f.svc.ApproveReservation(ctx, staff, r.ID)
	require.NoError(t, err)

	_, err = f.svc.CheckIn(ctx, bob, r.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	f.mgr.SetMaintenance("pc-01")
	_, err = f.svc.CheckIn(ctx, alice, r.ID)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	stored, err := f.mem.FindReservationByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusApproved, stored.Status)
}

func TestService_CompleteReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.checkedInReservation(t)

	completed, err := f.svc.CompleteReservation(ctx, alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCompleted, completed.Status)

	// Early checkout frees the device before the slot ends.
	assert.Equal(t, devstate.StatusAvailable, f.mgr.Status("pc-01").Status)
}

func TestService_MarkAsNoShow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)
	_, err = f.svc.ApproveReservation(ctx, staff, r.ID)
	require.NoError(t, err)

	_, err = f.svc.MarkAsNoShow(ctx, alice, r.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Ten minutes after the slot opened is still within the grace period.
	f.clk.Set(time.Date(2026, 3, 10, 14, 10, 0, 0, seoul))
	_, err = f.svc.MarkAsNoShow(ctx, staff, r.ID)
	assert.ErrorIs(t, err, noshow.ErrTooEarly)

	f.clk.Set(time.Date(2026, 3, 10, 14, 31, 0, 0, seoul))
	marked, err := f.svc.MarkAsNoShow(ctx, staff, r.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusNoShow, marked.Status)

	// The hold placed at approval is dropped.
	assert.Equal(t, devstate.StatusAvailable, f.mgr.Status("pc-01").Status)
}

func TestService_ExtendRental(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.checkedInReservation(t)

	extended, err := f.svc.ExtendRental(ctx, alice, r.ID, 18)
	require.NoError(t, err)
	assert.Equal(t, 18, extended.Slot.EndHour)

	stored, err := f.mem.FindReservationByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, stored.Slot.EndHour)

	status := f.mgr.Status("pc-01")
	require.NotNil(t, status.EndTime)
	assert.True(t, status.EndTime.Equal(time.Date(2026, 3, 10, 18, 0, 0, 0, seoul)), "end time %s", status.EndTime)
}

func TestService_ExtendRental_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)

	// Only running rentals can be extended.
	_, err = f.svc.ExtendRental(ctx, alice, r.ID, 18)
	assert.ErrorIs(t, err, reservation.ErrInvalidStateTransition)
}

func TestService_ExtendRental_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Bob takes the following slot on the same device.
	next := tomorrowSlot()
	next.Slot = reservation.TimeSlot{StartHour: 16, EndHour: 18}
	_, err := f.svc.CreateReservation(ctx, bob, next)
	require.NoError(t, err)

	r := f.checkedInReservation(t)

	_, err = f.svc.ExtendRental(ctx, alice, r.ID, 17)
	assert.ErrorIs(t, err, ErrTimeSlotConflict)

	// Shrinking is not extending.
	_, err = f.svc.ExtendRental(ctx, alice, r.ID, 15)
	assert.ErrorIs(t, err, reservation.ErrInvalidTimeSlot)
}

func TestService_Queries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.CreateReservation(ctx, alice, tomorrowSlot())
	require.NoError(t, err)

	_, err = f.svc.GetReservation(ctx, bob, r.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	got, err := f.svc.GetReservation(ctx, alice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = f.svc.ListUserReservations(ctx, bob, "alice")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	mine, err := f.svc.ListUserReservations(ctx, alice, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	schedule, err := f.svc.DeviceSchedule(ctx, "pc-01", r.Date)
	require.NoError(t, err)
	assert.Len(t, schedule, 1)

	_, err = f.svc.PendingCheckIns(ctx, alice)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.NoShowStats(ctx, alice, r.Date, r.Date)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	stats, err := f.svc.NoShowStats(ctx, staff, r.Date, r.Date)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}
