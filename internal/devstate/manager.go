// Package devstate tracks the physical availability of every device and
// drives it from reservation events. Deferred transitions (start of rental,
// end of rental) run on per-device timers; all mutation of a device's record
// happens under that device's lock, and a timer that fires late is detected
// by comparing the bound reservation id, not by trusting cancellation.
package devstate

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"gamecenter-reservation-backend/internal/clock"
	"gamecenter-reservation-backend/internal/model"
	"gamecenter-reservation-backend/internal/notification"
)

// Status is the physical availability of a device.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusReserved    Status = "reserved"
	StatusInUse       Status = "in_use"
	StatusMaintenance Status = "maintenance"
)

var (
	// ErrNotInUse is returned when extending a rental on a device that is
	// not currently in use.
	ErrNotInUse = errors.New("device is not in use")
	// ErrMaintenance is returned when a reservation-driven transition hits a
	// device under maintenance.
	ErrMaintenance = errors.New("device is under maintenance")
)

// DeviceStatus is a snapshot of one device's state.
type DeviceStatus struct {
	DeviceID             string     `json:"device_id"`
	Status               Status     `json:"status"`
	CurrentReservationID string     `json:"current_reservation_id,omitempty"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	UserID               string     `json:"user_id,omitempty"`
}

// HistoryAppender receives the cold-table log of status transitions. Append
// failures are logged and swallowed; history is a non-critical side effect.
type HistoryAppender interface {
	AppendStatusHistory(ctx context.Context, h model.DeviceStatusHistory) error
}

// deviceEntry is the per-device record plus its timers. All fields are
// guarded by mu; at most one start and one end timer are live at any instant.
type deviceEntry struct {
	mu         sync.Mutex
	status     DeviceStatus
	startTimer *time.Timer
	endTimer   *time.Timer
}

// Manager owns every device status record. Entries are created implicitly
// (default available) the first time a device is touched.
type Manager struct {
	mu      sync.Mutex
	devices map[string]*deviceEntry

	clk      clock.Clock
	notifier notification.EventNotifier
	history  HistoryAppender
}

// NewManager creates a Manager. history may be nil when no cold table is
// configured.
func NewManager(clk clock.Clock, notifier notification.EventNotifier, history HistoryAppender) *Manager {
	if notifier == nil {
		notifier = notification.NopNotifier{}
	}
	return &Manager{
		devices:  make(map[string]*deviceEntry),
		clk:      clk,
		notifier: notifier,
		history:  history,
	}
}

func (m *Manager) entry(deviceID string) *deviceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.devices[deviceID]
	if !ok {
		e = &deviceEntry{status: DeviceStatus{DeviceID: deviceID, Status: StatusAvailable}}
		m.devices[deviceID] = e
	}
	return e
}

// Status returns the device's snapshot. Devices never touched report
// available.
func (m *Manager) Status(deviceID string) DeviceStatus {
	e := m.entry(deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// AllStatuses returns a snapshot of every tracked device.
func (m *Manager) AllStatuses() []DeviceStatus {
	m.mu.Lock()
	entries := make([]*deviceEntry, 0, len(m.devices))
	for _, e := range m.devices {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]DeviceStatus, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.status)
		e.mu.Unlock()
	}
	return out
}

// emit reports a transition to the notifier and the history sink. Always
// called after the device lock is released so a slow consumer cannot stall
// timer callbacks, and called from exactly one goroutine per transition so
// events for a device keep their order.
func (m *Manager) emit(snaps ...DeviceStatus) {
	for _, s := range snaps {
		m.notifier.DeviceStatusChanged(s.DeviceID, string(s.Status))
		if m.history == nil {
			continue
		}
		h := model.DeviceStatusHistory{
			DeviceID:      s.DeviceID,
			Status:        string(s.Status),
			ReservationID: s.CurrentReservationID,
			UserID:        s.UserID,
			ObservedAt:    m.clk.Now(),
		}
		if err := m.history.AppendStatusHistory(context.Background(), h); err != nil {
			log.Printf("Warning: failed to record status history for device %s: %v", s.DeviceID, err)
		}
	}
}

// clearTimersLocked stops both timers. Stopping is best effort; a callback
// that already fired will find the binding changed and no-op.
func clearTimersLocked(e *deviceEntry) {
	if e.startTimer != nil {
		e.startTimer.Stop()
		e.startTimer = nil
	}
	if e.endTimer != nil {
		e.endTimer.Stop()
		e.endTimer = nil
	}
}

// Reserve binds the device to an approved reservation without scheduling
// timers. Used for pre-check-in holds.
func (m *Manager) Reserve(deviceID, reservationID string, startTime time.Time, userID string) error {
	e := m.entry(deviceID)
	e.mu.Lock()

	if e.status.Status == StatusMaintenance {
		e.mu.Unlock()
		return ErrMaintenance
	}

	start := startTime
	e.status = DeviceStatus{
		DeviceID:             deviceID,
		Status:               StatusReserved,
		CurrentReservationID: reservationID,
		StartTime:            &start,
		UserID:               userID,
	}
	snap := e.status
	e.mu.Unlock()

	log.Printf("Device %s reserved for reservation %s", deviceID, reservationID)
	m.emit(snap)
	return nil
}

// CheckIn handles a customer check-in. If the rental window has already
// started the device goes in_use immediately and an end timer is armed;
// otherwise the device stays reserved and a start timer performs the in_use
// transition when the window opens. Pre-existing timers are superseded.
func (m *Manager) CheckIn(deviceID, reservationID string, startTime, endTime time.Time, userID string) error {
	e := m.entry(deviceID)
	e.mu.Lock()

	if e.status.Status == StatusMaintenance {
		e.mu.Unlock()
		return ErrMaintenance
	}

	clearTimersLocked(e)

	now := m.clk.Now()
	if !startTime.After(now) {
		snaps := m.startRentalLocked(e, deviceID, reservationID, endTime, userID)
		e.mu.Unlock()
		m.emit(snaps...)
		return nil
	}

	// Checked in early: hold the device and let the start timer open the
	// rental.
	start := startTime
	end := endTime
	e.status = DeviceStatus{
		DeviceID:             deviceID,
		Status:               StatusReserved,
		CurrentReservationID: reservationID,
		StartTime:            &start,
		EndTime:              &end,
		UserID:               userID,
	}
	snap := e.status
	e.startTimer = time.AfterFunc(startTime.Sub(now), func() {
		m.onStartTimer(deviceID, reservationID, endTime, userID)
	})
	e.mu.Unlock()

	log.Printf("Device %s held for reservation %s; rental starts at %s", deviceID, reservationID, startTime.Format(time.RFC3339))
	m.emit(snap)
	return nil
}

// onStartTimer fires when the rental window opens. The binding is re-checked
// under the lock: a cancel or manual release that raced the timer wins.
func (m *Manager) onStartTimer(deviceID, reservationID string, endTime time.Time, userID string) {
	e := m.entry(deviceID)
	e.mu.Lock()

	if e.status.CurrentReservationID != reservationID || e.status.Status != StatusReserved {
		e.mu.Unlock()
		return
	}
	e.startTimer = nil
	snaps := m.startRentalLocked(e, deviceID, reservationID, endTime, userID)
	e.mu.Unlock()
	m.emit(snaps...)
}

// startRentalLocked transitions to in_use and arms the end timer, returning
// the snapshots to emit once the lock is released. Caller holds e.mu.
func (m *Manager) startRentalLocked(e *deviceEntry, deviceID, reservationID string, endTime time.Time, userID string) []DeviceStatus {
	now := m.clk.Now()
	start := now
	end := endTime
	e.status = DeviceStatus{
		DeviceID:             deviceID,
		Status:               StatusInUse,
		CurrentReservationID: reservationID,
		StartTime:            &start,
		EndTime:              &end,
		UserID:               userID,
	}
	snaps := []DeviceStatus{e.status}
	log.Printf("Device %s rental started for reservation %s", deviceID, reservationID)

	if endTime.After(now) {
		e.endTimer = time.AfterFunc(endTime.Sub(now), func() {
			m.AutoRelease(deviceID, reservationID)
		})
		return snaps
	}

	// Rental window already over (restore after downtime): release on the
	// spot.
	return append(snaps, m.releaseLocked(e, deviceID))
}

// AutoRelease returns the device to available, but only while it is still
// bound to the expected reservation. A stale end timer firing after a manual
// release or after a new reservation took the device is a no-op.
func (m *Manager) AutoRelease(deviceID, reservationID string) {
	e := m.entry(deviceID)
	e.mu.Lock()

	if e.status.CurrentReservationID != reservationID {
		e.mu.Unlock()
		return
	}
	snap := m.releaseLocked(e, deviceID)
	e.mu.Unlock()

	log.Printf("Device %s auto-released from reservation %s", deviceID, reservationID)
	m.emit(snap)
}

// ManualRelease forces the device to available regardless of binding, for
// early checkout.
func (m *Manager) ManualRelease(deviceID string) {
	e := m.entry(deviceID)
	e.mu.Lock()
	snap := m.releaseLocked(e, deviceID)
	e.mu.Unlock()

	log.Printf("Device %s manually released", deviceID)
	m.emit(snap)
}

// releaseLocked clears the binding and timers. Caller holds e.mu.
func (m *Manager) releaseLocked(e *deviceEntry, deviceID string) DeviceStatus {
	clearTimersLocked(e)
	e.status = DeviceStatus{DeviceID: deviceID, Status: StatusAvailable}
	return e.status
}

// ExtendRental reschedules the end of an active rental. The old end timer is
// stopped under the lock and a fresh one armed for the new instant.
func (m *Manager) ExtendRental(deviceID string, newEndTime time.Time) error {
	e := m.entry(deviceID)
	e.mu.Lock()

	if e.status.Status != StatusInUse {
		e.mu.Unlock()
		return ErrNotInUse
	}

	if e.endTimer != nil {
		e.endTimer.Stop()
		e.endTimer = nil
	}

	end := newEndTime
	e.status.EndTime = &end
	snap := e.status

	reservationID := e.status.CurrentReservationID
	now := m.clk.Now()
	if newEndTime.After(now) {
		e.endTimer = time.AfterFunc(newEndTime.Sub(now), func() {
			m.AutoRelease(deviceID, reservationID)
		})
	}
	e.mu.Unlock()

	log.Printf("Device %s rental extended to %s", deviceID, newEndTime.Format(time.RFC3339))
	m.emit(snap)
	return nil
}

// SetMaintenance takes the device out of service, pre-empting any scheduled
// transitions.
func (m *Manager) SetMaintenance(deviceID string) {
	e := m.entry(deviceID)
	e.mu.Lock()
	clearTimersLocked(e)
	e.status = DeviceStatus{DeviceID: deviceID, Status: StatusMaintenance}
	snap := e.status
	e.mu.Unlock()

	log.Printf("Device %s set to maintenance", deviceID)
	m.emit(snap)
}

// ReleaseMaintenance puts the device back in service.
func (m *Manager) ReleaseMaintenance(deviceID string) {
	e := m.entry(deviceID)
	e.mu.Lock()

	if e.status.Status != StatusMaintenance {
		e.mu.Unlock()
		return
	}
	e.status = DeviceStatus{DeviceID: deviceID, Status: StatusAvailable}
	snap := e.status
	e.mu.Unlock()

	log.Printf("Device %s released from maintenance", deviceID)
	m.emit(snap)
}

// Shutdown stops every timer. Called by the host during graceful
// termination; persisted reservations let Restore rebuild the schedule on
// the next start.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*deviceEntry, 0, len(m.devices))
	for _, e := range m.devices {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		clearTimersLocked(e)
		e.mu.Unlock()
	}
	log.Printf("Device status manager stopped; %d devices parked", len(entries))
}
