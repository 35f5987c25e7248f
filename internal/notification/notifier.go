// Package notification carries status changes out of the engine: web push to
// subscribed users and AMQP events for downstream consumers. All delivery is
// fire-and-forget; a failed notification never rolls back engine state.
package notification

import "log"

// EventNotifier receives status-change notifications from the engine.
type EventNotifier interface {
	DeviceStatusChanged(deviceID, status string)
	ReservationCancelled(reservationID, deviceID, userID, reason string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) DeviceStatusChanged(string, string)                 {}
func (NopNotifier) ReservationCancelled(string, string, string, string) {}

// MultiNotifier fans notifications out to several notifiers.
type MultiNotifier []EventNotifier

func (m MultiNotifier) DeviceStatusChanged(deviceID, status string) {
	for _, n := range m {
		n.DeviceStatusChanged(deviceID, status)
	}
}

func (m MultiNotifier) ReservationCancelled(reservationID, deviceID, userID, reason string) {
	for _, n := range m {
		n.ReservationCancelled(reservationID, deviceID, userID, reason)
	}
}

// LogNotifier writes notifications to the process log. It backs development
// runs where neither push nor AMQP is configured.
type LogNotifier struct{}

func (LogNotifier) DeviceStatusChanged(deviceID, status string) {
	log.Printf("device %s status changed to %s", deviceID, status)
}

func (LogNotifier) ReservationCancelled(reservationID, deviceID, userID, reason string) {
	log.Printf("reservation %s (device %s, user %s) cancelled: %s", reservationID, deviceID, userID, reason)
}
