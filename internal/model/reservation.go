package model

import "time"

// Reservation is the persisted form of a reservation. Date is the calendar
// day of the slot; StartHour/EndHour keep the stored wall-clock hours (end may
// exceed 24 for past-midnight slots).
type Reservation struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:64;not null;index"`
	DeviceID  string    `gorm:"size:64;not null;index:idx_reservations_device_date"`
	Date      time.Time `gorm:"not null;index:idx_reservations_device_date"`
	StartHour int       `gorm:"not null"`
	EndHour   int       `gorm:"not null"`
	Status    string    `gorm:"size:32;not null;index"`
	Number    string    `gorm:"size:32;not null"`

	CheckedInAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}
