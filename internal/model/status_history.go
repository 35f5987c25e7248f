package model

import "time"

// DeviceStatusHistory is the cold-table log of device status transitions,
// consumed by dashboards and the monthly settlement batch.
type DeviceStatusHistory struct {
	ID            int64     `gorm:"autoIncrement;primaryKey"`
	DeviceID      string    `gorm:"size:64;not null;index"`
	Status        string    `gorm:"size:32;not null"`
	ReservationID string    `gorm:"size:64"`
	UserID        string    `gorm:"size:64"`
	ObservedAt    time.Time `gorm:"not null;index"`
}
