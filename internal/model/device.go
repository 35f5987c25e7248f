package model

import "time"

// Device represents a rentable machine on the floor (console, PC, racing rig).
type Device struct {
	ID          string `gorm:"primaryKey;size:64"`
	DisplayName string `gorm:"size:256;not null"`
	DeviceType  string `gorm:"size:64"`
	Bookable    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
