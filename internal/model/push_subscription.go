package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Users subscribe to the devices they want to hear about; subscriptions are
// notified when a device returns to available.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Devices []*Device `gorm:"many2many:subscription_device_mapping;"`
}
