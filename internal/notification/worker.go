package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"gamecenter-reservation-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers that push "device available" messages
// to users subscribed to a device. Outbound sends are throttled so a popular
// device does not flood the push gateway.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	limiter *rate.Limiter
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, r rate.Limit, burst int) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		limiter: rate.NewLimiter(r, burst),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case deviceID := <-wp.jobs:
			log.Printf("Worker %d processing device %s", id, deviceID)
			wp.sendNotificationsForDevice(ctx, deviceID)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(deviceID string) {
	wp.jobs <- deviceID
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

// DeviceStatusChanged implements EventNotifier. Only the return to available
// is pushed to subscribers; intermediate states are not interesting to a user
// waiting for a device.
func (wp *WorkerPool) DeviceStatusChanged(deviceID, status string) {
	if status != "available" {
		return
	}
	wp.Dispatch(deviceID)
}

// ReservationCancelled implements EventNotifier. Cancellations free the
// device, so subscribers hear about it through the status change instead.
func (wp *WorkerPool) ReservationCancelled(string, string, string, string) {}

// sendNotificationsForDevice fetches subscriptions and sends notifications for a given device.
func (wp *WorkerPool) sendNotificationsForDevice(ctx context.Context, deviceID string) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_device_mapping sdm ON sdm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sdm.device_id = ?", deviceID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for device %s: %v", deviceID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for device %s", len(subscriptions), deviceID)

	var device model.Device
	deviceLabel := deviceID
	if err := wp.db.WithContext(ctx).
		Select("display_name").
		First(&device, "id = ?", deviceID).Error; err != nil {
		log.Printf("Error fetching device %s: %v", deviceID, err)
	} else if device.DisplayName != "" {
		deviceLabel = device.DisplayName
	}

	message := fmt.Sprintf("기기 %s 이용 가능!", deviceLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	if err := wp.limiter.Wait(ctx); err != nil {
		return
	}

	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
