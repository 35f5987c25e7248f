package notification

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeviceStatusEvent is published when a device's availability changes.
type DeviceStatusEvent struct {
	Type       string `json:"type"`
	DeviceID   string `json:"device_id"`
	Status     string `json:"status"`
	ObservedAt string `json:"observed_at"`
}

// ReservationCancelledEvent is published when a reservation is cancelled or
// marked as a no-show.
type ReservationCancelledEvent struct {
	Type          string `json:"type"`
	ReservationID string `json:"reservation_id"`
	DeviceID      string `json:"device_id"`
	UserID        string `json:"user_id"`
	Reason        string `json:"reason"`
	OccurredAt    string `json:"occurred_at"`
}

// AMQPNotifier publishes engine events to a durable RabbitMQ queue. It
// attempts to be robust and to never panic; any error is logged and dropped,
// since event delivery must not interrupt the engine.
type AMQPNotifier struct {
	url   string
	queue string
}

// NewAMQPNotifier creates a publisher for the given broker URL and queue.
func NewAMQPNotifier(url, queue string) *AMQPNotifier {
	return &AMQPNotifier{url: url, queue: queue}
}

// DeviceStatusChanged implements EventNotifier.
func (n *AMQPNotifier) DeviceStatusChanged(deviceID, status string) {
	n.publish(DeviceStatusEvent{
		Type:       "device_status_changed",
		DeviceID:   deviceID,
		Status:     status,
		ObservedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// ReservationCancelled implements EventNotifier.
func (n *AMQPNotifier) ReservationCancelled(reservationID, deviceID, userID, reason string) {
	n.publish(ReservationCancelledEvent{
		Type:          "reservation_cancelled",
		ReservationID: reservationID,
		DeviceID:      deviceID,
		UserID:        userID,
		Reason:        reason,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *AMQPNotifier) publish(event any) {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		n.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
	}
}
