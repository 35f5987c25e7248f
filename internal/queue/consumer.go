// Package queue contains the background consumer that listens to the
// reservation command queue and executes each command against the booking
// service. It is the daemon's ingress: front-of-house systems enqueue
// commands and read the outcome from the event queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"gamecenter-reservation-backend/internal/booking"
	"gamecenter-reservation-backend/internal/reservation"
)

// Command is one reservation operation submitted through the queue.
type Command struct {
	Action        string `json:"action"`
	ActorID       string `json:"actor_id"`
	Role          string `json:"role"`
	ReservationID string `json:"reservation_id,omitempty"`

	// create only
	DeviceID  string `json:"device_id,omitempty"`
	Date      string `json:"date,omitempty"` // YYYY-MM-DD in the venue timezone
	StartHour int    `json:"start_hour,omitempty"`
	EndHour   int    `json:"end_hour,omitempty"`

	// cancel only
	Reason string `json:"reason,omitempty"`

	// extend only
	NewEndHour int `json:"new_end_hour,omitempty"`
}

// Consumer drives the booking service from an AMQP command queue.
type Consumer struct {
	url       string
	queueName string
	svc       *booking.Service
	loc       *time.Location
}

// NewConsumer creates a Consumer. Dates inside commands are parsed in loc.
func NewConsumer(url, queueName string, svc *booking.Service, loc *time.Location) *Consumer {
	return &Consumer{url: url, queueName: queueName, svc: svc, loc: loc}
}

// Run connects to the broker, declares the command queue (durable), and
// consumes until the context is cancelled. Connection loss triggers a
// reconnect loop with capped exponential backoff; a command that fails is
// rejected without requeue so one poison message cannot wedge the queue.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("command-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := c.consumeLoop(ctx, conn); err != nil {
			if ctx.Err() != nil {
				_ = conn.Close()
				return
			}
			log.Printf("command-consumer: consume loop ended: %v; reconnecting", err)
			_ = conn.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("command-consumer: set QoS failed: %v", err)
	}

	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				log.Printf("command-consumer: handle message failed: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Execute parses and runs a single command. Split out from the delivery loop
// so tests can exercise the dispatch without a broker.
func (c *Consumer) Execute(ctx context.Context, cmd Command) error {
	actor := booking.Actor{ID: cmd.ActorID, Role: booking.Role(cmd.Role)}

	var err error
	switch cmd.Action {
	case "create":
		date, perr := time.ParseInLocation("2006-01-02", cmd.Date, c.loc)
		if perr != nil {
			return fmt.Errorf("invalid date %q: %w", cmd.Date, perr)
		}
		_, err = c.svc.CreateReservation(ctx, actor, booking.CreateInput{
			DeviceID: cmd.DeviceID,
			Date:     date,
			Slot:     reservation.TimeSlot{StartHour: cmd.StartHour, EndHour: cmd.EndHour},
		})
	case "approve":
		_, err = c.svc.ApproveReservation(ctx, actor, cmd.ReservationID)
	case "reject":
		_, err = c.svc.RejectReservation(ctx, actor, cmd.ReservationID)
	case "cancel":
		_, err = c.svc.CancelReservation(ctx, actor, cmd.ReservationID, cmd.Reason)
	case "check_in":
		_, err = c.svc.CheckIn(ctx, actor, cmd.ReservationID)
	case "complete":
		_, err = c.svc.CompleteReservation(ctx, actor, cmd.ReservationID)
	case "no_show":
		_, err = c.svc.MarkAsNoShow(ctx, actor, cmd.ReservationID)
	case "extend":
		_, err = c.svc.ExtendRental(ctx, actor, cmd.ReservationID, cmd.NewEndHour)
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	if err != nil {
		return fmt.Errorf("action %s on %s: %w", cmd.Action, cmd.ReservationID, err)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return c.Execute(ctx, cmd)
}
