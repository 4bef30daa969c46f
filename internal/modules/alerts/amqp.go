package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"fleettrack/internal/modules/trip"
)

const (
	ExchangeName = "fleet.events"
	queueName    = "trip_transitions"
)

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher fans every transition out to the fleet.events exchange.
type AMQPPublisher struct {
	mu sync.Mutex
	ch Channel
}

// NewAMQPPublisher declares the exchange and a durable queue bound to it.
func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queueName, "", ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	return &AMQPPublisher{ch: ch}, nil
}

func newPublisher(ch Channel) *AMQPPublisher {
	return &AMQPPublisher{ch: ch}
}

type transitionMessage struct {
	EventID   string  `json:"event_id"`
	TripID    string  `json:"trip_id"`
	DriverID  string  `json:"driver_id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	ActorType string  `json:"actor_type"`
	ActorID   string  `json:"actor_id,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Forced    bool    `json:"forced"`
	Distance  float64 `json:"distance_remaining_meters,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

func (p *AMQPPublisher) Notify(ctx context.Context, t trip.Trip, e trip.Event) error {
	msg := transitionMessage{
		EventID:   e.ID,
		TripID:    string(e.TripID),
		DriverID:  string(t.DriverID),
		From:      string(e.From),
		To:        string(e.To),
		ActorType: string(e.ActorType),
		ActorID:   e.ActorID,
		Reason:    e.Reason,
		Forced:    e.Forced,
		Timestamp: e.CreatedAt.UnixMilli(),
	}
	if t.DistanceRemainingMeters != nil {
		msg.Distance = *t.DistanceRemainingMeters
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, ExchangeName, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         "trip." + string(e.To),
		Body:         body,
	})
}
