// Package notify publishes domain events to RabbitMQ. Publishing is
// best-effort: errors are logged and returned so callers can ignore
// failures without interrupting the main request flow.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ads360.org/internal/obs"
)

// Event is one domain event on the wire.
type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Event types emitted by the campaign and finance flows.
const (
	EventCampaignCreated  = "campaign.created"
	EventDistributionPaid = "distribution.paid"
	EventInvoiceIssued    = "invoice.issued"
	EventProofReviewed    = "proof.reviewed"
)

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// AMQPPublisher writes events to a durable queue on the default exchange.
// Each publish opens a short-lived channel on the shared connection.
type AMQPPublisher struct {
	conn  *amqp.Connection
	queue string
}

// DialAMQP connects to the broker and declares the queue.
func DialAMQP(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	p := &AMQPPublisher{conn: conn, queue: queue}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return p, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		obs.Logger().Printf("notify: marshal event failed: %v", err)
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		obs.Logger().Printf("notify: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		obs.Logger().Printf("notify: publish %s failed: %v", event.Type, err)
		return err
	}
	return nil
}

func (p *AMQPPublisher) Close() error { return p.conn.Close() }
