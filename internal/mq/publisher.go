package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DecisionEvent is published after a reviewer approves or rejects a record.
// Approved events are what the ledger sync consumes.
type DecisionEvent struct {
	RecordID       string          `json:"record_id"`
	Decision       string          `json:"decision"`
	Sequence       uint64          `json:"sequence"`
	SourceImageRef string          `json:"source_image_ref"`
	Payload        json.RawMessage `json:"payload"`
	DecidedAt      time.Time       `json:"decided_at"`
}

// Publisher handles decision publishing to RabbitMQ
type Publisher struct {
	mu            sync.Mutex
	channel       *amqp.Channel
	exchange      string
	routingPrefix string
	logger        *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange, routingPrefix string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("[RABBITMQ] failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("[RABBITMQ] failed to declare exchange: %w", err)
	}

	return &Publisher{
		channel:       ch,
		exchange:      exchange,
		routingPrefix: routingPrefix,
		logger:        logger,
	}, nil
}

// RoutingKey returns the routing key for a decision, e.g. invoice.review.approved
func RoutingKey(prefix, decision string) string {
	if prefix == "" {
		return decision
	}
	return prefix + "." + decision
}

// PublishDecision publishes a review decision event
func (p *Publisher) PublishDecision(ctx context.Context, event DecisionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal decision event: %w", err)
	}

	routingKey := RoutingKey(p.routingPrefix, event.Decision)

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s-%d", event.RecordID, event.Sequence),
			Timestamp:    event.DecidedAt,
		},
	)
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("[RABBITMQ] failed to publish decision: %w", err)
	}

	p.logger.Debug("published review decision",
		zap.String("routing_key", routingKey),
		zap.String("record_id", event.RecordID),
		zap.String("decision", event.Decision),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
