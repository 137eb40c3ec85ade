package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"smshub/internal/domain"
)

// Consumer implements ports.MessageConsumer using RabbitMQ.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *slog.Logger
}

// NewConsumer dials RabbitMQ, declares topology, and returns a Consumer.
func NewConsumer(amqpURL string, log *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// One in-flight delivery per consumer keeps worker concurrency explicit
	//.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, channel: ch, log: log}, nil
}

// Consume registers a consumer on the queue and calls handler for each
// delivery, acknowledging only if the handler returns nil. It blocks until
// ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, event domain.QueuedEvent) error) error {
	deliveries, err := c.channel.Consume(
		queueName,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			var event domain.QueuedEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				c.log.Error("unmarshal queued event", "error", err)
				d.Nack(false, false) // dead-letter; don't requeue malformed payloads
				continue
			}

			if err := handler(ctx, event); err != nil {
				c.log.Error("handler error", "message_id", event.MessageID, "error", err)
				d.Nack(false, true) // requeue for retry
				continue
			}

			d.Ack(false)
		}
	}
}

// Close cleanly shuts down the channel and connection.
func (c *Consumer) Close() {
	c.channel.Close()
	c.conn.Close()
}
