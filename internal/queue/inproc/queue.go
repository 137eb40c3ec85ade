// Package inproc provides a buffered-channel queue transport used in the
// "development" environment in place of RabbitMQ, implementing the same ports.MessagePublisher/MessageConsumer
// shape as internal/queue/rabbitmq.
package inproc

import (
	"context"
	"fmt"
	"log/slog"

	"smshub/internal/domain"
)

const defaultCapacity = 1024

// Queue is an in-process, best-effort queue transport. An event whose
// handler returns an error is not redelivered (see Consume).
type Queue struct {
	events chan domain.QueuedEvent
	log    *slog.Logger
}

// New builds a Queue with a bounded internal buffer.
func New(log *slog.Logger) *Queue {
	return &Queue{
		events: make(chan domain.QueuedEvent, defaultCapacity),
		log:    log,
	}
}

// Publish enqueues event, blocking if the buffer is full or ctx is
// cancelled first.
func (q *Queue) Publish(ctx context.Context, event domain.QueuedEvent) error {
	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume calls handler for each queued event until ctx is cancelled. A
// handler error is logged and the event dropped — there is no broker to
// requeue to in this transport, so it is a development convenience rather
// than a durability guarantee.
func (q *Queue) Consume(ctx context.Context, handler func(ctx context.Context, event domain.QueuedEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-q.events:
			if !ok {
				return fmt.Errorf("in-process queue closed")
			}
			if err := handler(ctx, event); err != nil {
				q.log.Error("in-process queue handler error", "message_id", event.MessageID, "error", err)
			}
		}
	}
}

// Close releases the internal buffer.
func (q *Queue) Close() {
	close(q.events)
}
