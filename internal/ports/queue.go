package ports

import (
	"context"

	"smshub/internal/domain"
)

// MessagePublisher publishes queued-message events with at-least-once
// semantics.
type MessagePublisher interface {
	Publish(ctx context.Context, event domain.QueuedEvent) error
}

// MessageConsumer consumes queued-message events with at-least-once
// semantics and automatic redelivery on handler error.
type MessageConsumer interface {
	// Consume blocks until ctx is cancelled or a fatal transport error
	// occurs. handler returning a non-nil error causes redelivery.
	Consume(ctx context.Context, handler func(ctx context.Context, event domain.QueuedEvent) error) error
}
