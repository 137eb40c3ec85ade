package ports

import (
	"context"

	"smshub/internal/apperr"
	"smshub/internal/domain"
)

// ChannelResult is the outcome of a channel send attempt. On failure, Kind
// classifies the failure so the delivery worker can decide whether to let
// the queue redeliver the event (apperr.Kind.Transient) without depending
// on channel-specific error types.
type ChannelResult struct {
	OK           bool
	ExternalID   string
	ErrorMessage string
	Kind         apperr.Kind
}

// MessageChannel abstracts an outbound delivery mechanism: HTTP provider or
// SMPP telco link.
type MessageChannel interface {
	Send(ctx context.Context, event domain.QueuedEvent) ChannelResult
}
