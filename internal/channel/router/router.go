// Package router dispatches a queued message to the channel implementation
// named by its ChannelType.
package router

import (
	"context"
	"fmt"

	"smshub/internal/apperr"
	"smshub/internal/domain"
	"smshub/internal/ports"
)

// Router selects a ports.MessageChannel by domain.ChannelType.
type Router struct {
	channels map[domain.ChannelType]ports.MessageChannel
}

// New builds a Router over the given channel implementations.
func New(http, smpp ports.MessageChannel) *Router {
	return &Router{
		channels: map[domain.ChannelType]ports.MessageChannel{
			domain.ChannelHTTP: http,
			domain.ChannelSMPP: smpp,
		},
	}
}

// Send routes event to the channel named by event.ChannelType, matched
// case-insensitively via domain.NormalizeChannelType.
func (r *Router) Send(ctx context.Context, event domain.QueuedEvent) ports.ChannelResult {
	ch, ok := r.channels[domain.NormalizeChannelType(string(event.ChannelType))]
	if !ok {
		return ports.ChannelResult{
			OK:           false,
			ErrorMessage: fmt.Sprintf("unknown channel: %s", event.ChannelType),
			Kind:         apperr.KindValidation,
		}
	}
	return ch.Send(ctx, event)
}
