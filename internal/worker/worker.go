// Package worker implements the delivery worker: it
// consumes queued events, drives the status DAG, and applies the
// per-channel retry policy.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"smshub/internal/domain"
	"smshub/internal/ports"
	"smshub/internal/tenant"
)

// Router abstracts the channel router so the worker doesn't depend on
// internal/channel/router directly.
type Router interface {
	Send(ctx context.Context, event domain.QueuedEvent) ports.ChannelResult
}

// Worker drives one queued event through Processing -> {Sent, Failed}.
type Worker struct {
	repo     ports.MessageRepository
	router   Router
	registry *tenant.Registry
	log      *slog.Logger
}

// New builds a Worker.
func New(repo ports.MessageRepository, router Router, registry *tenant.Registry, log *slog.Logger) *Worker {
	return &Worker{repo: repo, router: router, registry: registry, log: log}
}

// Handle processes one queued event. Returning a non-nil
// error signals the queue transport to redeliver the event; returning nil
// acknowledges it, whether the outcome was success or a terminal failure.
func (w *Worker) Handle(ctx context.Context, event domain.QueuedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// An unhandled panic must never leave a row stuck in Processing
			//: resolve it to Failed with the panic message.
			msg := fmt.Sprintf("worker panic: %v", r)
			_ = w.repo.UpdateStatus(ctx, event.MessageID, ports.StatusUpdate{Status: domain.StatusFailed, ErrorMessage: &msg})
			w.log.Error("worker panic recovered", "message_id", event.MessageID, "panic", r)
			err = nil
		}
	}()

	existing, getErr := w.repo.GetByIDForTenant(ctx, event.MessageID, event.SubscriptionKey)
	if getErr != nil {
		w.log.Warn("worker: message not found, dropping event", "message_id", event.MessageID, "error", getErr)
		return nil
	}
	if existing.Status != domain.StatusQueued && existing.Status != domain.StatusProcessing {
		// Already resolved (Sent/Delivered/Failed) by a prior delivery of
		// this event; ack without reprocessing so externalMessageId stays
		// immutable and Sent is only ever entered once.
		return nil
	}

	if existing.Status != domain.StatusProcessing {
		if updErr := w.repo.UpdateStatus(ctx, event.MessageID, ports.StatusUpdate{Status: domain.StatusProcessing}); updErr != nil {
			return fmt.Errorf("mark processing: %w", updErr)
		}
	}

	result := w.router.Send(ctx, event)

	if result.OK {
		extID := result.ExternalID
		if updErr := w.repo.UpdateStatus(ctx, event.MessageID, ports.StatusUpdate{Status: domain.StatusSent, ExternalMessageID: &extID}); updErr != nil {
			return fmt.Errorf("mark sent: %w", updErr)
		}
		return nil
	}

	maxRetries := w.maxRetriesFor(event)
	if result.Kind.Transient() && existing.RetryCount+1 < maxRetries {
		nextRetry := existing.RetryCount + 1
		if updErr := w.repo.UpdateStatus(ctx, event.MessageID, ports.StatusUpdate{Status: domain.StatusProcessing, RetryCount: &nextRetry}); updErr != nil {
			w.log.Error("worker: failed to record retry count", "message_id", event.MessageID, "error", updErr)
		}
		return fmt.Errorf("transient channel failure, redelivering: %s", result.ErrorMessage)
	}

	errMsg := result.ErrorMessage
	if updErr := w.repo.UpdateStatus(ctx, event.MessageID, ports.StatusUpdate{Status: domain.StatusFailed, ErrorMessage: &errMsg}); updErr != nil {
		return fmt.Errorf("mark failed: %w", updErr)
	}
	return nil
}

func (w *Worker) maxRetriesFor(event domain.QueuedEvent) int {
	t, ok := w.registry.Get(event.SubscriptionKey)
	if !ok {
		return 1
	}
	switch domain.NormalizeChannelType(string(event.ChannelType)) {
	case domain.ChannelHTTP:
		if t.HTTP != nil && t.HTTP.MaxRetries > 0 {
			return t.HTTP.MaxRetries
		}
	case domain.ChannelSMPP:
		if t.SMPP != nil && t.SMPP.FailedMessage.MaxRetries > 0 {
			return t.SMPP.FailedMessage.MaxRetries
		}
	}
	return 1
}
