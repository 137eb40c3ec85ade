// Package ports declares the narrow interfaces the core delivery pipeline
// depends on. Concrete adapters (Postgres, RabbitMQ, gosmpp, ...) live under
// internal/repository, internal/queue, and internal/channel.
package ports

import (
	"context"

	"smshub/internal/domain"

	"github.com/google/uuid"
)

// StatusUpdate carries the fields a status transition may set. Status is
// always written; the pointer fields left nil are not modified.
type StatusUpdate struct {
	Status            domain.Status
	ExternalMessageID *string
	ErrorMessage      *string
	RetryCount        *int
}

// MessageRepository defines persistence operations for messages. All reads are tenant-scoped; writes are idempotent for identical
// (id, status, externalMessageId) tuples.
type MessageRepository interface {
	Insert(ctx context.Context, msg domain.Message) error
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error
	GetByIDForTenant(ctx context.Context, id uuid.UUID, tenantKey string) (*domain.Message, error)
	ListForTenant(ctx context.Context, tenantKey string, statusFilter domain.Status, limit int) ([]domain.Message, error)
	// GetByExternalID looks a message up by its provider-assigned external
	// id, used by the SMPP DLR correlator's persistence step. Returns
	// domain.ErrMessageNotFound when absent.
	GetByExternalID(ctx context.Context, externalMessageID string) (*domain.Message, error)
}
