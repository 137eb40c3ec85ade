// Package memory provides an in-process ports.MessageRepository fake used by
// unit tests, mirroring the postgres adapter's semantics without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"smshub/internal/domain"
	"smshub/internal/ports"
)

// Repository is a goroutine-safe, in-memory ports.MessageRepository.
type Repository struct {
	mu       sync.Mutex
	messages map[uuid.UUID]domain.Message
}

// New builds an empty Repository.
func New() *Repository {
	return &Repository{messages: make(map[uuid.UUID]domain.Message)}
}

// Insert stores m, overwriting any prior row with the same ID.
func (r *Repository) Insert(_ context.Context, m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.ID] = m
	return nil
}

// UpdateStatus applies a status transition to a stored message.
func (r *Repository) UpdateStatus(_ context.Context, id uuid.UUID, update ports.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return domain.ErrMessageNotFound
	}
	m.Status = update.Status
	m.UpdatedAt = time.Now().UTC()
	if update.ExternalMessageID != nil {
		m.ExternalMessageID = *update.ExternalMessageID
	}
	if update.ErrorMessage != nil {
		m.ErrorMessage = *update.ErrorMessage
	}
	if update.RetryCount != nil {
		m.RetryCount = *update.RetryCount
	}
	r.messages[id] = m
	return nil
}

// GetByIDForTenant fetches a message scoped to tenantKey.
func (r *Repository) GetByIDForTenant(_ context.Context, id uuid.UUID, tenantKey string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.SubscriptionKey != tenantKey {
		return nil, domain.ErrMessageNotFound
	}
	cp := m
	return &cp, nil
}

// ListForTenant returns tenantKey's messages, newest first, optionally
// filtered by status.
func (r *Repository) ListForTenant(_ context.Context, tenantKey string, statusFilter domain.Status, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Message
	for _, m := range r.messages {
		if m.SubscriptionKey != tenantKey {
			continue
		}
		if statusFilter != "" && m.Status != statusFilter {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetByExternalID looks a message up by its provider-assigned external id.
func (r *Repository) GetByExternalID(_ context.Context, externalMessageID string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ExternalMessageID == externalMessageID {
			cp := m
			return &cp, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}
