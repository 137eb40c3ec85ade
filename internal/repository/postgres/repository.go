// Package postgres implements ports.MessageRepository on top of
// database/sql and github.com/lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"smshub/internal/domain"
	"smshub/internal/ports"
)

// Repository implements ports.MessageRepository using PostgreSQL.
type Repository struct {
	db *sql.DB
}

// New opens a PostgreSQL connection pool and returns a Repository.
func New(dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Insert stores a newly-submitted message.
func (r *Repository) Insert(ctx context.Context, m domain.Message) error {
	const q = `
		INSERT INTO messages (id, subscription_key, content, recipient, channel_type, status, created_at, updated_at, external_message_id, error_message, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, q,
		m.ID, m.SubscriptionKey, m.Content, m.Recipient, m.ChannelType, m.Status,
		m.CreatedAt, m.UpdatedAt, nullIfEmpty(m.ExternalMessageID), nullIfEmpty(m.ErrorMessage), m.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// UpdateStatus applies a status transition and any accompanying fields.
// It does not itself validate the transition: the DLR updater in cmd/server
// checks domain.CanTransition first, and the delivery worker checks the
// current status itself before writing.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, update ports.StatusUpdate) error {
	const q = `
		UPDATE messages
		SET status = $1,
		    updated_at = $2,
		    external_message_id = COALESCE($3, external_message_id),
		    error_message = COALESCE($4, error_message),
		    retry_count = COALESCE($5, retry_count)
		WHERE id = $6
	`
	var extID, errMsg *string
	var retryCount *int
	if update.ExternalMessageID != nil {
		extID = update.ExternalMessageID
	}
	if update.ErrorMessage != nil {
		errMsg = update.ErrorMessage
	}
	if update.RetryCount != nil {
		retryCount = update.RetryCount
	}

	res, err := r.db.ExecContext(ctx, q, update.Status, time.Now().UTC(), extID, errMsg, retryCount, id)
	if err != nil {
		return fmt.Errorf("update status for message %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// GetByIDForTenant fetches a message, scoped to the requesting tenant so one
// tenant can never read another's messages.
func (r *Repository) GetByIDForTenant(ctx context.Context, id uuid.UUID, tenantKey string) (*domain.Message, error) {
	const q = `
		SELECT id, subscription_key, content, recipient, channel_type, status,
		       created_at, updated_at, COALESCE(external_message_id, ''), COALESCE(error_message, ''), retry_count
		FROM messages
		WHERE id = $1 AND subscription_key = $2
	`
	row := r.db.QueryRowContext(ctx, q, id, tenantKey)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return m, nil
}

// ListForTenant returns a tenant's message history, optionally filtered by
// status, newest first, bounded by limit.
func (r *Repository) ListForTenant(ctx context.Context, tenantKey string, statusFilter domain.Status, limit int) ([]domain.Message, error) {
	var rows *sql.Rows
	var err error

	if statusFilter != "" {
		const q = `
			SELECT id, subscription_key, content, recipient, channel_type, status,
			       created_at, updated_at, COALESCE(external_message_id, ''), COALESCE(error_message, ''), retry_count
			FROM messages
			WHERE subscription_key = $1 AND status = $2
			ORDER BY created_at DESC
			LIMIT $3
		`
		rows, err = r.db.QueryContext(ctx, q, tenantKey, statusFilter, limit)
	} else {
		const q = `
			SELECT id, subscription_key, content, recipient, channel_type, status,
			       created_at, updated_at, COALESCE(external_message_id, ''), COALESCE(error_message, ''), retry_count
			FROM messages
			WHERE subscription_key = $1
			ORDER BY created_at DESC
			LIMIT $2
		`
		rows, err = r.db.QueryContext(ctx, q, tenantKey, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages for tenant %s: %w", tenantKey, err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// GetByExternalID looks a message up by provider-assigned external id, used
// by the SMPP DLR correlator's persistence step.
func (r *Repository) GetByExternalID(ctx context.Context, externalMessageID string) (*domain.Message, error) {
	const q = `
		SELECT id, subscription_key, content, recipient, channel_type, status,
		       created_at, updated_at, COALESCE(external_message_id, ''), COALESCE(error_message, ''), retry_count
		FROM messages
		WHERE external_message_id = $1
	`
	row := r.db.QueryRowContext(ctx, q, externalMessageID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message by external id %s: %w", externalMessageID, err)
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*domain.Message, error) {
	var m domain.Message
	var channelType, status string
	if err := s.Scan(
		&m.ID, &m.SubscriptionKey, &m.Content, &m.Recipient, &channelType, &status,
		&m.CreatedAt, &m.UpdatedAt, &m.ExternalMessageID, &m.ErrorMessage, &m.RetryCount,
	); err != nil {
		return nil, err
	}
	m.ChannelType = domain.ChannelType(channelType)
	m.Status = domain.Status(status)
	return &m, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
