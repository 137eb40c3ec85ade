// Package domain holds the core entities of the message hub: messages,
// their lifecycle, and the events exchanged between the pipeline stages.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a message.
type Status string

const (
	StatusQueued     Status = "Queued"
	StatusProcessing Status = "Processing"
	StatusSent       Status = "Sent"
	StatusDelivered  Status = "Delivered"
	StatusFailed     Status = "Failed"
)

// ChannelType identifies an outbound delivery mechanism.
type ChannelType string

const (
	ChannelHTTP ChannelType = "HTTP"
	ChannelSMPP ChannelType = "SMPP"
)

// NormalizeChannelType canonicalizes user-supplied channel type strings,
// which may arrive in any case.
func NormalizeChannelType(s string) ChannelType {
	return ChannelType(strings.ToUpper(strings.TrimSpace(s)))
}

// validTransitions is the status DAG governing legal message transitions.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusSent, StatusFailed},
	StatusSent:       {StatusDelivered, StatusFailed},
	StatusDelivered:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// in the status DAG.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusFailed
}

// Message is the core domain entity representing a single outbound SMS.
type Message struct {
	ID                uuid.UUID
	SubscriptionKey   string
	Content           string
	Recipient         string
	ChannelType       ChannelType
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExternalMessageID string
	ErrorMessage      string
	RetryCount        int
}

// NewMessage creates a Queued message with a freshly generated ID.
func NewMessage(tenantKey, recipient, content string, channel ChannelType) Message {
	now := time.Now().UTC()
	return Message{
		ID:              uuid.New(),
		SubscriptionKey: tenantKey,
		Content:         content,
		Recipient:       recipient,
		ChannelType:     channel,
		Status:          StatusQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// QueuedEvent is the payload published to the queue transport on submission.
type QueuedEvent struct {
	MessageID       uuid.UUID   `json:"messageId"`
	SubscriptionKey string      `json:"subscriptionKey"`
	Content         string      `json:"content"`
	Recipient       string      `json:"recipient"`
	ChannelType     ChannelType `json:"channelType"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Domain sentinel errors.
var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrChannelNotConfig = errors.New("channel not configured for tenant")
	ErrInvalidStatus    = errors.New("invalid status transition")
)
