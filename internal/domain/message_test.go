package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"smshub/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from domain.Status
		to   domain.Status
		want bool
	}{
		{"queued to processing is legal", domain.StatusQueued, domain.StatusProcessing, true},
		{"processing to sent is legal", domain.StatusProcessing, domain.StatusSent, true},
		{"processing to failed is legal", domain.StatusProcessing, domain.StatusFailed, true},
		{"sent to delivered is legal", domain.StatusSent, domain.StatusDelivered, true},
		{"sent to failed is legal", domain.StatusSent, domain.StatusFailed, true},
		{"queued to sent skips a step", domain.StatusQueued, domain.StatusSent, false},
		{"delivered is terminal", domain.StatusDelivered, domain.StatusSent, false},
		{"failed is terminal", domain.StatusFailed, domain.StatusDelivered, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.CanTransition(tc.from, tc.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, domain.IsTerminal(domain.StatusQueued))
	assert.False(t, domain.IsTerminal(domain.StatusProcessing))
	assert.False(t, domain.IsTerminal(domain.StatusSent))
	assert.True(t, domain.IsTerminal(domain.StatusDelivered))
	assert.True(t, domain.IsTerminal(domain.StatusFailed))
}

func TestNormalizeChannelType(t *testing.T) {
	assert.Equal(t, domain.ChannelHTTP, domain.NormalizeChannelType("http"))
	assert.Equal(t, domain.ChannelHTTP, domain.NormalizeChannelType(" Http "))
	assert.Equal(t, domain.ChannelSMPP, domain.NormalizeChannelType("smpp"))
}

func TestNewMessage(t *testing.T) {
	m := domain.NewMessage("tenant-a", "+15551234567", "hello", domain.ChannelHTTP)

	assert.NotEqual(t, "", m.ID.String())
	assert.Equal(t, domain.StatusQueued, m.Status)
	assert.Equal(t, "tenant-a", m.SubscriptionKey)
	assert.Equal(t, "+15551234567", m.Recipient)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, domain.ChannelHTTP, m.ChannelType)
	assert.Equal(t, 0, m.RetryCount)
	assert.False(t, m.CreatedAt.IsZero())
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)
}
