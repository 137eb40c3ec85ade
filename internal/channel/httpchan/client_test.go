package httpchan_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smshub/internal/channel/httpchan"
	"smshub/internal/domain"
	"smshub/internal/ratelimit"
	"smshub/internal/tenant"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registryWithHTTP(t *testing.T, endpoint string, extra string) *tenant.Registry {
	t.Helper()
	reg, err := tenant.LoadFromJSON([]byte(fmt.Sprintf(`{
		"tenants": [{
			"subscriptionKey": "tenant-a",
			"http": {
				"endpoint": "%s",
				"provider": "Generic",
				"maxRetries": 2,
				"maxRequestsPerSecond": 100,
				"timeoutMs": 2000,
				"circuitBreaker": {"failureThreshold": 5, "recoveryTimeoutS": 30}
				%s
			}
		}]
	}`, endpoint, extra)))
	require.NoError(t, err)
	return reg
}

func TestHTTPChannelSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "provider-abc"})
	}))
	defer srv.Close()

	reg := registryWithHTTP(t, srv.URL, "")
	ch := httpchan.New(reg, ratelimit.New(), discardLogger())

	result := ch.Send(context.Background(), domain.QueuedEvent{
		SubscriptionKey: "tenant-a",
		Recipient:       "+15551234567",
		Content:         "hi",
		ChannelType:     domain.ChannelHTTP,
	})

	assert.True(t, result.OK)
	assert.Equal(t, "provider-abc", result.ExternalID)
}

func TestHTTPChannelPermanentFailureNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "bad request")
	}))
	defer srv.Close()

	reg := registryWithHTTP(t, srv.URL, "")
	ch := httpchan.New(reg, ratelimit.New(), discardLogger())

	result := ch.Send(context.Background(), domain.QueuedEvent{
		SubscriptionKey: "tenant-a", Recipient: "+1", Content: "hi", ChannelType: domain.ChannelHTTP,
	})

	assert.False(t, result.OK)
	assert.False(t, result.Kind.Transient())
	assert.Equal(t, 1, calls)
}

func TestHTTPChannelRetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "ok-after-retry"})
	}))
	defer srv.Close()

	reg := registryWithHTTP(t, srv.URL, "")
	ch := httpchan.New(reg, ratelimit.New(), discardLogger())

	result := ch.Send(context.Background(), domain.QueuedEvent{
		SubscriptionKey: "tenant-a", Recipient: "+1", Content: "hi", ChannelType: domain.ChannelHTTP,
	})

	assert.True(t, result.OK)
	assert.Equal(t, 2, calls)
}

func TestHTTPChannelUnconfiguredTenant(t *testing.T) {
	reg := registryWithHTTP(t, "http://unused", "")
	ch := httpchan.New(reg, ratelimit.New(), discardLogger())

	result := ch.Send(context.Background(), domain.QueuedEvent{
		SubscriptionKey: "unknown-tenant", Recipient: "+1", Content: "hi", ChannelType: domain.ChannelHTTP,
	})

	assert.False(t, result.OK)
	assert.False(t, result.Kind.Transient())
}

func TestHTTPChannelRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "x"})
	}))
	defer srv.Close()

	reg := registryWithHTTP(t, srv.URL, `, "maxRequestsPerSecond": 1`)
	ch := httpchan.New(reg, ratelimit.New(), discardLogger())

	event := domain.QueuedEvent{SubscriptionKey: "tenant-a", Recipient: "+1", Content: "hi", ChannelType: domain.ChannelHTTP}
	first := ch.Send(context.Background(), event)
	second := ch.Send(context.Background(), event)

	assert.True(t, first.OK)
	assert.False(t, second.OK)
	assert.True(t, second.Kind.Transient())
}
