// Package httpchan implements the HTTP SMS channel: one
// pooled http.Client plus resilience pipeline per tenant, sending
// provider-shaped JSON payloads built by internal/payload.
package httpchan

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"smshub/internal/apperr"
	"smshub/internal/domain"
	"smshub/internal/payload"
	"smshub/internal/ports"
	"smshub/internal/ratelimit"
	"smshub/internal/resilience"
	"smshub/internal/tenant"
)

// externalIDKeys is the ordered list of JSON keys checked for a
// provider-assigned external id.
var externalIDKeys = []string{"messageId", "id", "message_id", "sid", "uuid", "reference"}

// Tuned transport defaults for a moderate-throughput outbound HTTP client.
const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
	dialTimeout         = 10 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

func newTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:   true,
	}
}

type tenantClient struct {
	httpClient *http.Client
	pipeline   *resilience.Pipeline
}

// Channel implements ports.MessageChannel for the HTTP provider path. It
// lazily builds one http.Client + resilience.Pipeline per tenant so that a
// misbehaving tenant's breaker never affects another.
type Channel struct {
	registry *tenant.Registry
	limiter  *ratelimit.TenantLimiter
	log      *slog.Logger

	mu      sync.Mutex
	clients map[string]*tenantClient
}

// New builds an HTTP Channel backed by the given tenant registry and rate
// limiter.
func New(registry *tenant.Registry, limiter *ratelimit.TenantLimiter, log *slog.Logger) *Channel {
	return &Channel{
		registry: registry,
		limiter:  limiter,
		log:      log,
		clients:  make(map[string]*tenantClient),
	}
}

// Send implements ports.MessageChannel.
func (c *Channel) Send(ctx context.Context, event domain.QueuedEvent) ports.ChannelResult {
	t, ok := c.registry.Get(event.SubscriptionKey)
	if !ok || t.HTTP == nil {
		return failure(apperr.New(apperr.KindConfiguration, "HTTP channel not configured for tenant"))
	}
	cfg := *t.HTTP

	if !c.limiter.TryAcquire(event.SubscriptionKey, cfg.MaxRequestsPerSecond) {
		return failure(apperr.New(apperr.KindRateLimited, "Rate limit exceeded"))
	}

	body, err := payload.Build(payload.Input{
		MessageID: event.MessageID.String(),
		TenantKey: event.SubscriptionKey,
		Recipient: event.Recipient,
		Content:   event.Content,
	}, cfg, c.log)
	if err != nil {
		return failure(apperr.Wrap(apperr.KindConfiguration, "failed to build payload", err))
	}

	tc := c.clientFor(event.SubscriptionKey, cfg)

	var finalStatus int
	var finalBody []byte
	attemptResult, err := tc.pipeline.Execute(ctx, func(attemptCtx context.Context) (resilience.Attempt, error) {
		req, reqErr := http.NewRequestWithContext(attemptCtx, http.MethodPost, cfg.Endpoint, bytes.NewReader([]byte(body)))
		if reqErr != nil {
			return resilience.Attempt{Retryable: false}, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		applyAuth(req, cfg)
		for k, v := range cfg.CustomHeaders {
			req.Header.Set(k, v)
		}

		resp, doErr := tc.httpClient.Do(req)
		if doErr != nil {
			return resilience.Attempt{Retryable: true}, doErr
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		finalStatus = resp.StatusCode
		finalBody = respBody

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resilience.Attempt{StatusCode: resp.StatusCode, Retryable: false}, nil
		}
		return resilience.Attempt{
			StatusCode: resp.StatusCode,
			Retryable:  resilience.RetryableStatus(resp.StatusCode),
		}, nil
	})

	if _, isOpen := err.(resilience.ErrOpen); isOpen {
		return failure(apperr.New(apperr.KindBreakerOpen, "circuit breaker open"))
	}
	if err != nil {
		return failure(apperr.Wrap(apperr.KindTransientNetwork, "HTTP request failed", err))
	}
	if attemptResult.StatusCode >= 200 && attemptResult.StatusCode < 300 {
		return ports.ChannelResult{OK: true, ExternalID: extractExternalID(finalBody)}
	}

	kind := apperr.KindPermanentProvider
	if resilience.RetryableStatus(finalStatus) {
		kind = apperr.KindTransientNetwork
	}
	return failure(apperr.New(kind, fmt.Sprintf("HTTP %d: %s", finalStatus, string(finalBody))))
}

func (c *Channel) clientFor(tenantKey string, cfg domain.HTTPChannelConfig) *tenantClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tc, ok := c.clients[tenantKey]; ok {
		return tc
	}
	tc := &tenantClient{
		httpClient: &http.Client{Transport: newTransport()},
		pipeline: resilience.NewPipeline(
			cfg.Timeout(),
			maxInt(cfg.MaxRetries, 1),
			resilience.NewBreaker(
				maxInt(cfg.CircuitBreaker.FailureThreshold, 1),
				time.Duration(maxInt(cfg.CircuitBreaker.RecoveryTimeoutS, 1))*time.Second,
			),
		),
	}
	c.clients[tenantKey] = tc
	return tc
}

func applyAuth(req *http.Request, cfg domain.HTTPChannelConfig) {
	switch cfg.AuthType {
	case domain.AuthBearer:
		if cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		}
	case domain.AuthAPIKey:
		req.Header.Set("X-API-Key", cfg.APIKey)
	case domain.AuthBasic:
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.APIKey + ":" + cfg.APISecret))
		req.Header.Set("Authorization", "Basic "+creds)
	default:
		if cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		}
	}
}

func extractExternalID(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, key := range externalIDKeys {
		if v, ok := doc[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	if data, ok := doc["data"].(map[string]any); ok {
		if v, ok := data["id"].(string); ok {
			return v
		}
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func failure(err *apperr.Error) ports.ChannelResult {
	return ports.ChannelResult{OK: false, ErrorMessage: err.Error(), Kind: err.Kind}
}
