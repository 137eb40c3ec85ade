// Package smpp implements the SMPP 3.4 telco channel: one connection pool
// per tenant built on github.com/linxGnu/gosmpp, per-tenant send-speed
// limiting via the shared internal/ratelimit token bucket, and delivery
// receipt correlation via internal/channel/smpp/dlr.
package smpp

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/linxGnu/gosmpp/data"
	"github.com/linxGnu/gosmpp/pdu"

	"smshub/internal/apperr"
	"smshub/internal/channel/smpp/dlr"
	"smshub/internal/channel/smpp/pool"
	"smshub/internal/domain"
	"smshub/internal/ports"
	"smshub/internal/ratelimit"
	"smshub/internal/tenant"
)

// SMPP 3.4 command_status values relevant to submit_sm_resp classification.
// Values per the SMPP 3.4 protocol specification, section 5.1.3.
const (
	statusSysErr       uint32 = 0x00000008
	statusMsgQueueFull uint32 = 0x00000014
	statusSubmitFail   uint32 = 0x00000045
	statusThrottled    uint32 = 0x00000058
)

// Channel implements ports.MessageChannel for the SMPP path.
type Channel struct {
	registry   *tenant.Registry
	limiter    *ratelimit.TenantLimiter
	correlator *dlr.Correlator
	log        *slog.Logger

	mu      sync.Mutex
	pools   map[string]*pool.Pool
	backoff map[string]*throttleState
}

type throttleState struct {
	mu           sync.Mutex
	failureCount int
}

// New builds an SMPP Channel. correlator receives every DeliverSM the pool
// sessions produce.
func New(registry *tenant.Registry, limiter *ratelimit.TenantLimiter, correlator *dlr.Correlator, log *slog.Logger) *Channel {
	return &Channel{
		registry:   registry,
		limiter:    limiter,
		correlator: correlator,
		log:        log,
		pools:      make(map[string]*pool.Pool),
		backoff:    make(map[string]*throttleState),
	}
}

// Shutdown disposes every tenant's SMPP pool, unbinding each session with
// the given grace period. Safe to call once during process shutdown.
func (c *Channel) Shutdown(grace time.Duration) {
	c.mu.Lock()
	pools := make([]*pool.Pool, 0, len(c.pools))
	for _, p := range c.pools {
		pools = append(pools, p)
	}
	c.mu.Unlock()

	for _, p := range pools {
		p.Shutdown(grace)
	}
}

// Send implements ports.MessageChannel.
func (c *Channel) Send(ctx context.Context, event domain.QueuedEvent) ports.ChannelResult {
	t, ok := c.registry.Get(event.SubscriptionKey)
	if !ok || t.SMPP == nil {
		return failure(apperr.New(apperr.KindConfiguration, "SMPP channel not configured for tenant"))
	}
	cfg := *t.SMPP

	if !c.limiter.TryAcquire(event.SubscriptionKey, cfg.Rate.MaxMessagesPerSecond) {
		return failure(apperr.New(apperr.KindRateLimited, "Rate limit exceeded"))
	}

	p, err := c.poolFor(ctx, event.SubscriptionKey, cfg)
	if err != nil {
		return failure(apperr.Wrap(apperr.KindTransientNetwork, "failed to obtain SMPP connection", err))
	}

	client, err := p.Acquire(ctx)
	if err != nil {
		return failure(apperr.Wrap(apperr.KindTransientNetwork, "SMPP pool exhausted", err))
	}
	defer p.Return(client)

	submitPDU, err := buildSubmitSM(event, cfg)
	if err != nil {
		return failure(apperr.Wrap(apperr.KindValidation, "failed to build submit_sm", err))
	}

	result, err := client.Submit(ctx, submitPDU, cfg.Pool.ConnectTimeout()+5*time.Second)
	if err != nil {
		return failure(apperr.Wrap(apperr.KindTransientNetwork, "submit_sm failed", err))
	}
	if result.CommandStatus == 0xFFFFFFFF {
		return failure(apperr.New(apperr.KindTransientNetwork, "submit_sm_resp expired without a response"))
	}

	if result.CommandStatus == 0 {
		c.recoverThrottle(event.SubscriptionKey)
		externalID := result.MessageID
		c.correlator.StoreCorrelation(externalID, event.MessageID.String())
		return ports.ChannelResult{OK: true, ExternalID: externalID}
	}

	switch result.CommandStatus {
	case statusThrottled:
		c.applyThrottleBackoff(ctx, event.SubscriptionKey, cfg)
		return failure(apperr.New(apperr.KindRateLimited, "SMSC throttled the request (ESME_RTHROTTLED)"))
	case statusMsgQueueFull, statusSubmitFail, statusSysErr:
		return failure(apperr.New(apperr.KindTransientNetwork, fmt.Sprintf("SMSC transient rejection: 0x%08X", result.CommandStatus)))
	default:
		return failure(apperr.New(apperr.KindPermanentProvider, fmt.Sprintf("SMSC rejected submit_sm: 0x%08X", result.CommandStatus)))
	}
}

func failure(err *apperr.Error) ports.ChannelResult {
	return ports.ChannelResult{OK: false, ErrorMessage: err.Error(), Kind: err.Kind}
}

func (c *Channel) poolFor(ctx context.Context, tenantKey string, cfg domain.SMPPChannelConfig) (*pool.Pool, error) {
	c.mu.Lock()
	if p, ok := c.pools[tenantKey]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := pool.New(ctx, cfg, c.correlator.Handler, c.log)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.pools[tenantKey]; ok {
		c.mu.Unlock()
		p.Shutdown(5 * time.Second)
		return existing, nil
	}
	c.pools[tenantKey] = p
	c.mu.Unlock()
	return p, nil
}

// applyThrottleBackoff sleeps according to the tenant's exponential backoff
// policy before returning. The caller's overall context still
// bounds the wait.
func (c *Channel) applyThrottleBackoff(ctx context.Context, tenantKey string, cfg domain.SMPPChannelConfig) {
	c.mu.Lock()
	state, ok := c.backoff[tenantKey]
	if !ok {
		state = &throttleState{}
		c.backoff[tenantKey] = state
	}
	c.mu.Unlock()

	state.mu.Lock()
	state.failureCount++
	n := state.failureCount
	state.mu.Unlock()

	initial := float64(cfg.Throttling.InitialBackoffMs)
	if initial <= 0 {
		initial = 500
	}
	mult := cfg.Throttling.Multiplier
	if mult <= 1 {
		mult = 2
	}
	maxMs := float64(cfg.Throttling.MaxBackoffMs)
	if maxMs <= 0 {
		maxMs = 30000
	}

	delay := initial * math.Pow(mult, float64(n-1))
	if delay > maxMs {
		delay = maxMs
	}

	select {
	case <-time.After(time.Duration(delay) * time.Millisecond):
	case <-ctx.Done():
	}
}

func (c *Channel) recoverThrottle(tenantKey string) {
	c.mu.Lock()
	state, ok := c.backoff[tenantKey]
	c.mu.Unlock()
	if !ok {
		return
	}
	state.mu.Lock()
	state.failureCount = 0
	state.mu.Unlock()
}

func buildSubmitSM(event domain.QueuedEvent, cfg domain.SMPPChannelConfig) (*pdu.SubmitSM, error) {
	p, ok := pdu.NewSubmitSM().(*pdu.SubmitSM)
	if !ok {
		return nil, fmt.Errorf("unexpected PDU type from pdu.NewSubmitSM")
	}

	srcAddr := pdu.NewAddress()
	if err := srcAddr.SetAddress(cfg.SourceAddress); err != nil {
		return nil, fmt.Errorf("invalid source address: %w", err)
	}
	p.SourceAddr = srcAddr

	destAddr := pdu.NewAddress()
	if err := destAddr.SetAddress(event.Recipient); err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}
	p.DestAddr = destAddr

	if err := p.Message.SetMessageWithEncoding(event.Content, dataCodingFor(event.Content)); err != nil {
		return nil, fmt.Errorf("failed to set message content: %w", err)
	}

	if cfg.DeliveryReceipt.Enabled {
		p.RegisteredDelivery = byte(cfg.DeliveryReceipt.DLRMask)
		if p.RegisteredDelivery == 0 {
			p.RegisteredDelivery = 1
		}
	}

	return p, nil
}

// dataCodingFor picks the default GSM 7-bit coding when every rune of the
// content is ASCII, and UCS2 when any rune is above U+007F. It does not
// consult the GSM 7-bit alphabet itself: non-ASCII characters that GSM 7-bit
// contains still select UCS2.
func dataCodingFor(content string) data.Coding {
	for _, r := range content {
		if r > 127 {
			return data.UCS2
		}
	}
	return data.GSM7BIT
}
