// Package pool implements the per-tenant SMPP connection pool: a bounded
// set of persistently-bound github.com/linxGnu/gosmpp sessions.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linxGnu/gosmpp"
	"github.com/linxGnu/gosmpp/pdu"

	"smshub/internal/domain"
)

// DeliverSMHandler is invoked for every DeliverSM PDU received on any
// session in the pool.
type DeliverSMHandler func(p *pdu.DeliverSM)

// SubmitResult is the outcome of a synchronous submit_sm/submit_sm_resp
// round-trip.
type SubmitResult struct {
	CommandStatus uint32
	MessageID     string
}

// Client wraps a bound gosmpp.Session with the bookkeeping the pool needs to
// decide whether to recycle or dispose it on return. gosmpp's Submit call is
// fire-and-forget; Client bridges the async submit_sm_resp callback back
// into a synchronous call via a per-sequence-number wait channel, so
// internal/channel/smpp can return a single ChannelResult per Send.
type Client struct {
	session *gosmpp.Session
	bound   bool
	mu      sync.Mutex

	pending sync.Map // map[int32]chan SubmitResult
}

// Submit sends p and blocks until its submit_sm_resp arrives, ctx is done,
// or timeout elapses.
func (c *Client) Submit(ctx context.Context, p *pdu.SubmitSM, timeout time.Duration) (SubmitResult, error) {
	seq := p.GetSequenceNumber()
	ch := make(chan SubmitResult, 1)
	c.pending.Store(seq, ch)
	defer c.pending.Delete(seq)

	if err := c.session.Transceiver().Submit(p); err != nil {
		return SubmitResult{}, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-time.After(timeout):
		return SubmitResult{}, fmt.Errorf("submit_sm_resp not received within %s", timeout)
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
}

func (c *Client) resolve(seq int32, res SubmitResult) {
	if v, ok := c.pending.Load(seq); ok {
		v.(chan SubmitResult) <- res
	}
}

// Bound reports whether the underlying session is still usable.
func (c *Client) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

func (c *Client) markUnbound() {
	c.mu.Lock()
	c.bound = false
	c.mu.Unlock()
}

// Transceiver exposes the session's Submit path for the SMPP channel.
func (c *Client) Transceiver() *gosmpp.Transceiver {
	return c.session.Transceiver()
}

func (c *Client) close() {
	c.markUnbound()
	_ = c.session.Close()
}

// Pool maintains a bounded set of bound SMPP clients for one tenant. At most MaxConnections are ever live; at least MinConnections are
// pre-warmed at construction.
type Pool struct {
	cfg   domain.SMPPChannelConfig
	log   *slog.Logger
	onDLR DeliverSMHandler

	sem   chan struct{} // bounds concurrent live clients at MaxConnections
	mu    sync.Mutex
	idle  []*Client
	total int
}

// New builds a Pool and pre-warms MinConnections clients. It does not fail
// construction if pre-warming can't reach the minimum immediately; callers
// still get functional lazy-create-on-demand behavior.
func New(ctx context.Context, cfg domain.SMPPChannelConfig, onDLR DeliverSMHandler, log *slog.Logger) (*Pool, error) {
	max := cfg.Pool.MaxConnections
	if max <= 0 {
		max = 1
	}
	p := &Pool{
		cfg:   cfg,
		log:   log,
		onDLR: onDLR,
		sem:   make(chan struct{}, max),
	}

	for i := 0; i < cfg.Pool.MinConnections; i++ {
		c, err := p.connectAndBind(ctx)
		if err != nil {
			log.Warn("smpp pool pre-warm failed", "host", cfg.Host, "error", err)
			break
		}
		p.sem <- struct{}{}
		p.total++
		p.idle = append(p.idle, c)
	}
	return p, nil
}

// Acquire returns a bound client, creating one if under capacity or waiting
// (bounded by cfg.Pool.ConnectTimeout) for one to be returned otherwise.
func (p *Pool) Acquire(ctx context.Context) (*Client, error) {
	deadline := time.After(p.cfg.Pool.ConnectTimeout())
	for {
		p.mu.Lock()
		for len(p.idle) > 0 {
			c := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			p.mu.Unlock()
			if c.Bound() {
				return c, nil
			}
			// Dead client found in the idle set: drop it and its slot, keep
			// looking.
			p.releaseSlot()
			p.mu.Lock()
		}
		p.mu.Unlock()

		select {
		case p.sem <- struct{}{}:
			c, err := p.connectAndBind(ctx)
			if err != nil {
				p.releaseSlot()
				return nil, fmt.Errorf("smpp connect and bind: %w", err)
			}
			p.mu.Lock()
			p.total++
			p.mu.Unlock()
			return c, nil
		case <-time.After(50 * time.Millisecond):
			// Re-check the idle set for a client returned in the meantime.
			continue
		case <-deadline:
			return nil, fmt.Errorf("smpp pool acquire timed out waiting for a connection")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Return implements the return policy from.7: healthy clients go
// back to the idle set, unhealthy ones are disposed and their slot freed.
func (p *Pool) Return(c *Client) {
	if !c.Bound() {
		c.close()
		p.releaseSlot()
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

func (p *Pool) releaseSlot() {
	select {
	case <-p.sem:
	default:
	}
	p.mu.Lock()
	if p.total > 0 {
		p.total--
	}
	p.mu.Unlock()
}

// Shutdown disposes every client in the pool, issuing unbind with a bounded
// grace period.
func (p *Pool) Shutdown(grace time.Duration) {
	p.mu.Lock()
	clients := p.idle
	p.idle = nil
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, c := range clients {
			c.close()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		p.log.Warn("smpp pool shutdown grace period exceeded", "host", p.cfg.Host)
	}
}

func (p *Pool) connectAndBind(ctx context.Context) (*Client, error) {
	auth := gosmpp.Auth{
		SMSC:     fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port),
		SystemID: p.cfg.SystemID,
		Password: p.cfg.Password,
	}

	dialer := gosmpp.NonTLSDialer
	if p.cfg.UseTLS {
		dialer = gosmpp.TLSDialer
	}

	var connector gosmpp.Connector
	switch p.cfg.BindType {
	case domain.BindTransmitter:
		connector = gosmpp.TXConnector(dialer, auth)
	case domain.BindReceiver:
		connector = gosmpp.RXConnector(dialer, auth)
	default:
		connector = gosmpp.TRXConnector(dialer, auth)
	}

	client := &Client{bound: true}

	settings := gosmpp.Settings{
		EnquireLink: p.cfg.EnquireLinkInterval(),
		ReadTimeout: p.cfg.EnquireLinkInterval() + 5*time.Second,

		WindowedRequestTracking: &gosmpp.WindowedRequestTracking{
			MaxWindowSize:    uint8(maxUint8(p.cfg.Pool.MaxConnections, 10)),
			PduExpireTimeOut: p.cfg.EnquireLinkInterval() + 5*time.Second,
			ExpireCheckTimer: 5 * time.Second,

			OnReceivedPduRequest: func(pd pdu.PDU) (pdu.PDU, bool) {
				switch v := pd.(type) {
				case *pdu.DeliverSM:
					if p.onDLR != nil {
						p.onDLR(v)
					}
					return v.GetResponse(), false
				case *pdu.EnquireLink:
					return v.GetResponse(), false
				case *pdu.Unbind:
					client.markUnbound()
					return v.GetResponse(), false
				default:
					return nil, false
				}
			},

			OnExpiredPduRequest: func(pd pdu.PDU) bool {
				p.log.Warn("smpp pdu expired without response", "host", p.cfg.Host, "seq", pd.GetSequenceNumber())
				if sub, ok := pd.(*pdu.SubmitSM); ok {
					client.resolve(sub.GetSequenceNumber(), SubmitResult{CommandStatus: uint32(0xFFFFFFFF)})
				}
				return false
			},

			OnExpectedPduResponse: func(resp gosmpp.Response) {
				reqSeq := resp.OriginalRequest.PDU.GetSequenceNumber()
				if sr, ok := resp.PDU.(*pdu.SubmitSMResp); ok {
					client.resolve(reqSeq, SubmitResult{
						CommandStatus: uint32(sr.CommandStatus),
						MessageID:     sr.MessageID,
					})
				}
			},
		},

		OnRebindingError: func(err error) {
			p.log.Warn("smpp rebind error", "host", p.cfg.Host, "error", err)
		},
		OnReceivingError: func(err error) {
			p.log.Warn("smpp receive error", "host", p.cfg.Host, "error", err)
		},
		OnSubmitError: func(_ pdu.PDU, err error) {
			p.log.Warn("smpp submit error", "host", p.cfg.Host, "error", err)
		},
		OnClosed: func(state gosmpp.State) {
			client.markUnbound()
			p.log.Info("smpp session closed", "host", p.cfg.Host, "state", state.String())
		},
	}

	sess, err := gosmpp.NewSession(connector, settings, p.cfg.Pool.ConnectTimeout())
	if err != nil {
		return nil, err
	}
	client.session = sess
	return client, nil
}

func maxUint8(v, min int) int {
	if v < min {
		return min
	}
	if v > 255 {
		return 255
	}
	return v
}
