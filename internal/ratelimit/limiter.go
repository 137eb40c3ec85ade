// Package ratelimit implements per-tenant admission control: a token-bucket
// limiter created lazily per tenant and reclaimed after a period of
// idleness.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	idleTimeout = 10 * time.Minute
	sweepEvery  = 5 * time.Minute
)

type entry struct {
	limiter    *rate.Limiter
	lastUsedAt time.Time
	mu         sync.Mutex
}

// TenantLimiter is a concurrent map of tenantKey -> token-bucket limiter.
// Capacity equals the tenant's MaxRequestsPerSecond; refill is one full
// bucket (capacity tokens) per second, never above capacity.
type TenantLimiter struct {
	mu       sync.Mutex
	tenants  map[string]*entry
	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a TenantLimiter and starts its idle-sweep goroutine.
func New() *TenantLimiter {
	l := &TenantLimiter{
		tenants: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// TryAcquire attempts to admit one request for tenantKey against a bucket of
// the given capacity (requests/second). It fails closed: any internal
// inconsistency is treated as a rejection, never a silent pass-through.
func (l *TenantLimiter) TryAcquire(tenantKey string, capacityPerSecond int) bool {
	if capacityPerSecond <= 0 {
		return false
	}
	e := l.entryFor(tenantKey, capacityPerSecond)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsedAt = time.Now()
	return e.limiter.Allow()
}

func (l *TenantLimiter) entryFor(tenantKey string, capacityPerSecond int) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.tenants[tenantKey]; ok {
		return e
	}
	e := &entry{
		limiter:    rate.NewLimiter(rate.Limit(capacityPerSecond), capacityPerSecond),
		lastUsedAt: time.Now(),
	}
	l.tenants[tenantKey] = e
	return e
}

// Stop halts the idle-sweep goroutine. Safe to call multiple times.
func (l *TenantLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *TenantLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweepIdle()
		}
	}
}

func (l *TenantLimiter) sweepIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for key, e := range l.tenants {
		e.mu.Lock()
		idle := now.Sub(e.lastUsedAt) > idleTimeout
		e.mu.Unlock()
		if idle {
			delete(l.tenants, key)
		}
	}
}
