package resilience

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// Attempt is the outcome of a single call through the pipeline's innermost
// function. StatusCode is the HTTP status when the call reached the
// downstream and got a response; Retryable classifies whether this outcome
// should trigger another attempt.
type Attempt struct {
	StatusCode int
	Retryable  bool
}

// AttemptFunc performs one outbound call, bounded by the context deadline
// the pipeline installs for the Timeout stage.
type AttemptFunc func(ctx context.Context) (Attempt, error)

// Pipeline composes Timeout -> Retry -> CircuitBreaker around a channel
// send, one instance per tenant so failures in one tenant cannot trip
// another's breaker.
type Pipeline struct {
	Timeout    time.Duration
	MaxRetries int
	Breaker    *Breaker
}

// NewPipeline builds a tenant-scoped resilience pipeline.
func NewPipeline(timeout time.Duration, maxRetries int, breaker *Breaker) *Pipeline {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Pipeline{Timeout: timeout, MaxRetries: maxRetries, Breaker: breaker}
}

// Execute runs fn under the pipeline. It returns the last Attempt result and
// error observed; if the breaker is open it returns ErrOpen without
// attempting a call at all.
func (p *Pipeline) Execute(ctx context.Context, fn AttemptFunc) (Attempt, error) {
	var lastAttempt Attempt
	var lastErr error

	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		commit, err := p.Breaker.Allow()
		if err != nil {
			return Attempt{}, err
		}

		result, callErr := p.runOnce(ctx, fn)
		success := callErr == nil && !result.Retryable
		commit(success)

		lastAttempt, lastErr = result, callErr
		if !result.Retryable {
			// Either success, or a permanent outcome (e.g. 4xx): stop
			// retrying either way.
			return result, callErr
		}

		if attempt < p.MaxRetries-1 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return lastAttempt, err
			}
		}
	}

	return lastAttempt, lastErr
}

// runOnce applies the per-attempt timeout.
func (p *Pipeline) runOnce(ctx context.Context, fn AttemptFunc) (Attempt, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	result, err := fn(attemptCtx)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || isNetworkError(err) {
			return Attempt{Retryable: true}, err
		}
		return Attempt{Retryable: false}, err
	}
	return result, nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// sleepBackoff waits 2^attempt seconds plus 0-1000ms jitter between retry
// attempts. It returns ctx.Err() if the context is cancelled during the
// wait.
func sleepBackoff(ctx context.Context, attempt int) error {
	base := time.Duration(1<<uint(attempt)) * time.Second
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	select {
	case <-time.After(base + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableStatus classifies an HTTP status code as worth retrying.
func RetryableStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500
}
