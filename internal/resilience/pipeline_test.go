package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smshub/internal/resilience"
)

func TestPipelineSucceedsFirstTry(t *testing.T) {
	p := resilience.NewPipeline(time.Second, 3, resilience.NewBreaker(5, time.Second))

	calls := 0
	result, err := p.Execute(context.Background(), func(ctx context.Context) (resilience.Attempt, error) {
		calls++
		return resilience.Attempt{StatusCode: 200, Retryable: false}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestPipelineRetriesRetryableOutcome(t *testing.T) {
	p := resilience.NewPipeline(time.Second, 3, resilience.NewBreaker(5, time.Second))

	calls := 0
	_, err := p.Execute(context.Background(), func(ctx context.Context) (resilience.Attempt, error) {
		calls++
		if calls < 3 {
			return resilience.Attempt{StatusCode: 503, Retryable: true}, nil
		}
		return resilience.Attempt{StatusCode: 200, Retryable: false}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPipelineStopsOnPermanentFailure(t *testing.T) {
	p := resilience.NewPipeline(time.Second, 3, resilience.NewBreaker(5, time.Second))

	calls := 0
	result, err := p.Execute(context.Background(), func(ctx context.Context) (resilience.Attempt, error) {
		calls++
		return resilience.Attempt{StatusCode: 400, Retryable: false}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 400, result.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestPipelineOpensBreakerAndShortCircuits(t *testing.T) {
	p := resilience.NewPipeline(time.Second, 1, resilience.NewBreaker(1, time.Hour))

	_, err := p.Execute(context.Background(), func(ctx context.Context) (resilience.Attempt, error) {
		return resilience.Attempt{StatusCode: 503, Retryable: true}, nil
	})
	require.NoError(t, err)

	calls := 0
	_, err = p.Execute(context.Background(), func(ctx context.Context) (resilience.Attempt, error) {
		calls++
		return resilience.Attempt{StatusCode: 200}, nil
	})

	var target resilience.ErrOpen
	assert.ErrorAs(t, err, &target)
	assert.Equal(t, 0, calls)
}

func TestPipelinePropagatesContextCancellation(t *testing.T) {
	p := resilience.NewPipeline(time.Second, 3, resilience.NewBreaker(5, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, func(ctx context.Context) (resilience.Attempt, error) {
		return resilience.Attempt{Retryable: true}, errors.New("network unreachable")
	})

	assert.Error(t, err)
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, resilience.RetryableStatus(408))
	assert.True(t, resilience.RetryableStatus(429))
	assert.True(t, resilience.RetryableStatus(500))
	assert.True(t, resilience.RetryableStatus(503))
	assert.False(t, resilience.RetryableStatus(200))
	assert.False(t, resilience.RetryableStatus(404))
}
