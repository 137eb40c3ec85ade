package ratelimit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"smshub/internal/ratelimit"
)

func TestTryAcquireRespectsCapacity(t *testing.T) {
	l := ratelimit.New()
	defer l.Stop()

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.TryAcquire("tenant-a", 3) {
			allowed++
		}
	}

	assert.LessOrEqual(t, allowed, 3)
	assert.GreaterOrEqual(t, allowed, 1)
}

func TestTryAcquireIsolatesTenants(t *testing.T) {
	l := ratelimit.New()
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryAcquire("tenant-a", 3))
	}
	assert.False(t, l.TryAcquire("tenant-a", 3))

	assert.True(t, l.TryAcquire("tenant-b", 3))
}

func TestTryAcquireFailsClosedOnZeroCapacity(t *testing.T) {
	l := ratelimit.New()
	defer l.Stop()

	assert.False(t, l.TryAcquire("tenant-a", 0))
	assert.False(t, l.TryAcquire("tenant-a", -1))
}
