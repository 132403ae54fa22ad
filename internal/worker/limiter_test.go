package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_New(t *testing.T) {
	assert.Equal(t, 5, NewLimiter(10, 5).defaultBurst)
	assert.Equal(t, 5, NewLimiter(10, -1).defaultBurst, "negative burst falls back to the default")
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1) // 100 rps, burst 1
	ctx := context.Background()

	assert.NoError(t, limiter.Wait(ctx, "claim_detection"))
	// Different key has its own bucket
	assert.NoError(t, limiter.Wait(ctx, "verdict_generation"))
}

func TestLimiter_Paces(t *testing.T) {
	limiter := NewLimiter(20, 1) // one token every 50ms
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Wait(ctx, "evidence_gathering"))
	}

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_ = limiter.Wait(ctx, "k") // consumes the burst token
	assert.Error(t, limiter.Wait(ctx, "k"), "wait beyond the context deadline should fail")
}

func TestLimiter_DisabledRate(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("any"), "denied at call %d", i)
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(0, 1)
	limiter.SetRate("slow", 0.001, 1)

	require.True(t, limiter.Allow("slow"), "first call should use the burst token")
	assert.False(t, limiter.Allow("slow"), "second immediate call should be denied")
	assert.True(t, limiter.Allow("fast"), "keys without a custom rate stay unlimited")
}
