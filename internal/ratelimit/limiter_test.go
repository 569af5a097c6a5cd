package ratelimit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKlineBurst(t *testing.T) {
	// 300 a minute allows a burst of five
	l := NewLimiter("kline", 300)
	assert.Equal(t, "kline", l.Name())
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(), "request %d", i)
	}
	assert.False(t, l.Allow())
}

func TestPenaltyWindowOpensOnThrottle(t *testing.T) {
	l := NewLimiter("kline", 600)
	assert.LessOrEqual(t, l.pause(), time.Duration(0))

	l.SignalRateLimited()
	p := l.pause()
	assert.Greater(t, p, time.Duration(0))
	assert.LessOrEqual(t, p, initialBackoff)
	assert.False(t, l.Allow(), "tokens are withheld inside the window")
}

func TestWaitSleepsThroughPenalty(t *testing.T) {
	l := NewLimiter("kline", 600)
	l.SignalRateLimited()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), initialBackoff-50*time.Millisecond)
	assert.True(t, l.Allow(), "the window is closed once waited out")
}

func TestWaitGivesUpInsidePenalty(t *testing.T) {
	l := NewLimiter("kline", 600)
	l.SignalRateLimited()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), initialBackoff)
}

func TestWaitCancelledContext(t *testing.T) {
	l := NewLimiter("kline", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestRepeatedThrottleLengthensWindow(t *testing.T) {
	l := NewLimiter("kline", 600)
	l.SignalRateLimited()
	assert.Equal(t, 2*initialBackoff, l.GetBackoff())

	// the second window uses the doubled backoff
	l.SignalRateLimited()
	assert.Greater(t, l.pause(), initialBackoff)
	assert.Equal(t, 4*initialBackoff, l.GetBackoff())

	for i := 0; i < 20; i++ {
		l.SignalRateLimited()
	}
	assert.Equal(t, 2*time.Minute, l.GetBackoff())
}

func TestResetBackoffLeavesOpenWindow(t *testing.T) {
	l := NewLimiter("kline", 600)
	l.SignalRateLimited()
	l.SignalRateLimited()

	l.ResetBackoff()
	assert.Equal(t, initialBackoff, l.GetBackoff())
	assert.Greater(t, l.pause(), time.Duration(0))
	assert.False(t, l.Allow())
}

func TestThrottleIsLogged(t *testing.T) {
	var buf bytes.Buffer
	l := NewLimiter("kline", 600).WithLogger(zerolog.New(&buf))
	l.SignalRateLimited()

	out := buf.String()
	assert.Contains(t, out, `"limiter":"kline"`)
	assert.Contains(t, out, "throttled by upstream")
}

func TestMultiLimiterRoutesByEndpoint(t *testing.T) {
	ml := NewMultiLimiter()
	kline := ml.Add("kline", 600)
	ml.Add("list", 60)

	assert.Same(t, kline, ml.Get("kline"))
	assert.NotNil(t, ml.Get("list"))
	assert.Nil(t, ml.Get("quote"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// a throttled endpoint does not hold up the others
	kline.SignalRateLimited()
	assert.Error(t, ml.Wait(ctx, "kline"))
	assert.NoError(t, ml.Wait(context.Background(), "list"))
	assert.NoError(t, ml.Wait(context.Background(), "quote"))
}
