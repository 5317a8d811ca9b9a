package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/climalert/internal/clock"
)

var t0 = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func TestRateLimiterBasic(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{MaxPerWindow: 3, Window: time.Second, Enabled: true}, clock.NewManual(t0))

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(), "4th request should be denied")
	assert.Equal(t, int64(1), rl.Dropped())
}

func TestRateLimiterRefill(t *testing.T) {
	clk := clock.NewManual(t0)
	rl := newRateLimiter(RateLimitConfig{MaxPerWindow: 2, Window: time.Minute, Enabled: true}, clk)

	rl.Allow()
	rl.Allow()
	require.False(t, rl.Allow(), "should be denied before refill")

	// One token every 30s.
	clk.Advance(30 * time.Second)
	assert.True(t, rl.Allow(), "allowed after one refill interval")
	assert.False(t, rl.Allow(), "only one token should have refilled")

	clk.Advance(time.Minute)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow(), "bucket should be full after a whole window")
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Hour, Enabled: false}, clock.NewManual(t0))
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow(), "request %d denied with limiting disabled", i+1)
	}
	assert.Zero(t, rl.Dropped())
}

func TestRateLimiterRelease(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{MaxPerWindow: 1, Window: time.Hour, Enabled: true}, clock.NewManual(t0))

	release, ok := rl.Acquire()
	require.True(t, ok, "first acquire should succeed")
	require.False(t, rl.Allow(), "bucket should be empty")
	release()
	assert.True(t, rl.Allow(), "released token should be usable again")
}

func TestRateLimiterStats(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{MaxPerWindow: 5, Window: time.Minute, Enabled: true}, clock.NewManual(t0))
	rl.Allow()
	rl.Allow()

	stats := rl.Stats()
	assert.InDelta(t, 3, stats.Available, 0.001)
	assert.Equal(t, 5, stats.MaxPerWindow)
	assert.Equal(t, time.Minute, stats.Window)
	assert.True(t, stats.Enabled)
}

func TestNewRateLimiterDefaults(t *testing.T) {
	stats := NewRateLimiter(RateLimitConfig{Enabled: true}).Stats()
	assert.Equal(t, 10, stats.MaxPerWindow)
	assert.Equal(t, time.Minute, stats.Window)

	def := DefaultRateLimitConfig()
	assert.Equal(t, 10, def.MaxPerWindow)
	assert.Equal(t, time.Minute, def.Window)
	assert.True(t, def.Enabled)
}
