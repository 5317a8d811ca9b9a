package notifier

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/climalert/internal/clock"
)

// RateLimiter is a token bucket sized to MaxPerWindow that refills over Window.
type RateLimiter struct {
	limiter *rate.Limiter
	clock   clock.Clock
	config  RateLimitConfig
	dropped atomic.Int64
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum notifications per window (default: 10)
	Window       time.Duration // Time window (default: 1 minute)
	Enabled      bool          // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return newRateLimiter(config, clock.Real{})
}

func newRateLimiter(config RateLimitConfig, clk clock.Clock) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	every := rate.Every(config.Window / time.Duration(config.MaxPerWindow))
	return &RateLimiter{
		limiter: rate.NewLimiter(every, config.MaxPerWindow),
		clock:   clk,
		config:  config,
	}
}

// Allow reports whether a notification may be sent now.
func (r *RateLimiter) Allow() bool {
	_, ok := r.Acquire()
	return ok
}

// Acquire takes one token. The returned release func refunds it and must
// be called when the send it guarded failed.
func (r *RateLimiter) Acquire() (release func(), ok bool) {
	if !r.config.Enabled {
		return func() {}, true
	}
	now := r.clock.Now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() || res.DelayFrom(now) > 0 {
		res.CancelAt(now)
		r.dropped.Add(1)
		return nil, false
	}
	// Cancelling at the reservation instant is what restores the token.
	return func() { res.CancelAt(now) }, true
}

// Dropped returns the number of notifications dropped due to rate limiting.
func (r *RateLimiter) Dropped() int64 {
	return r.dropped.Load()
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	return RateLimitStats{
		Dropped:      r.dropped.Load(),
		Available:    r.limiter.TokensAt(r.clock.Now()),
		MaxPerWindow: r.config.MaxPerWindow,
		Window:       r.config.Window,
		Enabled:      r.config.Enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped      int64         // Total notifications dropped
	Available    float64       // Tokens left in the bucket
	MaxPerWindow int           // Maximum allowed per window
	Window       time.Duration // Window duration
	Enabled      bool          // Whether rate limiting is enabled
}
