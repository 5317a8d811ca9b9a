package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/climalert/internal/clock"
)

// HeartbeatConfig configures liveness checking of the stream.
type HeartbeatConfig struct {
	Timeout       time.Duration // Silence tolerated before the stream is stale (default: 30s)
	CheckInterval time.Duration // How often staleness is checked (default: 5s)
}

// DefaultHeartbeatConfig returns default heartbeat configuration.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Timeout:       30 * time.Second,
		CheckInterval: 5 * time.Second,
	}
}

// HeartbeatMonitor tracks when the stream last showed signs of life.
// It only reads timestamps and signals; it never touches the connection.
type HeartbeatMonitor struct {
	config   HeartbeatConfig
	clock    clock.Clock
	lastSeen atomic.Int64 // unix nanoseconds
}

// NewHeartbeatMonitor creates a monitor. A nil clock uses the system clock.
func NewHeartbeatMonitor(config HeartbeatConfig, clk clock.Clock) *HeartbeatMonitor {
	d := DefaultHeartbeatConfig()
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = d.CheckInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	h := &HeartbeatMonitor{config: config, clock: clk}
	h.RecordActivity()
	return h
}

// RecordActivity stamps last-seen to now.
func (h *HeartbeatMonitor) RecordActivity() {
	h.lastSeen.Store(h.clock.Now().UnixNano())
}

// Reset is called when a connection is established.
func (h *HeartbeatMonitor) Reset() {
	h.RecordActivity()
}

// LastSeen returns the last activity timestamp.
func (h *HeartbeatMonitor) LastSeen() time.Time {
	return time.Unix(0, h.lastSeen.Load()).UTC()
}

// IsStale reports whether more than timeout has passed since last activity.
func (h *HeartbeatMonitor) IsStale(now time.Time, timeout time.Duration) bool {
	return now.Sub(h.LastSeen()) > timeout
}

// Config returns the effective configuration.
func (h *HeartbeatMonitor) Config() HeartbeatConfig {
	return h.config
}

// Watch checks staleness every CheckInterval until ctx is done. The returned
// channel receives one value when the stream goes stale, after which the
// check loop exits.
func (h *HeartbeatMonitor) Watch(ctx context.Context) <-chan struct{} {
	staleCh := make(chan struct{}, 1)

	go func() {
		ticker := time.NewTicker(h.config.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if h.IsStale(h.clock.Now(), h.config.Timeout) {
					select {
					case staleCh <- struct{}{}:
					default:
					}
					return
				}
			}
		}
	}()

	return staleCh
}
