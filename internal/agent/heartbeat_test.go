package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/climalert/internal/clock"
)

func TestHeartbeatMonitor_IsStale(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	h := NewHeartbeatMonitor(HeartbeatConfig{}, clk)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"fresh", 0, false},
		{"just under timeout", 29 * time.Second, false},
		{"exactly timeout", 30 * time.Second, false},
		{"past timeout", 30*time.Second + time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.IsStale(start.Add(tt.elapsed), 30*time.Second))
		})
	}
}

func TestHeartbeatMonitor_RecordActivity(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)
	h := NewHeartbeatMonitor(HeartbeatConfig{}, clk)

	clk.Advance(40 * time.Second)
	require.True(t, h.IsStale(clk.Now(), 30*time.Second), "stale after 40s of silence")

	h.RecordActivity()
	assert.False(t, h.IsStale(clk.Now(), 30*time.Second), "fresh after activity")
	assert.True(t, h.LastSeen().Equal(clk.Now()), "LastSeen() = %v, want %v", h.LastSeen(), clk.Now())
}

func TestHeartbeatMonitor_WatchSignalsStale(t *testing.T) {
	h := NewHeartbeatMonitor(HeartbeatConfig{
		Timeout:       40 * time.Millisecond,
		CheckInterval: 10 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	select {
	case <-h.Watch(ctx):
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond, "stale signalled before timeout")
	case <-time.After(time.Second):
		t.Fatal("expected stale signal")
	}
}

func TestHeartbeatMonitor_WatchQuietWhileActive(t *testing.T) {
	h := NewHeartbeatMonitor(HeartbeatConfig{
		Timeout:       50 * time.Millisecond,
		CheckInterval: 10 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	staleCh := h.Watch(ctx)

	deadline := time.After(200 * time.Millisecond)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-staleCh:
			t.Fatal("stale signalled while activity was being recorded")
		case <-ticker.C:
			h.RecordActivity()
		case <-deadline:
			return
		}
	}
}
