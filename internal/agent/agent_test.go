package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/climalert/internal/models"
	"github.com/good-yellow-bee/climalert/internal/notifier"
	"github.com/good-yellow-bee/climalert/internal/security"
	"github.com/good-yellow-bee/climalert/internal/status"
	"github.com/good-yellow-bee/climalert/internal/storage"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"no server URL", &Config{}},
		{
			"invalid slack config",
			&Config{
				ServerURL: "http://localhost",
				Slack:     &notifier.SlackConfig{WebhookURL: "http://hooks.example.com"},
			},
		},
		{
			"invalid slack filter",
			&Config{
				ServerURL:       "http://localhost",
				Slack:           &notifier.SlackConfig{WebhookURL: "https://hooks.example.com/x"},
				NotifierFilters: map[string]string{"slack": `uf ==`},
			},
		},
		{
			"unreadable CA file",
			&Config{
				ServerURL: "https://localhost",
				TLS:       &security.ClientTLSConfig{CAFile: "/nonexistent/ca.crt"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, zerolog.Nop())
			assert.Error(t, err)
		})
	}
}

func TestAgentRunPersistsAlertsAndFlushesStatus(t *testing.T) {
	srv := newChaosServer(t)
	srv.setFrames(
		"event: weather-notification\ndata: {\"cityName\":\"Manaus\",\"uf\":\"AM\",\"minTemp\":25,\"maxTemp\":34,\"humidity\":80,\"description\":\"Calor intenso\"}\n\n",
	)
	dir := t.TempDir()

	a, err := New(&Config{
		ServerURL: srv.server.URL,
		Token:     "opaque-token",
		Storage:   storage.Config{Driver: storage.DriverJSONFile, Path: dir},
		Status:    status.Config{Debounce: time.Hour},
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		h := a.History()
		return h != nil && h.Len() == 1
	}, 5*time.Second, 10*time.Millisecond, "alert never reached history")

	st := a.Status()
	assert.Equal(t, StateConnected.String(), st.State)
	assert.True(t, st.Connected)

	// The debounce is far away; only shutdown can flush it.
	require.NoError(t, a.coalescer.RequestStatusChange("n-1", models.StatusPaused))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, "PAUSED", srv.writes()["n-1"])
	assert.Equal(t, StateDisconnected.String(), a.Status().State)

	data, err := os.ReadFile(filepath.Join(dir, "weather_notifications.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Manaus")
}

func TestAgentWithoutTokenFailsStream(t *testing.T) {
	srv := newChaosServer(t)
	a, err := New(&Config{ServerURL: srv.server.URL}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.History() != nil && a.conn.State() == StateFailed
	}, 2*time.Second, 5*time.Millisecond, "stream did not fail without a token")

	opens, _ := srv.stats()
	assert.Zero(t, opens)

	cancel()
	require.NoError(t, <-done)
}
