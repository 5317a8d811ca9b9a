package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  SlackConfig
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty config",
			config:  SlackConfig{},
			wantErr: true,
			errMsg:  "webhook URL is required",
		},
		{
			name:    "http URL rejected",
			config:  SlackConfig{WebhookURL: "http://hooks.slack.com/services/xxx"},
			wantErr: true,
			errMsg:  "webhook URL must use HTTPS",
		},
		{
			name:    "valid config",
			config:  SlackConfig{WebhookURL: "https://hooks.slack.com/services/T00/B00/xxx"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSlackNotifierSend(t *testing.T) {
	var receivedPayload slackMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &receivedPayload))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	// Use test server URL (allow non-HTTPS for testing)
	notifier := &SlackNotifier{
		config:     SlackConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	require.NoError(t, notifier.Send(context.Background(), testAlert()))

	assert.Contains(t, receivedPayload.Text, "Porto Alegre/RS", "fallback text")
	require.Len(t, receivedPayload.Blocks, 4)
	header := receivedPayload.Blocks[0]
	require.Equal(t, "header", header.Type)
	require.NotNil(t, header.Text)
	assert.Contains(t, header.Text.Text, "Porto Alegre/RS")
	assert.Contains(t, receivedPayload.Blocks[1].Fields[1].Text, "91%")
}

func TestSlackNotifierHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("invalid_payload"))
	}))
	defer server.Close()

	notifier := &SlackNotifier{
		config:     SlackConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	err := notifier.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_payload", "error should include body")
}

func TestSlackNotifierContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	notifier := &SlackNotifier{
		config:     SlackConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, notifier.Send(ctx, testAlert()))
}

func TestWeatherEmoji(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"Tempestade com granizo", "⛈️"},
		{"Chuva forte", "\U0001F327️"},
		{"Geada ao amanhecer", "❄️"},
		{"Onda de calor", "☀️"},
		{"Rajadas de vento", "\U0001F32C️"},
		{"Nublado", "\U0001F326️"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, weatherEmoji(tt.description), tt.description)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefghijkl", 8))
}
