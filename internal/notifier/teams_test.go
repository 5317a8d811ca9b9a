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

func TestTeamsConfigValidation(t *testing.T) {
	assert.Error(t, (&TeamsConfig{}).Validate(), "empty config")
	assert.Error(t, (&TeamsConfig{WebhookURL: "http://example.com"}).Validate(), "plain HTTP URL")
	_, err := NewTeamsNotifier(TeamsConfig{WebhookURL: "https://example.webhook.office.com/x"})
	assert.NoError(t, err)
}

func TestTeamsNotifierSend(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier := &TeamsNotifier{
		config:     TeamsConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}
	assert.Equal(t, "teams", notifier.Name())

	require.NoError(t, notifier.Send(context.Background(), testAlert()))
	assert.Equal(t, "message", received["type"])

	raw, _ := json.Marshal(received)
	for _, want := range []string{"AdaptiveCard", "Porto Alegre/RS", "Min: 12°C, Max: 18°C", "Chuva forte prevista"} {
		assert.Contains(t, string(raw), want)
	}
}

func TestTeamsNotifierHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := &TeamsNotifier{
		config:     TeamsConfig{WebhookURL: server.URL},
		httpClient: server.Client(),
	}
	assert.Error(t, notifier.Send(context.Background(), testAlert()))
}
