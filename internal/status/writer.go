package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/climalert/internal/models"
	"github.com/good-yellow-bee/climalert/pkg/config"
)

// ErrNoToken is returned when no credential is available for a write.
var ErrNoToken = errors.New("no auth token available")

// TokenSource provides the bearer token for status writes.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// HTTPWriter writes status changes to the notification API.
type HTTPWriter struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// NewHTTPWriter creates a writer for the API rooted at baseURL.
func NewHTTPWriter(baseURL string, tokens TokenSource, client *http.Client) *HTTPWriter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPWriter{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  client,
	}
}

// WriteStatus sends PUT /notification/{id}/status.
func (w *HTTPWriter) WriteStatus(ctx context.Context, notificationID string, status models.NotificationStatus) error {
	token, ok := w.tokens.Token(ctx)
	if !ok {
		return ErrNoToken
	}

	body, err := json.Marshal(models.StatusUpdate{Status: status})
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	endpoint := fmt.Sprintf("%s/notification/%s/status", w.baseURL, url.PathEscape(notificationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("User-Agent", config.UserAgent())

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
