package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/climalert/internal/models"
)

type tokens string

func (t tokens) Token(context.Context) (string, bool) { return string(t), t != "" }

func TestHTTPWriter_WriteStatus(t *testing.T) {
	var (
		gotMethod, gotPath, gotAuth, gotRequestID string
		gotBody                                   models.StatusUpdate
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	w := NewHTTPWriter(server.URL+"/", tokens("jwt-token"), nil)
	require.NoError(t, w.WriteStatus(context.Background(), "abc 123", models.StatusPaused))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/notification/abc%20123/status", gotPath)
	assert.Equal(t, "Bearer jwt-token", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, models.StatusPaused, gotBody.Status)
}

func TestHTTPWriter_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "notification not found", http.StatusNotFound)
	}))
	defer server.Close()

	err := NewHTTPWriter(server.URL, tokens("t"), nil).WriteStatus(context.Background(), "x", models.StatusActive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	err = NewHTTPWriter(server.URL, tokens(""), nil).WriteStatus(context.Background(), "x", models.StatusActive)
	assert.ErrorIs(t, err, ErrNoToken)
}
