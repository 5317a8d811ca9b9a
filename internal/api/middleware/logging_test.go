package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		status  int
		wantLog bool
	}{
		{"quiet success", false, http.StatusOK, false},
		{"verbose success", true, http.StatusOK, true},
		{"quiet client error", false, http.StatusBadRequest, true},
		{"quiet server error", false, http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := RequestLogger(zerolog.New(&buf), tt.verbose)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("body"))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/state", nil))

			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			logged := strings.Contains(buf.String(), `"path":"/api/v1/state"`)
			assert.Equal(t, tt.wantLog, logged, buf.String())
		})
	}
}

func TestResponseWriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	var w http.ResponseWriter = &responseWriter{ResponseWriter: rec}
	f, ok := w.(http.Flusher)
	require.True(t, ok, "wrapper should implement http.Flusher")
	f.Flush()
	assert.True(t, rec.Flushed)
}
