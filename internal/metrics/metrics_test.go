package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsExposed(t *testing.T) {
	StreamReconnectsTotal.Inc()
	StatusWritesTotal.WithLabelValues("success").Inc()
	HistoryEntries.Set(3)

	assert.Equal(t, float64(3), testutil.ToFloat64(HistoryEntries))

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"climalert_stream_reconnects_total",
		"climalert_status_writes_total",
		"climalert_history_entries",
	} {
		assert.Contains(t, body, name)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", zerolog.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-errCh)
	assert.Equal(t, "127.0.0.1:0", s.Addr())
}
