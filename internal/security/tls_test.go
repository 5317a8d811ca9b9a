package security

import (
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.crt")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewHTTPClientTrustsConfiguredCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(&ClientTLSConfig{CAFile: writeServerCA(t, srv)}, 5*time.Second)
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNewHTTPClientWithoutCARejectsSelfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client, err := NewHTTPClient(nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.Timeout)

	_, err = client.Get(srv.URL)
	assert.Error(t, err, "certificate verification should fail")
}

func TestNewHTTPClientInsecureSkipVerify(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client, err := NewHTTPClient(&ClientTLSConfig{InsecureSkipVerify: true}, 0)
	require.NoError(t, err)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestLoadClientTLSErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientTLSConfig
		wantErr string
	}{
		{
			name:    "cert without key",
			cfg:     ClientTLSConfig{CertFile: "client.crt"},
			wantErr: "must be set together",
		},
		{
			name:    "missing CA file",
			cfg:     ClientTLSConfig{CAFile: filepath.Join(t.TempDir(), "missing.crt")},
			wantErr: "read CA certificate",
		},
		{
			name:    "missing client cert",
			cfg:     ClientTLSConfig{CertFile: "nope.crt", KeyFile: "nope.key"},
			wantErr: "load client certificate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClientTLS(&tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadClientTLSBadPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))
	_, err := LoadClientTLS(&ClientTLSConfig{CAFile: path})
	assert.Error(t, err, "invalid PEM")
}
