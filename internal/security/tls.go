// Package security builds TLS settings for connections to the notification API.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ClientTLSConfig holds client TLS configuration.
type ClientTLSConfig struct {
	CAFile             string `yaml:"ca_file" toml:"ca_file"`                           // CA certificate for verifying the server
	CertFile           string `yaml:"cert_file" toml:"cert_file"`                       // Client certificate for mTLS
	KeyFile            string `yaml:"key_file" toml:"key_file"`                         // Client private key for mTLS
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"` // Skip server verification (dev only)
}

// Enabled reports whether any TLS setting differs from the system defaults.
func (c *ClientTLSConfig) Enabled() bool {
	return c != nil && (c.CAFile != "" || c.CertFile != "" || c.KeyFile != "" || c.InsecureSkipVerify)
}

// Validate checks that a client certificate comes with its key.
func (c *ClientTLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("tls: cert_file and key_file must be set together")
	}
	return nil
}

// LoadClientTLS builds a client TLS config. The system roots are used unless
// CAFile is set; a client certificate is presented only when configured.
func LoadClientTLS(cfg *ClientTLSConfig) (*tls.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CertFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}

	// Load CA certificate for server verification (unless skipping)
	if cfg.CAFile != "" && !cfg.InsecureSkipVerify {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to add CA certificate")
		}
		tlsConfig.RootCAs = caPool
	}

	return tlsConfig, nil
}

// NewHTTPClient returns an HTTP client using cfg. A zero timeout leaves
// requests unbounded, which long-lived streams need. A nil or empty cfg
// uses the default transport settings.
func NewHTTPClient(cfg *ClientTLSConfig, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	if !cfg.Enabled() {
		return client, nil
	}

	tlsConfig, err := LoadClientTLS(cfg)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	client.Transport = transport
	return client, nil
}
