// Package api provides the local control API of the alert agent.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/climalert/internal/api/health"
	"github.com/good-yellow-bee/climalert/internal/bus"
	"github.com/good-yellow-bee/climalert/internal/models"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address         string
	StreamKeepAlive time.Duration // Comment interval on the alert relay
	Verbose         bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = "127.0.0.1:8787"
	}
	if c.StreamKeepAlive <= 0 {
		c.StreamKeepAlive = 15 * time.Second
	}
}

// StreamController exposes the alert stream connection.
type StreamController interface {
	Status() models.StreamStatus
	Resubscribe() error
	Disconnect()
}

// HistoryStore is the alert history view.
type HistoryStore interface {
	List() []models.AlertEvent
	Clear(ctx context.Context) error
}

// StatusRequester accepts notification status change intents.
type StatusRequester interface {
	RequestStatusChange(notificationID string, status models.NotificationStatus) error
}

// AlertSource hands out live alert subscriptions.
type AlertSource interface {
	Subscribe(opts ...bus.SubscribeOption) *bus.Subscription
}

// Deps are the components the API drives.
type Deps struct {
	Stream  StreamController
	History HistoryStore
	Status  StatusRequester
	Alerts  AlertSource
}

// Server is the HTTP API server.
type Server struct {
	config        *Config
	deps          Deps
	logger        zerolog.Logger
	server        *http.Server
	healthHandler *health.Handler
}

// New creates a new API server.
func New(cfg *Config, deps Deps, logger zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Stream == nil || deps.History == nil || deps.Status == nil || deps.Alerts == nil {
		return nil, fmt.Errorf("all api dependencies are required")
	}

	cfg.SetDefaults()

	s := &Server{
		config:        cfg,
		deps:          deps,
		logger:        logger,
		healthHandler: health.NewHandler(logger),
	}

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.setupRouter(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the alert relay is a long-lived stream.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("control API listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a health checker to the server.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
