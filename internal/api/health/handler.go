// Package health serves the liveness and readiness endpoints for the agent.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/climalert/pkg/config"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 3 * time.Second

// Checker is one readiness dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler serves the health endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	started  time.Time
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewHandler creates a handler. Checks run with DefaultCheckTimeout.
func NewHandler(logger zerolog.Logger) *Handler {
	return &Handler{
		started: time.Now(),
		timeout: DefaultCheckTimeout,
		logger:  logger,
	}
}

// RegisterChecker adds a readiness dependency.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// Response is the health endpoint body.
type Response struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health reports that the process is up, with version and uptime.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	write(w, http.StatusOK, Response{
		Status:  "ok",
		Version: config.VersionString(),
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Live reports liveness.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	write(w, http.StatusOK, Response{Status: "live"})
}

// Ready runs every checker concurrently and answers 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checkers := append([]Checker(nil), h.checkers...)
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(checkers))
		healthy = true
	)
	for _, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()

			err := c.Check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				healthy = false
				results[c.Name()] = err.Error()
				h.logger.Warn().Err(err).Str("check", c.Name()).Msg("readiness check failed")
				return
			}
			results[c.Name()] = "ok"
		}()
	}
	wg.Wait()

	if !healthy {
		write(w, http.StatusServiceUnavailable, Response{Status: "not_ready", Checks: results})
		return
	}
	write(w, http.StatusOK, Response{Status: "ready", Checks: results})
}

func write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
