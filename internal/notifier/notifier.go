// Package notifier forwards weather alerts to chat sinks.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/good-yellow-bee/climalert/internal/clock"
	"github.com/good-yellow-bee/climalert/internal/metrics"
	"github.com/good-yellow-bee/climalert/internal/models"
)

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the notifier name (e.g., "slack", "telegram").
	Name() string
	// Send forwards one alert.
	Send(ctx context.Context, ev models.AlertEvent) error
	// Close releases any resources.
	Close() error
}

// Filter decides whether a notifier receives an alert.
type Filter interface {
	Match(ev models.AlertEvent) (bool, error)
}

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = errors.New("notification rate limited")

// Dispatcher fans alerts out to registered notifiers. Each notifier gets
// its own rate limiter.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	limiters  map[string]*RateLimiter
	filters   map[string]Filter
	config    RateLimitConfig
	clock     clock.Clock
}

// NewDispatcher creates a new notification dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig(), nil)
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig, clk clock.Clock) *Dispatcher {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Dispatcher{
		notifiers: make(map[string]Notifier),
		limiters:  make(map[string]*RateLimiter),
		filters:   make(map[string]Filter),
		config:    config,
		clock:     clk,
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
	d.limiters[n.Name()] = newRateLimiter(d.config, d.clock)
	delete(d.filters, n.Name())
}

// RegisterFiltered adds a notifier that only receives alerts matching f.
func (d *Dispatcher) RegisterFiltered(n Notifier, f Filter) {
	d.Register(n)
	if f == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filters[n.Name()] = f
}

// Unregister removes a notifier from the dispatcher.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
	delete(d.limiters, name)
	delete(d.filters, name)
}

// Get returns a notifier by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Names returns the registered notifier names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.notifiers))
	for name := range d.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch sends ev to every registered notifier whose filter matches. A
// notifier over its rate limit is skipped and contributes ErrRateLimited to
// the returned error. A failed send refunds the rate limit token.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.AlertEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var errs []error
	for _, name := range d.sortedLocked() {
		n := d.notifiers[name]
		lim := d.limiters[name]

		if f := d.filters[name]; f != nil {
			matched, err := f.Match(ev)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: filter: %w", name, err))
				continue
			}
			if !matched {
				metrics.NotificationsSentTotal.WithLabelValues(name, "filtered").Inc()
				continue
			}
		}

		release, ok := lim.Acquire()
		if !ok {
			metrics.NotificationsRateLimitedTotal.WithLabelValues(name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrRateLimited))
			continue
		}
		if err := n.Send(ctx, ev); err != nil {
			release()
			metrics.NotificationsSentTotal.WithLabelValues(name, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		metrics.NotificationsSentTotal.WithLabelValues(name, "ok").Inc()
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) sortedLocked() []string {
	names := make([]string, 0, len(d.notifiers))
	for name := range d.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RateLimitStats returns the rate limiter statistics for one notifier.
func (d *Dispatcher) RateLimitStats(name string) RateLimitStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lim, ok := d.limiters[name]
	if !ok {
		return RateLimitStats{}
	}
	return lim.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)
	d.limiters = make(map[string]*RateLimiter)
	d.filters = make(map[string]Filter)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
