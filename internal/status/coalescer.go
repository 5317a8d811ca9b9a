// Package status turns bursts of notification status toggles into single
// backend writes.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/climalert/internal/clock"
	"github.com/good-yellow-bee/climalert/internal/metrics"
	"github.com/good-yellow-bee/climalert/internal/models"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("status coalescer closed")

// Writer performs the backend status write.
type Writer interface {
	WriteStatus(ctx context.Context, notificationID string, status models.NotificationStatus) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, notificationID string, status models.NotificationStatus) error

func (f WriterFunc) WriteStatus(ctx context.Context, notificationID string, status models.NotificationStatus) error {
	return f(ctx, notificationID, status)
}

// Intent is a requested status change waiting for its quiet period.
type Intent struct {
	NotificationID string
	Target         models.NotificationStatus
	EnqueuedAt     time.Time
}

// WriteError is reported when a write failed on every attempt.
type WriteError struct {
	Intent   Intent
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("update status of %s to %s failed after %d attempts: %v",
		e.Intent.NotificationID, e.Intent.Target, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Config configures the coalescer.
type Config struct {
	Debounce     time.Duration // Quiet period before a write (default: 300ms)
	MaxAttempts  int           // Write attempts including the first (default: 3)
	RetryDelay   time.Duration // Pause between attempts (default: none)
	WriteTimeout time.Duration // Per-attempt timeout (default: 10s)
	Clock        clock.Clock
	Logger       zerolog.Logger
}

// DefaultConfig returns default coalescer configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:     300 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		Clock:        clock.Real{},
		Logger:       zerolog.Nop(),
	}
}

type pendingIntent struct {
	intent Intent
	timer  *time.Timer
	gen    uint64
}

// Coalescer debounces status intents per notification id and forwards the
// settled intent to a Writer. Writes are issued one at a time from a single
// worker in the order their quiet periods ended.
type Coalescer struct {
	writer Writer
	config Config
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pendingIntent
	queue   []Intent
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	errCh chan error
}

// New creates a coalescer and starts its write worker.
func New(writer Writer, config Config) *Coalescer {
	d := DefaultConfig()
	if config.Debounce <= 0 {
		config.Debounce = d.Debounce
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = d.MaxAttempts
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = d.WriteTimeout
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	if config.Clock == nil {
		config.Clock = d.Clock
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coalescer{
		writer:  writer,
		config:  config,
		logger:  config.Logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*pendingIntent),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		errCh:   make(chan error, 16),
	}
	go c.run()
	return c
}

// RequestStatusChange records the desired status and returns immediately.
// A later request for the same id within the debounce window replaces it.
func (c *Coalescer) RequestStatusChange(notificationID string, status models.NotificationStatus) error {
	if notificationID == "" {
		return errors.New("notification id is required")
	}
	if !status.Valid() {
		return fmt.Errorf("invalid notification status %q", status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	metrics.StatusRequestsTotal.Inc()

	intent := Intent{
		NotificationID: notificationID,
		Target:         status,
		EnqueuedAt:     c.config.Clock.Now(),
	}

	p, ok := c.pending[notificationID]
	if ok {
		p.timer.Stop()
		metrics.StatusCoalescedTotal.Inc()
		c.logger.Debug().
			Str("notification_id", notificationID).
			Str("superseded", string(p.intent.Target)).
			Str("status", string(status)).
			Msg("status intent superseded")
	} else {
		p = &pendingIntent{}
		c.pending[notificationID] = p
	}

	p.intent = intent
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(c.config.Debounce, func() {
		c.settle(notificationID, gen)
	})
	return nil
}

// Pending returns the number of intents still inside their quiet period.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Errors reports writes that failed on every attempt. Errors are dropped
// when nobody drains the channel.
func (c *Coalescer) Errors() <-chan error {
	return c.errCh
}

// Close flushes pending intents without waiting for their quiet period,
// waits for queued writes to finish and stops the worker. If ctx expires
// first, in-flight writes are canceled.
func (c *Coalescer) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	for id, p := range c.pending {
		p.timer.Stop()
		p.gen++
		c.queue = append(c.queue, p.intent)
		delete(c.pending, id)
	}
	c.signal()
	c.mu.Unlock()

	select {
	case <-c.done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-c.done
		return ctx.Err()
	}
}

// settle moves an intent whose quiet period ended to the write queue.
func (c *Coalescer) settle(notificationID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[notificationID]
	if !ok || p.gen != gen {
		return
	}
	delete(c.pending, notificationID)
	c.queue = append(c.queue, p.intent)
	c.signal()
}

// signal wakes the worker. Caller must hold c.mu.
func (c *Coalescer) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coalescer) run() {
	defer close(c.done)

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			<-c.wake
			continue
		}
		intent := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.write(intent)
	}
}

func (c *Coalescer) write(intent Intent) {
	log := c.logger.With().
		Str("notification_id", intent.NotificationID).
		Str("status", string(intent.Target)).
		Logger()

	var err error
	attempt := 0
	for attempt < c.config.MaxAttempts {
		attempt++

		wctx, cancel := context.WithTimeout(c.ctx, c.config.WriteTimeout)
		err = c.writer.WriteStatus(wctx, intent.NotificationID, intent.Target)
		cancel()

		if err == nil {
			metrics.StatusWritesTotal.WithLabelValues("success").Inc()
			log.Debug().Int("attempt", attempt).Msg("status updated")
			return
		}

		metrics.StatusWritesTotal.WithLabelValues("failure").Inc()
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.config.MaxAttempts).Msg("status update failed")

		if c.ctx.Err() != nil || attempt == c.config.MaxAttempts {
			break
		}
		if c.config.RetryDelay > 0 {
			t := time.NewTimer(c.config.RetryDelay)
			select {
			case <-t.C:
			case <-c.ctx.Done():
				t.Stop()
			}
		}
	}

	metrics.StatusWritesTotal.WithLabelValues("exhausted").Inc()
	werr := &WriteError{Intent: intent, Attempts: attempt, Err: err}
	log.Error().Err(err).Int("attempts", attempt).Msg("status update gave up")

	select {
	case c.errCh <- werr:
	default:
	}
}
