package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/climalert/internal/bus"
	"github.com/good-yellow-bee/climalert/internal/clock"
	"github.com/good-yellow-bee/climalert/internal/metrics"
	"github.com/good-yellow-bee/climalert/internal/models"
)

// State represents the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrNoToken means the token source had nothing to offer. It is fatal
	// for the current subscription and does not consume a reconnect attempt.
	ErrNoToken = errors.New("no auth token available")
	// ErrReconnectExhausted is reported when the manager gives up.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrHeartbeatStale is reported when the stream went silent.
	ErrHeartbeatStale = errors.New("no heartbeat or data within timeout")
	// ErrServerError is reported when the server sends an error event.
	ErrServerError = errors.New("server sent error event")
)

// TokenSource provides the credential used to open the stream.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}

// ConnManagerConfig configures the connection manager.
type ConnManagerConfig struct {
	Policy    ReconnectPolicy
	Heartbeat HeartbeatConfig
	Clock     clock.Clock
	Logger    zerolog.Logger
}

// ConnManager owns the stream connection and drives its state machine.
// All transitions, frame handling and timers run on a single goroutine;
// the other methods only signal it.
type ConnManager struct {
	policy    ReconnectPolicy
	dialer    Dialer
	tokens    TokenSource
	bus       *bus.Bus
	codec     *Codec
	heartbeat *HeartbeatMonitor
	logger    zerolog.Logger

	state    atomic.Int32
	attempts atomic.Int32
	errCh    chan error

	cbMu          sync.RWMutex
	onStateChange func(State)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnManager creates a connection manager publishing decoded alerts to b.
func NewConnManager(dialer Dialer, tokens TokenSource, b *bus.Bus, config ConnManagerConfig) *ConnManager {
	cm := &ConnManager{
		policy:    config.Policy.withDefaults(),
		dialer:    dialer,
		tokens:    tokens,
		bus:       b,
		codec:     NewCodec(config.Clock),
		heartbeat: NewHeartbeatMonitor(config.Heartbeat, config.Clock),
		logger:    config.Logger,
		errCh:     make(chan error, 16),
	}
	cm.state.Store(int32(StateDisconnected))
	return cm
}

// SetCallbacks sets the state change callback. It runs on the manager
// goroutine and must not block.
func (cm *ConnManager) SetCallbacks(onStateChange func(State)) {
	cm.cbMu.Lock()
	defer cm.cbMu.Unlock()
	cm.onStateChange = onStateChange
}

// State returns the current connection state.
func (cm *ConnManager) State() State {
	return State(cm.state.Load())
}

// IsConnected returns true if currently connected.
func (cm *ConnManager) IsConnected() bool {
	return cm.State() == StateConnected
}

// Attempts returns the current reconnect attempt count.
func (cm *ConnManager) Attempts() int {
	return int(cm.attempts.Load())
}

// Status returns a snapshot of the connection for reporting.
func (cm *ConnManager) Status() models.StreamStatus {
	st := models.StreamStatus{
		State:       cm.State().String(),
		Connected:   cm.IsConnected(),
		Attempts:    cm.Attempts(),
		Subscribers: cm.bus.Len(),
	}
	if seen := cm.heartbeat.LastSeen(); seen.UnixNano() > 0 {
		st.LastActivity = &seen
	}
	return st
}

// Heartbeat exposes the liveness monitor.
func (cm *ConnManager) Heartbeat() *HeartbeatMonitor {
	return cm.heartbeat
}

// Errors reports connection failures. Recoverable failures are reported
// too; Failed is reached only after ErrNoToken or ErrReconnectExhausted.
// Errors are dropped when nobody drains the channel.
func (cm *ConnManager) Errors() <-chan error {
	return cm.errCh
}

// Subscribe attaches a new alert subscription and starts the connection if
// it is not already running. Subscribing after Failed starts over with a
// fresh attempt budget.
func (cm *ConnManager) Subscribe(ctx context.Context) (*bus.Subscription, error) {
	sub := cm.bus.Subscribe()
	if err := cm.Start(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Start runs the connection loop until ctx is done, Disconnect is called,
// or the manager fails. It is a no-op while the loop is running.
func (cm *ConnManager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.done != nil {
		if cm.State() == StateFailed {
			<-cm.done
		}
		select {
		case <-cm.done:
		default:
			return nil
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	cm.cancel = cancel
	cm.done = done
	cm.attempts.Store(0)

	go cm.run(runCtx, done)
	return nil
}

// Disconnect tears down the connection and cancels any pending reconnect.
// It blocks until the connection goroutine has exited.
func (cm *ConnManager) Disconnect() {
	cm.mu.Lock()
	cancel, done := cm.cancel, cm.done
	cm.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	cm.setState(StateDisconnected)
}

func (cm *ConnManager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := cm.connect(ctx)
		if ctx.Err() != nil {
			cm.setState(StateDisconnected)
			return
		}

		if errors.Is(err, ErrNoToken) {
			cm.logger.Error().Msg("no auth token available, not connecting")
			cm.report(err)
			cm.setState(StateFailed)
			return
		}

		cm.report(err)

		failures := cm.Attempts() + 1
		cm.attempts.Store(int32(failures))
		// The next open would be attempt failures+1 of this run.
		if !cm.policy.ShouldRetry(failures + 1) {
			cm.logger.Error().Err(err).Int("max_attempts", cm.policy.MaxAttempts).Msg("max reconnection attempts reached")
			cm.report(fmt.Errorf("%w: %w", ErrReconnectExhausted, err))
			cm.setState(StateFailed)
			return
		}

		delay := cm.policy.NextDelay(failures)
		cm.setState(StateReconnecting)
		metrics.StreamReconnectsTotal.Inc()
		cm.logger.Warn().Err(err).
			Int("attempt", failures).
			Int("max_attempts", cm.policy.MaxAttempts).
			Dur("delay", delay).
			Msg("connection lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			cm.setState(StateDisconnected)
			return
		case <-timer.C:
		}
	}
}

// connect opens one stream and serves it until it fails.
func (cm *ConnManager) connect(ctx context.Context) error {
	cm.setState(StateConnecting)

	token, ok := cm.tokens.Token(ctx)
	if !ok {
		return ErrNoToken
	}

	stream, err := cm.dialer.Open(ctx, token)
	if err != nil {
		metrics.StreamConnectsTotal.WithLabelValues("failure").Inc()
		return err
	}
	defer stream.Close()

	metrics.StreamConnectsTotal.WithLabelValues("success").Inc()
	cm.attempts.Store(0)
	cm.heartbeat.Reset()
	cm.setState(StateConnected)

	return cm.serve(ctx, stream)
}

// serve processes frames in arrival order until the stream errors, the
// heartbeat goes stale, or ctx is done. A publish blocked on a slow
// subscriber is abandoned when either of the latter happens.
func (cm *ConnManager) serve(ctx context.Context, stream EventStream) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan Frame)
	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := stream.Next()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-serveCtx.Done():
				return
			}
		}
	}()

	// stale is closed once the heartbeat watchdog fires; it also cancels
	// pubCtx so an in-flight Publish returns.
	pubCtx, pubCancel := context.WithCancel(serveCtx)
	defer pubCancel()
	stale := make(chan struct{})
	watch := cm.heartbeat.Watch(serveCtx)
	go func() {
		select {
		case <-watch:
			close(stale)
			pubCancel()
		case <-serveCtx.Done():
		}
	}()
	staleErr := func() error {
		metrics.StreamHeartbeatStaleTotal.Inc()
		return fmt.Errorf("%w (last seen %s)", ErrHeartbeatStale, cm.heartbeat.LastSeen().Format(time.RFC3339))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("read stream: %w", err)
		case <-stale:
			return staleErr()
		case f := <-frames:
			if err := cm.handleFrame(pubCtx, f); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-stale:
				return staleErr()
			default:
			}
		}
	}
}

func (cm *ConnManager) handleFrame(ctx context.Context, f Frame) error {
	cm.heartbeat.RecordActivity()
	if f.Comment {
		return nil
	}

	switch f.Event {
	case EventOpen:
		metrics.StreamFramesTotal.WithLabelValues(f.Event).Inc()
		cm.logger.Debug().Msg("stream open event received")
	case EventHeartbeat:
		metrics.StreamFramesTotal.WithLabelValues(f.Event).Inc()
		cm.logger.Trace().Msg("heartbeat received")
	case EventWeatherNotification:
		metrics.StreamFramesTotal.WithLabelValues(f.Event).Inc()
		ev, err := cm.codec.Decode([]byte(f.Data))
		if err != nil {
			metrics.StreamDecodeFailuresTotal.Inc()
			cm.logger.Warn().Err(err).Str("event_id", f.ID).Msg("dropping weather alert")
			return nil
		}
		if cm.bus.Publish(ctx, ev) < cm.bus.Len() && ctx.Err() != nil {
			cm.logger.Warn().Str("city", ev.CityName).Msg("alert publish interrupted before all subscribers received it")
		}
		metrics.AlertsPublishedTotal.Inc()
		cm.logger.Debug().Str("city", ev.CityName).Str("uf", ev.RegionCode).Msg("weather alert received")
	case EventError:
		metrics.StreamFramesTotal.WithLabelValues(f.Event).Inc()
		return fmt.Errorf("%w: %s", ErrServerError, f.Data)
	default:
		metrics.StreamFramesTotal.WithLabelValues("other").Inc()
		cm.logger.Debug().Str("event", f.Event).Msg("ignoring unknown event")
	}
	return nil
}

func (cm *ConnManager) report(err error) {
	select {
	case cm.errCh <- err:
	default:
		cm.logger.Debug().Err(err).Msg("error channel full, dropping")
	}
}

// setState updates the state and notifies callback.
func (cm *ConnManager) setState(state State) {
	old := State(cm.state.Swap(int32(state)))
	if old == state {
		return
	}
	metrics.StreamState.Set(float64(state))
	cm.logger.Info().Stringer("from", old).Stringer("to", state).Msg("connection state")

	cm.cbMu.RLock()
	cb := cm.onStateChange
	cm.cbMu.RUnlock()
	if cb != nil {
		cb(state)
	}
}
