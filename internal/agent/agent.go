package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/climalert/internal/alerting"
	"github.com/good-yellow-bee/climalert/internal/api"
	"github.com/good-yellow-bee/climalert/internal/api/health"
	"github.com/good-yellow-bee/climalert/internal/auth"
	"github.com/good-yellow-bee/climalert/internal/bus"
	"github.com/good-yellow-bee/climalert/internal/history"
	"github.com/good-yellow-bee/climalert/internal/logging"
	"github.com/good-yellow-bee/climalert/internal/metrics"
	"github.com/good-yellow-bee/climalert/internal/models"
	"github.com/good-yellow-bee/climalert/internal/notifier"
	"github.com/good-yellow-bee/climalert/internal/security"
	"github.com/good-yellow-bee/climalert/internal/status"
	"github.com/good-yellow-bee/climalert/internal/storage"
)

// Config contains agent configuration.
type Config struct {
	ServerURL string // Notification API base URL
	Token     string // Static bearer token
	TokenFile string // Token file, watched for changes; wins over Token
	TLS       *security.ClientTLSConfig

	Reconnect ReconnectPolicy
	Heartbeat HeartbeatConfig
	Status    status.Config
	Storage   storage.Config

	APIAddress        string // Empty disables the control API
	MetricsAddress    string // Empty disables the metrics endpoint
	StreamKeepAlive   time.Duration
	ShutdownTimeout   time.Duration // Bound on flushing status writes (default: 10s)
	NotifySendTimeout time.Duration

	Slack     *notifier.SlackConfig
	Teams     *notifier.TeamsConfig
	Telegram  *notifier.TelegramConfig
	RateLimit notifier.RateLimitConfig
	// NotifierFilters maps a notifier name to an expression selecting the
	// alerts it receives.
	NotifierFilters map[string]string

	Verbose bool
}

// Agent wires the stream, history, status writes and outer surfaces
// together and runs them until its context ends.
type Agent struct {
	config *Config
	logger zerolog.Logger

	tokens     auth.Provider
	tokenFile  *auth.FileProvider
	streamHTTP *http.Client
	writeHTTP  *http.Client
	kv         storage.KV
	bus        *bus.Bus
	history    *history.Store
	conn       *ConnManager
	coalescer  *status.Coalescer
	dispatcher *notifier.Dispatcher

	mu        sync.Mutex
	streamCtx context.Context
}

// New creates an agent. Nothing is opened until Run.
func New(cfg *Config, logger zerolog.Logger) (*Agent, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	a := &Agent{config: cfg, logger: logger}

	var err error
	if a.streamHTTP, err = security.NewHTTPClient(cfg.TLS, 0); err != nil {
		return nil, fmt.Errorf("stream client: %w", err)
	}
	if a.writeHTTP, err = security.NewHTTPClient(cfg.TLS, 30*time.Second); err != nil {
		return nil, fmt.Errorf("status client: %w", err)
	}

	if cfg.TokenFile != "" {
		a.tokenFile = auth.NewFileProvider(cfg.TokenFile, nil, logging.Component(logger, "auth"))
		a.tokens = a.tokenFile
	} else {
		a.tokens = auth.NewStaticProvider(cfg.Token, nil)
	}

	a.dispatcher = notifier.NewDispatcherWithRateLimit(cfg.RateLimit, nil)
	if cfg.Slack != nil {
		n, err := notifier.NewSlackNotifier(*cfg.Slack)
		if err != nil {
			return nil, err
		}
		if err := a.register(n); err != nil {
			return nil, err
		}
	}
	if cfg.Teams != nil {
		n, err := notifier.NewTeamsNotifier(*cfg.Teams)
		if err != nil {
			return nil, err
		}
		if err := a.register(n); err != nil {
			return nil, err
		}
	}
	if cfg.Telegram != nil {
		n, err := notifier.NewTelegramNotifier(*cfg.Telegram)
		if err != nil {
			return nil, err
		}
		if err := a.register(n); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// register adds n to the dispatcher with its configured filter, if any.
func (a *Agent) register(n notifier.Notifier) error {
	expr, ok := a.config.NotifierFilters[n.Name()]
	if !ok || expr == "" {
		a.dispatcher.Register(n)
		return nil
	}
	m, err := alerting.NewExprMatcher(expr)
	if err != nil {
		return fmt.Errorf("%s filter: %w", n.Name(), err)
	}
	a.dispatcher.RegisterFiltered(n, m)
	a.logger.Debug().Str("notifier", n.Name()).Str("filter", m.Expression()).Msg("notifier filter enabled")
	return nil
}

// History returns the alert history once Run has opened storage.
func (a *Agent) History() *history.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history
}

// Status implements api.StreamController.
func (a *Agent) Status() models.StreamStatus {
	return a.conn.Status()
}

// Resubscribe restarts the stream on the agent's lifetime context. It is
// a no-op while the stream is running.
func (a *Agent) Resubscribe() error {
	a.mu.Lock()
	ctx := a.streamCtx
	a.mu.Unlock()
	if ctx == nil {
		return errors.New("agent is not running")
	}
	a.logTokenInfo(ctx)
	return a.conn.Start(ctx)
}

// Disconnect implements api.StreamController.
func (a *Agent) Disconnect() {
	a.conn.Disconnect()
}

// Run opens storage, starts the stream and serves until ctx is canceled.
// Shutdown disconnects first, flushes pending status writes, closes the
// bus so consumers drain, then closes storage.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	kv, err := storage.Open(ctx, a.config.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.kv = kv

	a.bus = bus.New(bus.DefaultBuffer)
	hist := history.New(ctx, kv, logging.Component(a.logger, "history"))
	a.conn = NewConnManager(NewSSEClient(a.config.ServerURL, a.streamHTTP), a.tokens, a.bus, ConnManagerConfig{
		Policy:    a.config.Reconnect,
		Heartbeat: a.config.Heartbeat,
		Logger:    logging.Component(a.logger, "stream"),
	})

	statusCfg := a.config.Status
	statusCfg.Logger = logging.Component(a.logger, "status")
	a.coalescer = status.New(status.NewHTTPWriter(a.config.ServerURL, a.tokens, a.writeHTTP), statusCfg)

	a.mu.Lock()
	a.history = hist
	a.mu.Unlock()

	// Consumers stop when the bus closes so buffered alerts are not lost
	// on shutdown.
	var consumers sync.WaitGroup
	consumeCtx := context.WithoutCancel(ctx)
	histSub := a.bus.Subscribe()
	consumers.Add(1)
	go func() {
		defer consumers.Done()
		hist.Consume(consumeCtx, histSub)
	}()
	if names := a.dispatcher.Names(); len(names) > 0 {
		fwdSub := a.bus.Subscribe()
		fwd := notifier.NewForwarder(a.dispatcher, a.config.NotifySendTimeout, logging.Component(a.logger, "notifier"))
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			fwd.Run(consumeCtx, fwdSub)
		}()
		a.logger.Info().Strs("notifiers", names).Msg("alert forwarding enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	a.mu.Lock()
	a.streamCtx = gctx
	a.mu.Unlock()

	if a.tokenFile != nil {
		g.Go(func() error { return a.tokenFile.Watch(gctx) })
	}
	g.Go(func() error {
		a.drainErrors(gctx)
		return nil
	})
	if err := a.startSurfaces(gctx, g); err != nil {
		cancel()
		_ = g.Wait()
		return errors.Join(err, a.shutdown(&consumers))
	}

	a.logTokenInfo(gctx)
	if err := a.conn.Start(gctx); err != nil {
		a.logger.Warn().Err(err).Msg("start stream")
	}

	<-gctx.Done()
	a.logger.Info().Msg("shutting down")
	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if err := a.shutdown(&consumers); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *Agent) startSurfaces(ctx context.Context, g *errgroup.Group) error {
	if a.config.APIAddress != "" {
		srv, err := api.New(&api.Config{
			Address:         a.config.APIAddress,
			StreamKeepAlive: a.config.StreamKeepAlive,
			Verbose:         a.config.Verbose,
		}, api.Deps{
			Stream:  a,
			History: a.history,
			Status:  a.coalescer,
			Alerts:  a.bus,
		}, logging.Component(a.logger, "api"))
		if err != nil {
			return fmt.Errorf("create api: %w", err)
		}
		if p, ok := a.kv.(storage.Pinger); ok {
			srv.RegisterHealthChecker(health.NewStorageChecker(a.config.Storage.Driver, p))
		}
		srv.RegisterHealthChecker(health.NewStreamChecker(func() bool {
			return a.conn.State() == StateFailed
		}))
		g.Go(func() error { return srv.Run(ctx) })
	}

	if a.config.MetricsAddress != "" {
		ms := metrics.NewServer(a.config.MetricsAddress, logging.Component(a.logger, "metrics"))
		g.Go(ms.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}
	return nil
}

func (a *Agent) shutdown(consumers *sync.WaitGroup) error {
	a.conn.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	var errs []error
	if err := a.coalescer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush status writes: %w", err))
	}
	// Report failures from the final flush.
	for drained := false; !drained; {
		select {
		case err := <-a.coalescer.Errors():
			a.logStatusError(err)
		default:
			drained = true
		}
	}

	a.bus.Close()
	consumers.Wait()

	if err := a.dispatcher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.kv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

// drainErrors logs stream and status write failures.
func (a *Agent) drainErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-a.conn.Errors():
			switch {
			case errors.Is(err, ErrReconnectExhausted), errors.Is(err, ErrNoToken):
				a.logger.Error().Err(err).Msg("alert stream stopped; resubscribe to retry")
			default:
				a.logger.Warn().Err(err).Msg("alert stream error")
			}
		case err := <-a.coalescer.Errors():
			a.logStatusError(err)
		}
	}
}

func (a *Agent) logStatusError(err error) {
	var we *status.WriteError
	if errors.As(err, &we) {
		a.logger.Error().
			Err(we.Err).
			Str("notification_id", we.Intent.NotificationID).
			Str("status", string(we.Intent.Target)).
			Int("attempts", we.Attempts).
			Msg("status change not applied")
		return
	}
	a.logger.Error().Err(err).Msg("status write")
}

// logTokenInfo logs who the current token belongs to. Opaque tokens are
// not inspected.
func (a *Agent) logTokenInfo(ctx context.Context) {
	token, ok := a.tokens.Token(ctx)
	if !ok {
		a.logger.Warn().Msg("no usable auth token; stream will not connect")
		return
	}
	claims, err := auth.ParseClaims(token)
	if err != nil {
		return
	}
	evt := a.logger.Debug().Str("user_id", claims.UserID).Str("subject", claims.Subject)
	if claims.ExpiresAt != nil {
		evt = evt.Time("expires_at", claims.ExpiresAt.Time)
	}
	evt.Msg("using auth token")
}
