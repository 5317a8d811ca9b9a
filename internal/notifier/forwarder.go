package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/climalert/internal/bus"
)

// DefaultSendTimeout bounds one Dispatch call.
const DefaultSendTimeout = 15 * time.Second

// Forwarder drains a bus subscription into a Dispatcher.
type Forwarder struct {
	dispatcher *Dispatcher
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewForwarder creates a forwarder for dispatcher.
func NewForwarder(dispatcher *Dispatcher, timeout time.Duration, logger zerolog.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Forwarder{dispatcher: dispatcher, timeout: timeout, logger: logger}
}

// Run forwards alerts until ctx is done or the subscription closes. The
// subscription is closed on return.
func (f *Forwarder) Run(ctx context.Context, sub *bus.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
			err := f.dispatcher.Dispatch(sendCtx, ev)
			cancel()
			switch {
			case err == nil:
			case errors.Is(err, ErrRateLimited):
				f.logger.Warn().Err(err).Str("location", ev.Location()).Msg("alert forwarding throttled")
			default:
				f.logger.Error().Err(err).Str("location", ev.Location()).Msg("forward alert")
			}
		}
	}
}
