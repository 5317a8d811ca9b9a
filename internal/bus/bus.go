// Package bus fans decoded alerts out to in-process consumers.
//
// Delivery has no replay: a subscriber only sees events published after it
// attached. Each subscriber owns a bounded channel and Publish waits until
// every attached subscriber accepted the event, so a slow consumer applies
// backpressure to the producer instead of losing alerts. Subscribers created
// WithDropOnFull never block the producer; events that do not fit their
// buffer are counted and discarded. Publish gives up when its context ends.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/climalert/internal/models"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus is a single-producer multicast of AlertEvents.
type Bus struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]*Subscription
	order  []string
	done   chan struct{}
	closed sync.Once
}

// Subscription is one consumer attached to a Bus.
type Subscription struct {
	id         string
	bus        *Bus
	ch         chan models.AlertEvent
	done       chan struct{}
	stop       sync.Once
	dropOnFull bool
	dropped    atomic.Uint64
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*Subscription)

// WithDropOnFull makes the subscription lossy: when its buffer is full the
// event is dropped for it instead of blocking Publish.
func WithDropOnFull() SubscribeOption {
	return func(s *Subscription) {
		s.dropOnFull = true
	}
}

// New creates a bus whose subscribers buffer up to buffer events.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		buffer: buffer,
		subs:   make(map[string]*Subscription),
		done:   make(chan struct{}),
	}
}

// Subscribe attaches a new consumer. After Close the returned
// subscription's channel is already closed.
func (b *Bus) Subscribe(opts ...SubscribeOption) *Subscription {
	s := &Subscription{
		id:   uuid.NewString(),
		bus:  b,
		ch:   make(chan models.AlertEvent, b.buffer),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		s.stop.Do(func() { close(s.done) })
		close(s.ch)
		return s
	default:
	}

	b.subs[s.id] = s
	b.order = append(b.order, s.id)
	return s
}

// Publish delivers ev to every attached subscriber in subscription order and
// returns how many accepted it. It stops early when ctx is done or the bus
// closes. It must not be called concurrently with itself.
func (b *Bus) Publish(ctx context.Context, ev models.AlertEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, id := range b.order {
		s := b.subs[id]
		if s.dropOnFull {
			select {
			case s.ch <- ev:
				delivered++
			default:
				s.dropped.Add(1)
			}
			continue
		}
		select {
		case s.ch <- ev:
			delivered++
		case <-s.done:
		case <-ctx.Done():
			return delivered
		case <-b.done:
			return delivered
		}
	}
	return delivered
}

// Len returns the number of attached subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every subscriber and closes their channels.
func (b *Bus) Close() {
	b.closed.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.order {
		s := b.subs[id]
		s.stop.Do(func() { close(s.done) })
		close(s.ch)
	}
	b.subs = make(map[string]*Subscription)
	b.order = nil
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	for i, id := range b.order {
		if id == s.id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	close(s.ch)
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Dropped returns how many events a WithDropOnFull subscription discarded.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// C returns the event channel. It is closed when the subscription or the
// bus is closed.
func (s *Subscription) C() <-chan models.AlertEvent {
	return s.ch
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.stop.Do(func() { close(s.done) })
	s.bus.remove(s)
}
