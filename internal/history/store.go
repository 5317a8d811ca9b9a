// Package history keeps the bounded, persisted log of received alerts.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/climalert/internal/bus"
	"github.com/good-yellow-bee/climalert/internal/metrics"
	"github.com/good-yellow-bee/climalert/internal/models"
	"github.com/good-yellow-bee/climalert/internal/storage"
)

const (
	// StorageKey is the KV key holding the persisted history array.
	StorageKey = "weather_notifications"
	// MaxEntries is the history capacity.
	MaxEntries = 50
)

// Store is a newest-first alert log capped at MaxEntries and mirrored to a
// KV store. The in-memory log is authoritative; persistence failures are
// logged and returned but never roll back memory.
type Store struct {
	kv     storage.KV
	logger zerolog.Logger

	mu       sync.Mutex
	entries  []models.AlertEvent
	watchers map[int]chan []models.AlertEvent
	nextID   int
}

// New creates a store backed by kv and loads any persisted history.
func New(ctx context.Context, kv storage.KV, logger zerolog.Logger) *Store {
	s := &Store{
		kv:       kv,
		logger:   logger,
		entries:  []models.AlertEvent{},
		watchers: make(map[int]chan []models.AlertEvent),
	}
	if err := s.Load(ctx); err != nil {
		s.logger.Error().Err(err).Msg("load alert history")
	}
	return s
}

// Load replaces the in-memory log with the persisted copy. A missing key
// yields an empty log.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	var entries []models.AlertEvent
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("decode history: %w", err)
		}
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	if entries == nil {
		entries = []models.AlertEvent{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.broadcast()
	return nil
}

// Append inserts ev at the head, truncates to MaxEntries and persists the
// result before returning.
func (s *Store) Append(ctx context.Context, ev models.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]models.AlertEvent, 0, min(len(s.entries)+1, MaxEntries))
	entries = append(entries, ev)
	entries = append(entries, s.entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	s.entries = entries
	s.broadcast()

	return s.persist(ctx)
}

// List returns a snapshot of the log, newest first.
func (s *Store) List() []models.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear empties the log and removes the persisted copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = []models.AlertEvent{}
	s.broadcast()

	if err := s.kv.Delete(ctx, StorageKey); err != nil {
		metrics.HistoryPersistFailuresTotal.Inc()
		s.logger.Error().Err(err).Msg("remove persisted history")
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// Watch returns a channel that first yields the current log and then every
// subsequent state. Only the latest state is kept for a slow reader. The
// channel is closed when ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan []models.AlertEvent {
	ch := make(chan []models.AlertEvent, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.snapshot()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Consume appends every alert from sub until the subscription closes or ctx
// is done.
func (s *Store) Consume(ctx context.Context, sub *bus.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			// Errors are already logged; memory stays authoritative.
			_ = s.Append(ctx, ev)
		}
	}
}

// persist writes the current log. Caller must hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		metrics.HistoryPersistFailuresTotal.Inc()
		s.logger.Error().Err(err).Msg("encode history")
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.Put(ctx, StorageKey, data); err != nil {
		metrics.HistoryPersistFailuresTotal.Inc()
		s.logger.Error().Err(err).Int("entries", len(s.entries)).Msg("persist history")
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

// broadcast offers the current state to every watcher. Caller must hold s.mu.
func (s *Store) broadcast() {
	metrics.HistoryEntries.Set(float64(len(s.entries)))
	for _, ch := range s.watchers {
		offer(ch, s.snapshot())
	}
}

func (s *Store) snapshot() []models.AlertEvent {
	out := make([]models.AlertEvent, len(s.entries))
	copy(out, s.entries)
	return out
}

// offer replaces any unread value in ch with v.
func offer(ch chan []models.AlertEvent, v []models.AlertEvent) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
