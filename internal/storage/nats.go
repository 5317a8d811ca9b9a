package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSKV persists values in a JetStream key/value bucket.
type NATSKV struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// NewNATSKV connects to NATS and opens bucket, creating it if missing.
func NewNATSKV(urls []string, bucket string) (*NATSKV, error) {
	if len(urls) == 0 {
		return nil, errors.New("nats storage requires at least one url")
	}
	if bucket == "" {
		return nil, errors.New("nats storage requires a bucket")
	}

	nc, err := nats.Connect(strings.Join(urls, ","), nats.Name("climalert"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
	}

	return &NATSKV{nc: nc, kv: kv}, nil
}

func (s *NATSKV) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value(), nil
}

func (s *NATSKV) Put(_ context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *NATSKV) Delete(_ context.Context, key string) error {
	if err := s.kv.Delete(key); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the NATS connection is up.
func (s *NATSKV) Ping(_ context.Context) error {
	if !s.nc.IsConnected() {
		return fmt.Errorf("nats connection status: %s", s.nc.Status())
	}
	return nil
}

func (s *NATSKV) Close() error {
	s.nc.Close()
	return nil
}
