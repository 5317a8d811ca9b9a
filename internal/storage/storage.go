// Package storage provides the durable key/value stores behind alert history.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// KV is a durable key/value store. Values are opaque byte slices.
type KV interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites the value stored under key.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the underlying resources.
	Close() error
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverJSONFile = "jsonfile"
	DriverSQLite   = "sqlite"
	DriverNATS     = "nats"
)

// Config selects and configures a KV backend.
type Config struct {
	Driver string
	// Path is the directory for jsonfile and the database file for sqlite.
	Path string
	// NATSURLs and NATSBucket configure the nats driver.
	NATSURLs   []string
	NATSBucket string
}

// Open creates the KV backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryKV(), nil
	case DriverJSONFile:
		return NewJSONFileKV(cfg.Path)
	case DriverSQLite:
		kv := NewSQLiteKV(cfg.Path)
		if err := kv.Open(ctx); err != nil {
			return nil, err
		}
		return kv, nil
	case DriverNATS:
		return NewNATSKV(cfg.NATSURLs, cfg.NATSBucket)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
