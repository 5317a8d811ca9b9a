package health

import (
	"context"
	"fmt"
)

// Pinger interface for stores that support ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker checks the history backend.
type StorageChecker struct {
	name   string
	pinger Pinger
}

// NewStorageChecker creates a checker named after the storage driver.
func NewStorageChecker(driver string, p Pinger) *StorageChecker {
	return &StorageChecker{name: "storage:" + driver, pinger: p}
}

// Name returns the checker name.
func (c *StorageChecker) Name() string {
	return c.name
}

// Check verifies the store is reachable.
func (c *StorageChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("storage not configured")
	}
	return c.pinger.Ping(ctx)
}

// StreamChecker fails while the alert stream is in the failed state.
type StreamChecker struct {
	failed func() bool
}

// NewStreamChecker creates a stream checker.
func NewStreamChecker(failed func() bool) *StreamChecker {
	return &StreamChecker{failed: failed}
}

// Name returns the checker name.
func (c *StreamChecker) Name() string {
	return "stream"
}

// Check reports an error when the stream gave up reconnecting.
func (c *StreamChecker) Check(ctx context.Context) error {
	if c.failed == nil || c.failed() {
		return fmt.Errorf("alert stream failed")
	}
	return nil
}
