// Package locks provides per-order mutual exclusion within a single process.
// It is explicitly not a distributed lock: running more than one dispatcher
// against the same queue requires replacing this with a durable lease.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout means the lock could not be acquired within the bounded wait.
var ErrLockTimeout = errors.New("timed out waiting for order lock")

// Table is an in-memory lock registry keyed by source order id.
type Table struct {
	mu           sync.Mutex
	held         map[string]time.Time
	pollInterval time.Duration
}

// NewTable returns an empty lock table polling every 100ms during acquire.
func NewTable() *Table {
	return &Table{
		held:         make(map[string]time.Time),
		pollInterval: 100 * time.Millisecond,
	}
}

// Acquire claims the lock for id, polling until it is free or timeout
// elapses. No fairness guarantee.
func (t *Table) Acquire(ctx context.Context, id string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if t.tryAcquire(id) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.pollInterval):
		}
	}
}

// Release frees the lock for id unconditionally.
func (t *Table) Release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
}

func (t *Table) tryAcquire(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.held[id]; taken {
		return false
	}
	t.held[id] = time.Now()
	return true
}
