package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by a Store that has never been written.
var ErrNotFound = errors.New("attempt counter not found")

// Store persists the attempt counter. Save must be durable before it returns.
type Store interface {
	Load(ctx context.Context) (int, error)
	Save(ctx context.Context, value int) error
}

// Counter exclusively owns the process-wide count of consecutive failed
// attempts. Each mutation holds the lock across read, update and persist so
// concurrent callers never write the same stale value twice.
type Counter struct {
	mu    sync.Mutex
	value int
	store Store
}

func New(store Store) (*Counter, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	return &Counter{store: store}, nil
}

// Load reads the persisted value. On any error the counter keeps its
// in-memory default of 0 and the error is returned for logging.
func (c *Counter) Load(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, err := c.store.Load(ctx)
	if err != nil {
		return c.value, fmt.Errorf("failed to load attempt counter: %w", err)
	}
	if value < 0 {
		return c.value, fmt.Errorf("failed to load attempt counter: negative value %d", value)
	}

	c.value = value
	return c.value, nil
}

// Increment adds one failed attempt and returns the new value. A persistence
// error does not roll back the in-memory value.
func (c *Counter) Increment(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value++
	if err := c.store.Save(ctx, c.value); err != nil {
		return c.value, fmt.Errorf("failed to persist attempt counter: %w", err)
	}
	return c.value, nil
}

// Reset records a successful delivery.
func (c *Counter) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = 0
	if err := c.store.Save(ctx, 0); err != nil {
		return fmt.Errorf("failed to persist attempt counter: %w", err)
	}
	return nil
}

func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
