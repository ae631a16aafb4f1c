package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/mail-failover/internal/counter"
	goredis "github.com/redis/go-redis/v9"
)

const defaultCounterKey = "mail-failover:attempt_count"

var _ counter.Store = (*CounterStore)(nil)

// CounterStore keeps the attempt counter in a single Redis string key.
// Durability across Redis restarts depends on the server's AOF/RDB settings.
type CounterStore struct {
	client *goredis.Client
	key    string
}

func NewCounterStore(client *goredis.Client, key string) (*CounterStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultCounterKey
	}

	return &CounterStore{
		client: client,
		key:    key,
	}, nil
}

func (s *CounterStore) Load(ctx context.Context) (int, error) {
	if s == nil || s.client == nil {
		return 0, fmt.Errorf("counter store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	value, err := s.client.Get(ctx, s.key).Int()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, counter.ErrNotFound
		}
		return 0, fmt.Errorf("failed to read attempt counter key %q: %w", s.key, err)
	}
	return value, nil
}

func (s *CounterStore) Save(ctx context.Context, value int) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("counter store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.client.Set(ctx, s.key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write attempt counter key %q: %w", s.key, err)
	}
	return nil
}
