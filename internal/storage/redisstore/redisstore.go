// Package redisstore keeps the rate snapshot in Redis, so every process
// pointed at the same instance reads the same rates.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"budgettracker/internal/rates"
)

const keyPrefix = "budgettracker:"

type Store struct {
	client *redis.Client
	key    string
}

var _ rates.SnapshotStore = (*Store)(nil)

// New connects to the Redis instance at url (redis:// or rediss://).
func New(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client), nil
}

func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, key: keyPrefix + rates.CacheKey}
}

func (s *Store) LoadSnapshot(ctx context.Context) (rates.Snapshot, bool, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return rates.Snapshot{}, false, nil
	}
	if err != nil {
		return rates.Snapshot{}, false, fmt.Errorf("get rate snapshot: %w", err)
	}
	var snap rates.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return rates.Snapshot{}, false, fmt.Errorf("decode rate snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snap rates.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode rate snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("set rate snapshot: %w", err)
	}
	return nil
}

func (s *Store) ClearSnapshot(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete rate snapshot: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
