package rates

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long a snapshot is considered fresh.
const DefaultTTL = time.Hour

// Cache holds the most recent rate snapshot in memory and mirrors it to a
// SnapshotStore. Stale snapshots are still served; staleness only tells the
// caller that a refresh is due.
type Cache struct {
	store SnapshotStore
	ttl   time.Duration
	now   func() time.Time

	mu   sync.RWMutex
	snap *Snapshot
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(store SnapshotStore, opts ...CacheOption) *Cache {
	if store == nil {
		store = &MemoryStore{}
	}
	c := &Cache{store: store, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the persisted snapshot into memory. It is meant to be called once
// at startup; a missing snapshot is not an error.
func (c *Cache) Load(ctx context.Context) error {
	snap, ok, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load rate cache: %w", err)
	}
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.snap = &snap
	c.mu.Unlock()

	slog.InfoContext(ctx, "Loaded cached exchange rates",
		"base", snap.BaseCurrency,
		"timestamp", snap.Timestamp,
		"stale", c.IsStale())
	return nil
}

// Get returns a copy of the current snapshot.
func (c *Cache) Get() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Snapshot{}, false
	}
	return c.snap.clone(), true
}

// Set replaces the snapshot and persists it. The in-memory copy is updated
// even when persisting fails.
func (c *Cache) Set(ctx context.Context, snap Snapshot) error {
	snap = snap.clone()
	c.mu.Lock()
	c.snap = &snap
	c.mu.Unlock()

	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("persist rate cache: %w", err)
	}
	return nil
}

func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
	return c.store.ClearSnapshot(ctx)
}

// IsStale reports whether there is no snapshot or it is older than the TTL.
func (c *Cache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return true
	}
	return c.now().Sub(c.snap.Timestamp) > c.ttl
}

// TimeSinceUpdate returns the whole seconds elapsed since the snapshot was
// taken. ok is false when there is no snapshot.
func (c *Cache) TimeSinceUpdate() (seconds int64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return 0, false
	}
	return int64(c.now().Sub(c.snap.Timestamp) / time.Second), true
}
