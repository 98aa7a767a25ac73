package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotStore persists the last known rate snapshot.
type SnapshotStore interface {
	// LoadSnapshot returns ok=false when nothing has been saved yet.
	LoadSnapshot(ctx context.Context) (snap Snapshot, ok bool, err error)
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	ClearSnapshot(ctx context.Context) error
}

// FileStore keeps the snapshot as a JSON document in a directory.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore stores the snapshot in dir under the fixed cache key.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, CacheKey+".json")}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) LoadSnapshot(_ context.Context) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read rate snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode rate snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *FileStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode rate snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write rate snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace rate snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) ClearSnapshot(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove rate snapshot: %w", err)
	}
	return nil
}

// MemoryStore is a SnapshotStore that lives only as long as the process.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

func (s *MemoryStore) LoadSnapshot(_ context.Context) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return Snapshot{}, false, nil
	}
	return s.snap.clone(), true, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := snap.clone()
	s.snap = &c
	return nil
}

func (s *MemoryStore) ClearSnapshot(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}
