// Package backend builds the storage backend selected in configuration.
package backend

import (
	"context"

	"budgettracker/internal/rates"
	"budgettracker/internal/repository"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the store and where rate snapshots persist.
type BackendResult struct {
	Store repository.Store
	// Snapshots is normally Store itself; the memory backend keeps rates on
	// disk so they survive restarts.
	Snapshots rates.SnapshotStore
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// memory
	RatesCacheDir string

	// jsonfile
	DataDirectory string

	// sqlite
	SQLiteDBPath string

	// postgres
	PostgresURL string

	// RatesRedisURL overrides where rate snapshots persist, for any type.
	RatesRedisURL string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	JSONFileBackend BackendType = "jsonfile"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, JSONFileBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
