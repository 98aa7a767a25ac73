package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgettracker/internal/rates"
	"budgettracker/internal/repository/jsonfile"
	"budgettracker/internal/repository/memory"
	"budgettracker/internal/storage"
	"budgettracker/internal/storage/postgres"
	"budgettracker/internal/storage/redisstore"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	case JSONFileBackend:
		result, err = f.createJSONFileBackend(config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		result, err = f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.RatesRedisURL != "" {
		if err := f.useRedisSnapshots(ctx, result, config.RatesRedisURL); err != nil {
			_ = result.Cleanup()
			return nil, err
		}
	}
	return result, nil
}

// useRedisSnapshots moves rate snapshots from the store to Redis.
func (f *DefaultFactory) useRedisSnapshots(ctx context.Context, result *BackendResult, url string) error {
	rs, err := redisstore.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis snapshot store: %w", err)
	}
	f.logger.Info("Rate snapshots stored in Redis", "component", "backend")

	storeCleanup := result.Cleanup
	result.Snapshots = rs
	result.Cleanup = func() error {
		return errors.Join(rs.Close(), storeCleanup())
	}
	return nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store := memory.New()

	var snapshots rates.SnapshotStore = store
	if config.RatesCacheDir != "" {
		snapshots = rates.NewFileStore(config.RatesCacheDir)
	}

	f.logger.Info("Initialized memory backend", "component", "backend", "rates_cache_dir", config.RatesCacheDir)

	return &BackendResult{
		Store:     store,
		Snapshots: snapshots,
		Cleanup:   store.Close,
	}, nil
}

func (f *DefaultFactory) createJSONFileBackend(config Config) (*BackendResult, error) {
	store, err := jsonfile.New(config.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JSON file store: %w", err)
	}

	f.logger.Info("Initialized JSON file backend", "component", "backend", "data_directory", config.DataDirectory)

	return &BackendResult{
		Store:     store,
		Snapshots: store,
		Cleanup:   store.Close,
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "component", "backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:     repo,
		Snapshots: repo,
		Cleanup:   repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := postgres.New(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}

	f.logger.Info("Initialized Postgres backend", "component", "backend")

	return &BackendResult{
		Store:     repo,
		Snapshots: repo,
		Cleanup:   repo.Close,
	}, nil
}
