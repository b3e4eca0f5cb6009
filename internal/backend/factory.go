// Package backend builds the blob store selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"subtrack/internal/cache"
	"subtrack/internal/storage"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Result is the opened store plus its cleanup. Ping is nil for stores
// without a remote dependency.
type Result struct {
	Store   cache.BlobStore
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Close runs Cleanup if set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory opens blob stores.
type Factory struct {
	logger *slog.Logger
	repo   *storage.SQLiteRepository
}

// NewFactory returns a factory. repo backs the sqlite store and may be nil
// when that type is never requested.
func NewFactory(repo *storage.SQLiteRepository, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger, repo: repo}
}

// Open creates the store described by cfg.
func (f *Factory) Open(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SQLiteBlobs:
		return f.openSQLite()
	case RedisBlobs:
		return f.openRedis(ctx, cfg)
	case MemoryBlobs:
		return f.openMemory(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.Type)
	}
}

func (f *Factory) openSQLite() (*Result, error) {
	if f.repo == nil {
		return nil, errors.New("sqlite blob backend requires a repository")
	}
	f.logger.Info("Initialized SQLite blob store")
	return &Result{Store: f.repo}, nil
}

func (f *Factory) openRedis(ctx context.Context, cfg Config) (*Result, error) {
	store, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis blob store: %w", err)
	}
	f.logger.Info("Initialized Redis blob store", "prefix", cfg.RedisPrefix)
	return &Result{Store: store, Ping: store.Ping, Cleanup: store.Close}, nil
}

func (f *Factory) openMemory(cfg Config) *Result {
	store := cache.NewMemoryStore(cfg.MemoryMaxEntries, cfg.MemoryTTL)
	res := &Result{Store: store}

	if cfg.CleanupInterval > 0 {
		manager := cache.NewManager(f.logger)
		manager.Register(store)
		manager.StartCleanup(cfg.CleanupInterval)
		res.Cleanup = func() error {
			manager.Stop()
			return nil
		}
	}
	f.logger.Info("Initialized memory blob store",
		"max_entries", cfg.MemoryMaxEntries,
		"cleanup_interval", cfg.CleanupInterval)
	return res
}
