// Package app builds the indexer from configuration and owns the lifetime
// of every long-lived component: stores, the queue, the vector index and
// the services wired over them.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/core/services"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
	"github.com/custodia-labs/sercha-indexer/internal/normalisers"
	"github.com/custodia-labs/sercha-indexer/internal/postprocessors"
)

const defaultShutdownTimeout = 30 * time.Second

// Options controls how the App is built.
type Options struct {
	// ConfigPath is the TOML file to read. Empty means ~/.sercha-indexer/config.toml.
	ConfigPath string

	// Verbose forces debug logging.
	Verbose bool

	// Embedder replaces the configured embedding provider.
	Embedder driven.EmbeddingService
}

// App holds the wired components. Fields are read-only after New.
type App struct {
	Settings        *domain.Settings
	SettingsService *services.SettingsService

	Chunks    driven.ChunkStore
	Documents driven.DocumentStore
	Queue     driven.IndexQueue
	Index     *flat.Index

	Generator  *services.EmbeddingGenerator
	Snapshots  *services.Snapshotter
	Indexer    *services.IndexService
	Reconciler *services.Reconciler
	Search     *services.SearchService
	Health     *services.HealthService
	Consumer   *services.Consumer

	closers []func() error
}

// OpenSettings returns a settings service over the TOML file at configPath,
// or ~/.sercha-indexer/config.toml when empty. Values are not validated so a
// broken file can still be inspected and repaired.
func OpenSettings(configPath string) (*services.SettingsService, error) {
	var (
		store *file.ConfigStore
		err   error
	)
	if configPath != "" {
		store, err = file.NewConfigStoreFromFile(configPath)
	} else {
		store, err = file.NewConfigStore("")
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return services.NewSettingsService(store), nil
}

// LoadSettings reads configuration and returns validated settings.
func LoadSettings(configPath string) (*services.SettingsService, *domain.Settings, error) {
	svc, err := OpenSettings(configPath)
	if err != nil {
		return nil, nil, err
	}
	settings, err := svc.Get()
	if err != nil {
		return nil, nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config %s: %w", svc.ConfigPath(), err)
	}
	return svc, settings, nil
}

// New loads configuration and wires the indexer. The vector index is
// loaded from its snapshot; reconciliation is left to the caller.
func New(ctx context.Context, opts Options) (*App, error) {
	settingsSvc, settings, err := LoadSettings(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Configure(logger.Config{Level: settings.Log.Level, Format: settings.Log.Format}); err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}
	if opts.Verbose {
		logger.SetVerbose(true)
	}

	a := &App{Settings: settings, SettingsService: settingsSvc}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	s := a.Settings
	logger.Section("startup")

	if err := a.openStorage(ctx); err != nil {
		return err
	}

	embedder := opts.Embedder
	if embedder == nil {
		var err error
		if embedder, err = ai.CreateEmbeddingService(&s.Embedding); err != nil {
			return fmt.Errorf("creating embedding service: %w", err)
		}
	}
	a.closers = append(a.closers, embedder.Close)
	if err := ai.CheckEmbeddingService(ctx, embedder); err != nil {
		// Searches and ingestion fail until the provider is reachable.
		logger.Warn("embedding provider not reachable", "provider", s.Embedding.Provider, "error", err)
	}
	a.Generator = services.NewEmbeddingGenerator(embedder, s.Embedding.BatchSize, s.Embedding.BatchTimeout)

	index, err := flat.New(embedder.Dimensions(), s.SnapshotPath())
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	if err := index.Load(ctx); err != nil {
		return fmt.Errorf("loading vector index: %w", err)
	}
	a.Index = index
	a.closers = append(a.closers, index.Close)

	pipeline, err := postprocessors.NewDefaultPipeline(s.Chunker)
	if err != nil {
		return err
	}

	lock := services.NewWriteLock()
	a.Snapshots = services.NewSnapshotter(index)
	a.Indexer = services.NewIndexService(services.IndexServiceDeps{
		Index:       index,
		Generator:   a.Generator,
		Chunks:      a.Chunks,
		Documents:   a.Documents,
		Queue:       a.Queue,
		Pipeline:    pipeline,
		Normalisers: normalisers.NewDefaultRegistry(),
		Lock:        lock,
		Snapshots:   a.Snapshots,
	})
	a.Reconciler = services.NewReconciler(index, a.Chunks, a.Generator, lock, a.Snapshots)
	a.Search = services.NewSearchService(index, a.Generator, a.Chunks, s.Search)
	a.Health = services.NewHealthService(a.Generator, index, a.Chunks)
	a.Consumer = services.NewConsumer(a.Queue, a.Documents, a.Indexer, s.Consumer.MaxAttempts)

	stats := index.Stats()
	logger.Info("indexer ready", "backend", s.Storage.Backend, "model", embedder.ModelName(),
		"dimension", embedder.Dimensions(), "vectors", stats.TotalVectors, "snapshot", s.SnapshotPath())
	return nil
}

// openStorage opens the chunk store, document store and queue.
// The queue always lives in SQLite under DataDir except for the memory
// backend, so queued work survives restarts with either persistent store.
func (a *App) openStorage(ctx context.Context) error {
	s := a.Settings
	queueOpts := sqlite.QueueOptions{
		LeaseTimeout: s.Consumer.LeaseTimeout,
		RetryDelay:   s.Consumer.RetryDelay,
		PollInterval: s.Consumer.PollInterval,
	}

	switch s.Storage.Backend {
	case domain.StorageMemory:
		store := memory.NewStore()
		queue := memory.NewQueue()
		a.Chunks, a.Documents, a.Queue = store, store, queue
		a.closers = append(a.closers, queue.Close)

	case domain.StoragePostgres:
		pg, err := postgres.NewStore(ctx, s.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("opening postgres store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)

		local, err := sqlite.NewStore(s.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening queue database: %w", err)
		}
		a.closers = append(a.closers, local.Close)

		queue := local.Queue(queueOpts)
		a.Chunks, a.Documents, a.Queue = pg, pg, queue
		a.closers = append(a.closers, queue.Close)

	case domain.StorageSQLite:
		store, err := sqlite.NewStore(s.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)

		queue := store.Queue(queueOpts)
		a.Chunks, a.Documents, a.Queue = store.ChunkStore(), store.DocumentStore(), queue
		a.closers = append(a.closers, queue.Close)

	default:
		return fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, s.Storage.Backend)
	}

	logger.Debug("storage opened", "backend", s.Storage.Backend,
		"data_dir", filepath.Clean(s.Storage.DataDir))
	return nil
}

// Close flushes pending snapshot writes and releases resources in reverse
// order of acquisition.
func (a *App) Close() error {
	var errs []error
	if a.Snapshots != nil {
		timeout := a.Settings.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.Snapshots.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing snapshots: %w", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
