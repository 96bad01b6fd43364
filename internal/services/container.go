package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"poster-pipeline/internal/config"
	"poster-pipeline/internal/domain/series"
	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/platform/cache"
	"poster-pipeline/internal/platform/database"
	"poster-pipeline/internal/platform/storage"
	"poster-pipeline/internal/poster"
	"poster-pipeline/internal/presenter"
	"poster-pipeline/internal/services/implementations"
	"poster-pipeline/internal/workers"
)

// Container holds all the application dependencies
type Container struct {
	config  *config.Config
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.PipelineMetrics

	// Infrastructure
	store       storage.ArtifactStore
	redisClient *cache.RedisClient
	locker      cache.KeyLocker
	pool        *workers.Pool

	// Repositories
	posterRepository database.PosterRepository

	// Pipeline
	writer   *poster.Writer
	composer *presenter.Composer

	// Services
	cacheService  *implementations.CacheService
	posterService series.PosterService
}

// NewContainer creates a new dependency injection container. The database
// is owned by the caller; everything else is created and closed here.
func NewContainer(ctx context.Context, cfg *config.Config, db *sql.DB, logger *observability.Logger, metrics *observability.PipelineMetrics) (*Container, error) {
	container := &Container{
		config:  cfg,
		db:      db,
		logger:  logger,
		metrics: metrics,
	}

	if err := container.initializeServices(ctx); err != nil {
		_ = container.Close(ctx)
		return nil, err
	}

	return container, nil
}

// initializeServices initializes all services in the correct dependency order
func (c *Container) initializeServices(ctx context.Context) error {
	store, err := storage.New(ctx, c.config)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	c.store = store

	if c.config.Cache.Enabled {
		client, err := cache.NewRedisClient(c.config.Cache)
		if err != nil {
			return fmt.Errorf("failed to connect to cache: %w", err)
		}
		c.redisClient = client
		c.locker = cache.NewRedisLocker(client, c.config.Cache.LockTTL)
	} else {
		c.locker = cache.NewLocalLocker()
	}
	c.cacheService = implementations.NewCacheService(c.redisClient, c.logger)

	c.pool = workers.NewPool(c.config.Pipeline.Workers)
	c.posterRepository = database.NewPosterRepository(c.db)

	c.writer = poster.NewWriter(c.store, poster.Options{
		ThumbnailQuality: c.config.Pipeline.ThumbnailQuality,
		MaxPixels:        c.config.Pipeline.MaxPixels,
	}, c.logger, c.metrics)
	// Presenter assets are parsed once and shared read-only. Broken assets
	// only disable presenter generation.
	composer, err := presenter.LoadComposer(c.config.Presenter, c.store, c.config.Pipeline.PresenterQuality)
	if err != nil {
		c.logger.Error(ctx).Err(err).Msg("Presenter assets unavailable, presenter generation disabled")
	}
	c.composer = composer

	c.posterService = implementations.NewPosterService(implementations.PosterServiceDeps{
		Repository:    c.posterRepository,
		Cache:         c.cacheService,
		Locker:        c.locker,
		Pool:          c.pool,
		Writer:        c.writer,
		Composer:      c.composer,
		Store:         c.store,
		Logger:        c.logger,
		Metrics:       c.metrics,
		MaxUploadSize: c.config.Storage.MaxUploadSize,
	})

	c.logger.Info(ctx).
		Str("artifact_backend", c.config.Artifacts.Backend).
		Bool("cache_enabled", c.config.Cache.Enabled).
		Int("workers", c.pool.Size()).
		Msg("Dependency injection container initialized")
	return nil
}

// Getters for accessing services

func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) DB() *sql.DB {
	return c.db
}

func (c *Container) Logger() *observability.Logger {
	return c.logger
}

func (c *Container) Store() storage.ArtifactStore {
	return c.store
}

func (c *Container) PosterRepository() database.PosterRepository {
	return c.posterRepository
}

func (c *Container) PosterService() series.PosterService {
	return c.posterService
}

func (c *Container) CacheService() *implementations.CacheService {
	return c.cacheService
}

// Readiness runs every dependency check and returns the failures by name
func (c *Container) Readiness(ctx context.Context) map[string]error {
	checks := map[string]func(context.Context) error{
		"artifacts": c.store.Health,
		"cache":     c.cacheService.Health,
	}
	if c.db != nil {
		checks["database"] = c.db.PingContext
	}

	failures := make(map[string]error)
	for name, check := range checks {
		if err := check(ctx); err != nil {
			failures[name] = err
		}
	}
	return failures
}

// Close drains the worker pool and releases the cache connection
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.pool != nil {
		if err := c.pool.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain worker pool: %w", err))
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
