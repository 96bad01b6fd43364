package implementations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/platform/cache"
	"poster-pipeline/internal/poster"
)

const (
	cacheBreakerFailures = 5
	cacheBreakerCooldown = 30 * time.Second
)

// recordStore is the part of *cache.RedisClient the record cache uses
type recordStore interface {
	GetPoster(ctx context.Context, seriesID int64) (*poster.CachedImage, error)
	SetPoster(ctx context.Context, seriesID int64, img poster.CachedImage) error
	DeletePoster(ctx context.Context, seriesID int64) error
	Health(ctx context.Context) error
}

// CacheService implements series.RecordCache on Redis/Valkey. With a nil
// client every read misses and every write is dropped, which is how the
// service runs when CACHE_ENABLED is false.
//
// Calls go through a circuit breaker: after repeated Redis failures the cache
// is bypassed for a cooldown, so reads fall through to Postgres without
// waiting on timeouts.
type CacheService struct {
	store   recordStore
	breaker *gobreaker.CircuitBreaker[*poster.CachedImage]
}

// NewCacheService creates a new cache service. logger may be nil.
func NewCacheService(client *cache.RedisClient, logger *observability.Logger) *CacheService {
	if client == nil {
		return newCacheService(nil, logger)
	}
	return newCacheService(client, logger)
}

func newCacheService(store recordStore, logger *observability.Logger) *CacheService {
	settings := gobreaker.Settings{
		Name:        "poster-cache",
		MaxRequests: 1,
		Timeout:     cacheBreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cacheBreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, cache.ErrCacheMiss)
		},
	}
	if logger != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background()).
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache circuit breaker changed state")
		}
	}

	return &CacheService{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker[*poster.CachedImage](settings),
	}
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// GetPoster retrieves a cached poster record. An open breaker reads as a miss.
func (c *CacheService) GetPoster(ctx context.Context, seriesID int64) (*poster.CachedImage, error) {
	if c.store == nil {
		return nil, cache.ErrCacheMiss
	}

	img, err := c.breaker.Execute(func() (*poster.CachedImage, error) {
		return c.store.GetPoster(ctx, seriesID)
	})
	if isBreakerOpen(err) {
		return nil, cache.ErrCacheMiss
	}
	return img, err
}

// SetPoster caches a poster record
func (c *CacheService) SetPoster(ctx context.Context, seriesID int64, img poster.CachedImage) error {
	if c.store == nil {
		return nil
	}

	_, err := c.breaker.Execute(func() (*poster.CachedImage, error) {
		return nil, c.store.SetPoster(ctx, seriesID, img)
	})
	if isBreakerOpen(err) {
		return fmt.Errorf("cache bypassed: %w", err)
	}
	return err
}

// DeletePoster removes a poster record from cache
func (c *CacheService) DeletePoster(ctx context.Context, seriesID int64) error {
	if c.store == nil {
		return nil
	}

	_, err := c.breaker.Execute(func() (*poster.CachedImage, error) {
		return nil, c.store.DeletePoster(ctx, seriesID)
	})
	if isBreakerOpen(err) {
		return fmt.Errorf("cache bypassed: %w", err)
	}
	return err
}

// Enabled reports whether a Redis client backs the cache
func (c *CacheService) Enabled() bool {
	return c.store != nil
}

// Health pings Redis directly, bypassing the breaker. A disabled cache is healthy.
func (c *CacheService) Health(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	return c.store.Health(ctx)
}
