package implementations

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"poster-pipeline/internal/platform/cache"
	"poster-pipeline/internal/platform/database"
	"poster-pipeline/internal/poster"
)

// memoryRepository is an in-memory database.PosterRepository
type memoryRepository struct {
	mu      sync.Mutex
	records map[int64]*database.PosterRecord
	reads   int

	// beforeUpsert runs without the lock held
	beforeUpsert func(record *database.PosterRecord)
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: make(map[int64]*database.PosterRecord)}
}

func (r *memoryRepository) GetBySeries(_ context.Context, seriesID int64) (*database.PosterRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	record, ok := r.records[seriesID]
	if !ok {
		return nil, fmt.Errorf("%w: series %d", database.ErrNotFound, seriesID)
	}
	cp := *record
	return &cp, nil
}

func (r *memoryRepository) Upsert(_ context.Context, record *database.PosterRecord) error {
	if r.beforeUpsert != nil {
		r.beforeUpsert(record)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.records[record.SeriesID]; ok {
		existing.Placeholder = record.Placeholder
		existing.PlaceholderVersion = record.PlaceholderVersion
		existing.UpdatedAt = now
		record.CacheKey = existing.CacheKey
		return nil
	}
	for _, other := range r.records {
		if other.CacheKey == record.CacheKey {
			return database.ErrKeyConflict
		}
	}
	cp := *record
	cp.CreatedAt, cp.UpdatedAt = now, now
	r.records[record.SeriesID] = &cp
	return nil
}

func (r *memoryRepository) ListByPlaceholderVersion(_ context.Context, version int, after int64, limit int) ([]*database.PosterRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*database.PosterRecord
	for _, record := range r.records {
		if record.PlaceholderVersion == version && record.SeriesID > after {
			cp := *record
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeriesID < out[j].SeriesID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) UpdatePlaceholder(_ context.Context, seriesID int64, placeholder *string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[seriesID]
	if !ok {
		return database.ErrNotFound
	}
	record.Placeholder = placeholder
	record.PlaceholderVersion = version
	return nil
}

func (r *memoryRepository) ImportLegacy(_ context.Context, records []*database.PosterRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted int64
	for _, record := range records {
		if _, ok := r.records[record.SeriesID]; ok {
			continue
		}
		cp := *record
		r.records[record.SeriesID] = &cp
		inserted++
	}
	return inserted, nil
}

func (r *memoryRepository) CountByPlaceholderVersion(_ context.Context, version int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, record := range r.records {
		if record.PlaceholderVersion == version {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) get(seriesID int64) *database.PosterRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[seriesID]
}

// memoryCache is an in-memory series.RecordCache
type memoryCache struct {
	mu      sync.Mutex
	entries map[int64]poster.CachedImage
	hits    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[int64]poster.CachedImage)}
}

func (c *memoryCache) GetPoster(_ context.Context, seriesID int64) (*poster.CachedImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.entries[seriesID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	c.hits++
	return &img, nil
}

func (c *memoryCache) SetPoster(_ context.Context, seriesID int64, img poster.CachedImage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[seriesID] = img
	return nil
}

func (c *memoryCache) DeletePoster(_ context.Context, seriesID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, seriesID)
	return nil
}

func (c *memoryCache) has(seriesID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[seriesID]
	return ok
}
