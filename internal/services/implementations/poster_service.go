package implementations

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"poster-pipeline/internal/cachekey"
	"poster-pipeline/internal/domain/series"
	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/placeholder"
	"poster-pipeline/internal/platform/cache"
	"poster-pipeline/internal/platform/codec"
	"poster-pipeline/internal/platform/database"
	"poster-pipeline/internal/platform/storage"
	"poster-pipeline/internal/poster"
	"poster-pipeline/internal/presenter"
	"poster-pipeline/internal/workers"
)

const (
	importBatchSize    = 500
	migrationBatchSize = 200
	maxImportLineBytes = 1 << 20
)

// posterService implements series.PosterService
type posterService struct {
	repo          database.PosterRepository
	cache         series.RecordCache
	locker        cache.KeyLocker
	pool          *workers.Pool
	writer        *poster.Writer
	composer      *presenter.Composer
	store         storage.ArtifactStore
	logger        *observability.Logger
	metrics       *observability.PipelineMetrics
	maxUploadSize int64
}

// PosterServiceDeps groups the collaborators of the poster service. Cache
// may be nil.
type PosterServiceDeps struct {
	Repository    database.PosterRepository
	Cache         series.RecordCache
	Locker        cache.KeyLocker
	Pool          *workers.Pool
	Writer        *poster.Writer
	Composer      *presenter.Composer
	Store         storage.ArtifactStore
	Logger        *observability.Logger
	Metrics       *observability.PipelineMetrics
	MaxUploadSize int64
}

// NewPosterService creates a new poster service
func NewPosterService(deps PosterServiceDeps) series.PosterService {
	recordCache := deps.Cache
	if recordCache == nil {
		recordCache = NewCacheService(nil, nil)
	}
	return &posterService{
		repo:          deps.Repository,
		cache:         recordCache,
		locker:        deps.Locker,
		pool:          deps.Pool,
		writer:        deps.Writer,
		composer:      deps.Composer,
		store:         deps.Store,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		maxUploadSize: deps.MaxUploadSize,
	}
}

func lockKey(seriesID int64) string {
	return fmt.Sprintf("series:%d", seriesID)
}

// UploadPoster serializes regenerations of one series, keeps its key and
// runs the pipeline on a worker slot
func (s *posterService) UploadPoster(ctx context.Context, req series.UploadPosterRequest) (poster.CachedImage, error) {
	if err := req.Validate(s.maxUploadSize); err != nil {
		return poster.CachedImage{}, err
	}

	release, err := s.locker.Lock(ctx, lockKey(req.SeriesID))
	if err != nil {
		return poster.CachedImage{}, err
	}
	defer release()

	key, err := s.keyFor(ctx, req.SeriesID)
	if err != nil {
		return poster.CachedImage{}, err
	}

	result, err := s.generate(ctx, req, key)
	if err != nil {
		return poster.CachedImage{}, err
	}

	// A lock that expired during a slow run lets another upload store a key
	// for the series first. The stored key wins and the run is redone under it.
	if stored := result.Key; stored != key {
		s.logger.Warn(ctx).
			Int64("series_id", req.SeriesID).
			Str("allocated_key", key.String()).
			Str("stored_key", stored.String()).
			Msg("Series key changed during upload, regenerating under the stored key")
		s.removeDerivatives(ctx, key)

		result, err = s.generate(ctx, req, stored)
		if err != nil {
			return poster.CachedImage{}, err
		}
		if result.Key != stored {
			return poster.CachedImage{}, fmt.Errorf("%w: series %d changed key twice during one upload", database.ErrKeyConflict, req.SeriesID)
		}
	}

	s.cacheRecord(ctx, req.SeriesID, result)
	return result, nil
}

// generate runs the pipeline under key on a worker slot and upserts the
// record. The returned image carries the key the repository holds.
func (s *posterService) generate(ctx context.Context, req series.UploadPosterRequest, key cachekey.Key) (poster.CachedImage, error) {
	var result poster.CachedImage
	err := s.pool.Submit(ctx, func(ctx context.Context) error {
		var runErr error
		result, runErr = s.writer.Run(ctx, key, req.ContentType, req.Data)
		return runErr
	})
	if err != nil {
		return poster.CachedImage{}, fmt.Errorf("failed to process poster of series %d: %w", req.SeriesID, err)
	}

	record := &database.PosterRecord{
		SeriesID:           req.SeriesID,
		CacheKey:           result.Key.String(),
		Placeholder:        result.Placeholder,
		PlaceholderVersion: placeholder.Version,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return poster.CachedImage{}, err
	}

	stored, err := cachekey.Parse(record.CacheKey)
	if err != nil {
		return poster.CachedImage{}, err
	}
	result.Key = stored
	return result, nil
}

// removeDerivatives deletes the upload artifacts of a discarded key
func (s *posterService) removeDerivatives(ctx context.Context, key cachekey.Key) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	for _, variant := range []storage.Variant{storage.VariantFullres, storage.VariantThumbnail} {
		if err := s.store.Delete(cleanupCtx, storage.Path(variant, key)); err != nil {
			s.logger.Warn(ctx).Err(err).Str("cache_key", key.String()).Msg("Failed to remove artifacts of a discarded key")
		}
	}
}

// keyFor returns the stored key of a series or allocates one
func (s *posterService) keyFor(ctx context.Context, seriesID int64) (cachekey.Key, error) {
	record, err := s.repo.GetBySeries(ctx, seriesID)
	if errors.Is(err, database.ErrNotFound) {
		return cachekey.New()
	}
	if err != nil {
		return "", err
	}
	return cachekey.Parse(record.CacheKey)
}

func (s *posterService) GetPoster(ctx context.Context, seriesID int64) (poster.CachedImage, error) {
	if seriesID <= 0 {
		return poster.CachedImage{}, fmt.Errorf("%w: %d", series.ErrInvalidSeriesID, seriesID)
	}

	cached, err := s.cache.GetPoster(ctx, seriesID)
	if err == nil {
		return *cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn(ctx).Err(err).Int64("series_id", seriesID).Msg("Poster cache read failed")
	}

	record, err := s.repo.GetBySeries(ctx, seriesID)
	if errors.Is(err, database.ErrNotFound) {
		return poster.CachedImage{}, fmt.Errorf("%w: %d", series.ErrPosterNotFound, seriesID)
	}
	if err != nil {
		return poster.CachedImage{}, err
	}

	img, err := toCachedImage(record)
	if err != nil {
		return poster.CachedImage{}, err
	}
	s.cacheRecord(ctx, seriesID, img)
	return img, nil
}

// RegeneratePresenter renders pre/{key}.webp from the stored thumbnail.
// Rendering failures are recorded and reported in the result only.
func (s *posterService) RegeneratePresenter(ctx context.Context, seriesID int64, req series.PresenterRequest) (series.PresenterResult, error) {
	if err := req.Validate(); err != nil {
		return series.PresenterResult{}, err
	}

	img, err := s.GetPoster(ctx, seriesID)
	if err != nil {
		return series.PresenterResult{}, err
	}

	var accent placeholder.Placeholder
	if img.Placeholder != nil {
		accent, err = placeholder.Parse(*img.Placeholder)
		if err != nil {
			s.logger.Warn(ctx).Err(err).Int64("series_id", seriesID).Msg("Stored placeholder is invalid, using brand accent")
			accent = placeholder.Placeholder{}
		}
	}

	result := series.PresenterResult{Key: img.Key}

	release, err := s.locker.Lock(ctx, lockKey(seriesID))
	if err != nil {
		return s.presenterFailed(ctx, seriesID, result, err), nil
	}
	defer release()

	err = s.pool.Submit(ctx, func(ctx context.Context) error {
		return s.composer.Compose(ctx, img.Key, req.ToPresenter(accent))
	})
	if err != nil {
		return s.presenterFailed(ctx, seriesID, result, err), nil
	}

	result.Generated = true
	s.logger.Info(ctx).
		Int64("series_id", seriesID).
		Str("cache_key", img.Key.String()).
		Bool("brand_accent", !accent.HasAccent()).
		Msg("Presenter written")
	return result, nil
}

func (s *posterService) presenterFailed(ctx context.Context, seriesID int64, result series.PresenterResult, err error) series.PresenterResult {
	s.metrics.RecordPresenterFailure(ctx, presenterFailureReason(err))
	s.logger.Warn(ctx).
		Err(err).
		Int64("series_id", seriesID).
		Str("cache_key", result.Key.String()).
		Msg("Presenter generation failed")
	result.Error = err.Error()
	return result
}

func presenterFailureReason(err error) string {
	switch {
	case errors.Is(err, presenter.ErrFontLoad):
		return "font"
	case errors.Is(err, presenter.ErrPresenterIO):
		return "io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, cache.ErrLockNotAcquired):
		return "canceled"
	default:
		return "render"
	}
}

// ImportLegacy reads one JSON object per line. Invalid lines are counted and
// skipped, series that already have a record are left untouched.
func (s *posterService) ImportLegacy(ctx context.Context, r io.Reader) (series.ImportReport, error) {
	var report series.ImportReport

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLineBytes)

	batch := make([]*database.PosterRecord, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := s.repo.ImportLegacy(ctx, batch)
		if err != nil {
			return err
		}
		report.Inserted += inserted
		report.Skipped += int64(len(batch)) - inserted
		batch = batch[:0]
		return nil
	}

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		report.Read++

		var legacy series.LegacyRecord
		if err := json.Unmarshal(raw, &legacy); err != nil {
			report.Invalid++
			s.logger.Warn(ctx).Err(err).Int("line", line).Msg("Skipping malformed legacy record")
			continue
		}
		if err := legacy.Validate(); err != nil {
			report.Invalid++
			s.logger.Warn(ctx).Err(err).Int("line", line).Int64("series_id", legacy.SeriesID).Msg("Skipping invalid legacy record")
			continue
		}

		batch = append(batch, &database.PosterRecord{
			SeriesID:           legacy.SeriesID,
			CacheKey:           legacy.Key,
			Placeholder:        legacy.Placeholder,
			PlaceholderVersion: placeholder.LegacyVersion,
		})
		if len(batch) == importBatchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read legacy export at line %d: %w", line+1, err)
	}
	if err := flush(); err != nil {
		return report, err
	}

	s.logger.Info(ctx).
		Int("read", report.Read).
		Int("invalid", report.Invalid).
		Int64("inserted", report.Inserted).
		Int64("skipped", report.Skipped).
		Msg("Legacy import finished")
	return report, nil
}

type migration struct {
	placeholder *string
	recomputed  bool
}

// MigratePlaceholders rewrites version 1 records. A placeholder is recomputed
// from the stored thumbnail when there is one, otherwise the legacy accent is
// made explicit. Records that fail stay at version 1 and are reported.
// Each batch is migrated on the worker pool and written back in series order.
func (s *posterService) MigratePlaceholders(ctx context.Context) (series.MigrationReport, error) {
	var report series.MigrationReport
	var after int64

	for {
		records, err := s.repo.ListByPlaceholderVersion(ctx, placeholder.LegacyVersion, after, migrationBatchSize)
		if err != nil {
			return report, err
		}
		if len(records) == 0 {
			break
		}

		results := make([]migration, len(records))
		pending := make([]<-chan error, len(records))
		for i, record := range records {
			pending[i] = s.pool.Go(ctx, func(ctx context.Context) error {
				var err error
				results[i].placeholder, results[i].recomputed, err = s.migrateRecord(ctx, record)
				return err
			})
		}

		for i, record := range records {
			after = record.SeriesID
			report.Scanned++

			if err := <-pending[i]; err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failed++
				s.logger.Warn(ctx).Err(err).Int64("series_id", record.SeriesID).Msg("Placeholder migration failed")
				continue
			}

			migrated, recomputed := results[i].placeholder, results[i].recomputed
			if err := s.repo.UpdatePlaceholder(ctx, record.SeriesID, migrated, placeholder.Version); err != nil {
				return report, err
			}
			if err := s.cache.DeletePoster(ctx, record.SeriesID); err != nil {
				s.logger.Warn(ctx).Err(err).Int64("series_id", record.SeriesID).Msg("Poster cache invalidation failed")
			}

			if recomputed {
				report.Recomputed++
			} else {
				report.Converted++
			}
		}
	}

	remaining, err := s.repo.CountByPlaceholderVersion(ctx, placeholder.LegacyVersion)
	if err != nil {
		return report, err
	}
	report.Remaining = remaining

	s.logger.Info(ctx).
		Int("scanned", report.Scanned).
		Int("recomputed", report.Recomputed).
		Int("converted", report.Converted).
		Int("failed", report.Failed).
		Int64("remaining", report.Remaining).
		Msg("Placeholder migration finished")
	return report, nil
}

func (s *posterService) migrateRecord(ctx context.Context, record *database.PosterRecord) (*string, bool, error) {
	key, err := cachekey.Parse(record.CacheKey)
	if err != nil {
		return nil, false, err
	}

	thumbPath := storage.Path(storage.VariantThumbnail, key)
	exists, err := s.store.Exists(ctx, thumbPath)
	if err != nil {
		return nil, false, err
	}

	if exists {
		p, err := s.recompute(ctx, thumbPath)
		if err != nil {
			return nil, false, err
		}
		if !p.HasAccent() {
			s.metrics.RecordAccentMissing(ctx)
		}
		str := p.String()
		return &str, true, nil
	}

	if record.Placeholder == nil {
		return nil, false, nil
	}
	p, err := placeholder.FromLegacy(*record.Placeholder)
	if err != nil {
		return nil, false, err
	}
	str := p.String()
	return &str, false, nil
}

func (s *posterService) recompute(ctx context.Context, thumbPath string) (placeholder.Placeholder, error) {
	rc, err := s.store.Get(ctx, thumbPath)
	if err != nil {
		return placeholder.Placeholder{}, err
	}
	defer rc.Close()

	img, err := codec.WebP{}.Decode(rc)
	if err != nil {
		return placeholder.Placeholder{}, err
	}
	return placeholder.Encode(codec.ToRGB(img))
}

func (s *posterService) cacheRecord(ctx context.Context, seriesID int64, img poster.CachedImage) {
	if err := s.cache.SetPoster(ctx, seriesID, img); err != nil {
		s.logger.Warn(ctx).Err(err).Int64("series_id", seriesID).Msg("Poster cache write failed")
	}
}

func toCachedImage(record *database.PosterRecord) (poster.CachedImage, error) {
	key, err := cachekey.Parse(record.CacheKey)
	if err != nil {
		return poster.CachedImage{}, fmt.Errorf("stored record of series %d: %w", record.SeriesID, err)
	}
	return poster.CachedImage{Key: key, Placeholder: record.Placeholder}, nil
}
