package database

import "context"

// PosterRepository defines data access for poster records
type PosterRepository interface {
	GetBySeries(ctx context.Context, seriesID int64) (*PosterRecord, error)
	// Upsert inserts or replaces the record of a series. The cache key of an
	// existing row never changes.
	Upsert(ctx context.Context, record *PosterRecord) error
	// ListByPlaceholderVersion pages through records with the given version,
	// ordered by series id, starting after afterSeriesID.
	ListByPlaceholderVersion(ctx context.Context, version int, afterSeriesID int64, limit int) ([]*PosterRecord, error)
	UpdatePlaceholder(ctx context.Context, seriesID int64, placeholder *string, version int) error
	// ImportLegacy bulk loads records, skipping series that already have one,
	// and returns how many rows were inserted.
	ImportLegacy(ctx context.Context, records []*PosterRecord) (int64, error)
	CountByPlaceholderVersion(ctx context.Context, version int) (int64, error)
}
