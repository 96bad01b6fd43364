package series

import (
	"context"
	"io"

	"poster-pipeline/internal/poster"
)

// PosterService is the collaborator that owns poster records and runs the
// derivative pipeline on their behalf
type PosterService interface {
	// UploadPoster runs the pipeline for a series, reusing its key when it
	// already has one, and persists the resulting record
	UploadPoster(ctx context.Context, req UploadPosterRequest) (poster.CachedImage, error)
	GetPoster(ctx context.Context, seriesID int64) (poster.CachedImage, error)
	// RegeneratePresenter is best effort: only a missing record or an
	// invalid request is returned as an error
	RegeneratePresenter(ctx context.Context, seriesID int64, req PresenterRequest) (PresenterResult, error)
	// ImportLegacy loads a JSON-lines export as version 1 records
	ImportLegacy(ctx context.Context, r io.Reader) (ImportReport, error)
	// MigratePlaceholders rewrites every version 1 record to the canonical format
	MigratePlaceholders(ctx context.Context) (MigrationReport, error)
}

// RecordCache caches poster records per series. Implementations may drop
// entries at any time.
type RecordCache interface {
	GetPoster(ctx context.Context, seriesID int64) (*poster.CachedImage, error)
	SetPoster(ctx context.Context, seriesID int64, img poster.CachedImage) error
	DeletePoster(ctx context.Context, seriesID int64) error
}
