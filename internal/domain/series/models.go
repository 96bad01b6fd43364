// Package series holds the request and report types exchanged between the
// HTTP surface, the CLI and the poster service.
package series

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"poster-pipeline/internal/cachekey"
	"poster-pipeline/internal/placeholder"
	"poster-pipeline/internal/platform/codec"
	"poster-pipeline/internal/presenter"
)

// Limits
const (
	MaxTitleBytes = 1024
	MaxCount      = 1_000_000
	MinYear       = 1900
	MaxYear       = 2200
)

var (
	ErrInvalidSeriesID = errors.New("invalid series id")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrPayloadTooLarge = errors.New("poster exceeds the upload limit")
	ErrPosterNotFound  = errors.New("series has no poster")
)

// UploadPosterRequest carries one uploaded poster
type UploadPosterRequest struct {
	SeriesID    int64
	ContentType string
	Data        []byte
}

// Validate checks the request against maxSize bytes, 0 meaning no limit.
// Unsupported content types are rejected here, before any lock or worker
// slot is taken.
func (r *UploadPosterRequest) Validate(maxSize int64) error {
	if r.SeriesID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSeriesID, r.SeriesID)
	}
	if _, err := codec.ForContentType(r.ContentType); err != nil {
		return err
	}
	if maxSize > 0 && int64(len(r.Data)) > maxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(r.Data), maxSize)
	}
	return nil
}

// PresenterRequest is what the catalog knows about a series when it asks for
// a presenter image. Zero counts are drawn as zero; a zero year is omitted.
type PresenterRequest struct {
	Title       string `json:"title"`
	ReleaseYear int    `json:"releaseYear,omitempty"`
	Volumes     int    `json:"volumes"`
	Chapters    int    `json:"chapters"`
	Seasons     int    `json:"seasons"`
	Episodes    int    `json:"episodes"`
}

func (r *PresenterRequest) Validate() error {
	if !utf8.ValidString(r.Title) {
		return fmt.Errorf("%w: title contains invalid UTF-8", ErrInvalidRequest)
	}
	if len(r.Title) > MaxTitleBytes {
		return fmt.Errorf("%w: title too long (max %d bytes)", ErrInvalidRequest, MaxTitleBytes)
	}
	if r.ReleaseYear != 0 && (r.ReleaseYear < MinYear || r.ReleaseYear > MaxYear) {
		return fmt.Errorf("%w: release year %d out of range (%d-%d)", ErrInvalidRequest, r.ReleaseYear, MinYear, MaxYear)
	}
	for name, v := range map[string]int{
		"volumes":  r.Volumes,
		"chapters": r.Chapters,
		"seasons":  r.Seasons,
		"episodes": r.Episodes,
	} {
		if v < 0 || v > MaxCount {
			return fmt.Errorf("%w: %s %d out of range (0-%d)", ErrInvalidRequest, name, v, MaxCount)
		}
	}
	return nil
}

// ToPresenter builds the composer request with the given accent
func (r *PresenterRequest) ToPresenter(accent placeholder.Placeholder) presenter.Request {
	return presenter.Request{
		Title:       r.Title,
		ReleaseYear: r.ReleaseYear,
		Volumes:     r.Volumes,
		Chapters:    r.Chapters,
		Seasons:     r.Seasons,
		Episodes:    r.Episodes,
		Accent:      accent.AccentOrBrand(),
	}
}

// PresenterResult reports a best-effort presenter run. A failed run is not
// an error for the caller.
type PresenterResult struct {
	Key       cachekey.Key `json:"key"`
	Generated bool         `json:"generated"`
	Error     string       `json:"error,omitempty"`
}

// LegacyRecord is one line of a legacy catalog export
type LegacyRecord struct {
	SeriesID    int64   `json:"seriesId"`
	Key         string  `json:"key"`
	Placeholder *string `json:"placeholder,omitempty"`
}

func (r *LegacyRecord) Validate() error {
	if r.SeriesID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSeriesID, r.SeriesID)
	}
	if err := cachekey.Validate(r.Key); err != nil {
		return err
	}
	if r.Placeholder != nil {
		if _, err := placeholder.FromLegacy(*r.Placeholder); err != nil {
			return err
		}
	}
	return nil
}

// ImportReport summarizes a legacy import
type ImportReport struct {
	Read     int   `json:"read"`
	Invalid  int   `json:"invalid"`
	Inserted int64 `json:"inserted"`
	Skipped  int64 `json:"skipped"`
}

// MigrationReport summarizes a placeholder migration run
type MigrationReport struct {
	Scanned    int `json:"scanned"`
	Recomputed int `json:"recomputed"`
	Converted  int `json:"converted"`
	Failed     int `json:"failed"`
	// Remaining counts version 1 records left after the run
	Remaining int64 `json:"remaining"`
}
