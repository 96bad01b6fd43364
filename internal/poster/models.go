// Package poster turns one uploaded poster into its stored derivatives and
// placeholder string.
package poster

import (
	"errors"
	"fmt"
	"image"

	"poster-pipeline/internal/cachekey"
)

// Thumbnail dimensions, aspect ratio is not preserved
const (
	ThumbnailWidth  = 310
	ThumbnailHeight = 468
)

// Stage names a step of the derivative pipeline
type Stage string

const (
	StageDecode      Stage = "decode"
	StageFullres     Stage = "fullres"
	StageResize      Stage = "resize"
	StageThumbnail   Stage = "thumbnail"
	StagePlaceholder Stage = "placeholder"
)

// StageError reports which stage failed. Writing stages wrap storage and
// encoder errors, the decode stage wraps codec sentinels.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("poster %s stage failed for %s: %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("poster %s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage extracts the stage from an error chain
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// CachedImage is the record handed back to the catalog
type CachedImage struct {
	Key         cachekey.Key `json:"key"`
	Placeholder *string      `json:"placeholder,omitempty"`
}

// PixelBuffer is an opaque RGB raster owned by one pipeline run
type PixelBuffer struct {
	img *image.NRGBA
}

// NewPixelBuffer wraps img, which must already be opaque
func NewPixelBuffer(img *image.NRGBA) PixelBuffer {
	return PixelBuffer{img: img}
}

func (p PixelBuffer) Width() int {
	return p.img.Bounds().Dx()
}

func (p PixelBuffer) Height() int {
	return p.img.Bounds().Dy()
}

// Image exposes the raster for encoders
func (p PixelBuffer) Image() *image.NRGBA {
	return p.img
}
