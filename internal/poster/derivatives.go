package poster

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"poster-pipeline/internal/cachekey"
	"poster-pipeline/internal/config"
	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/placeholder"
	"poster-pipeline/internal/platform/codec"
	"poster-pipeline/internal/platform/storage"
)

// Options tunes derivative encoding
type Options struct {
	// ThumbnailQuality is the lossy WebP quality in (0, 100]
	ThumbnailQuality float32
	// MaxPixels rejects uploads whose header dimensions exceed it
	MaxPixels int
}

// Writer runs the derivative pipeline against an artifact store.
//
// Each stage consumes the state produced by the previous one, so stages can
// only be called in order:
//
//	Decoded -> FullresPersisted -> Resized -> ThumbnailPersisted
//
// The Writer does not lock. Callers serialize runs for the same key.
type Writer struct {
	store   storage.ArtifactStore
	opts    Options
	logger  *observability.Logger
	metrics *observability.PipelineMetrics
	tracer  trace.Tracer
}

// Decoded holds the flattened source image
type Decoded struct {
	key    cachekey.Key
	pixels PixelBuffer
}

// FullresPersisted is reached once the lossless copy is stored
type FullresPersisted struct {
	key    cachekey.Key
	pixels PixelBuffer
}

// Resized carries the 310x468 buffer that the thumbnail and placeholder use
type Resized struct {
	key   cachekey.Key
	thumb PixelBuffer
}

// ThumbnailPersisted is the final state
type ThumbnailPersisted struct {
	key   cachekey.Key
	thumb PixelBuffer
}

// Thumbnail returns the resized buffer
func (t ThumbnailPersisted) Thumbnail() PixelBuffer {
	return t.thumb
}

// NewWriter creates a derivative writer. metrics may be nil.
func NewWriter(store storage.ArtifactStore, opts Options, logger *observability.Logger, metrics *observability.PipelineMetrics) *Writer {
	if opts.ThumbnailQuality <= 0 || opts.ThumbnailQuality > 100 {
		opts.ThumbnailQuality = 85
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = config.DefaultMaxPixels
	}

	return &Writer{
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		tracer:  observability.GetPipelineTracer(),
	}
}

// Run executes every stage for one upload and computes the placeholder from
// the resized buffer
func (w *Writer) Run(ctx context.Context, key cachekey.Key, contentType string, data []byte) (CachedImage, error) {
	ctx, span := w.tracer.Start(ctx, "poster.pipeline", trace.WithAttributes(
		attribute.String("poster.key", key.String()),
		attribute.String("poster.content_type", contentType),
		attribute.Int("poster.size", len(data)),
	))
	defer span.End()

	start := time.Now()
	p, err := w.run(ctx, key, contentType, data)
	if err != nil {
		stage, ok := FailedStage(err)
		if !ok {
			stage = "canceled"
		}
		w.metrics.RecordFailure(ctx, string(stage))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error(ctx).
			Err(err).
			Str("cache_key", key.String()).
			Str("stage", string(stage)).
			Msg("Poster pipeline failed")
		return CachedImage{}, err
	}

	w.logger.Info(ctx).
		Str("cache_key", key.String()).
		Bool("has_accent", p.HasAccent()).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Poster derivatives written")

	s := p.String()
	return CachedImage{Key: key, Placeholder: &s}, nil
}

func (w *Writer) run(ctx context.Context, key cachekey.Key, contentType string, data []byte) (placeholder.Placeholder, error) {
	decoded, err := w.Decode(ctx, key, contentType, data)
	if err != nil {
		return placeholder.Placeholder{}, err
	}
	if err := ctx.Err(); err != nil {
		return placeholder.Placeholder{}, err
	}

	fullres, err := w.PersistFullres(ctx, decoded)
	if err != nil {
		return placeholder.Placeholder{}, err
	}
	if err := ctx.Err(); err != nil {
		return placeholder.Placeholder{}, err
	}

	resized, err := w.Resize(ctx, fullres)
	if err != nil {
		return placeholder.Placeholder{}, err
	}
	if err := ctx.Err(); err != nil {
		return placeholder.Placeholder{}, err
	}

	done, err := w.PersistThumbnail(ctx, resized)
	if err != nil {
		return placeholder.Placeholder{}, err
	}

	return w.Placeholder(ctx, done)
}

// Decode resolves the codec for contentType and flattens the image to RGB.
// Unsupported types fail before any byte is decoded.
func (w *Writer) Decode(ctx context.Context, key cachekey.Key, contentType string, data []byte) (Decoded, error) {
	defer w.stage(ctx, StageDecode)()

	c, err := codec.ForContentType(contentType)
	if err != nil {
		return Decoded{}, &StageError{Stage: StageDecode, Err: err}
	}

	img, err := codec.DecodeBytes(c, data, w.opts.MaxPixels)
	if err != nil {
		return Decoded{}, &StageError{Stage: StageDecode, Err: err}
	}

	return Decoded{key: key, pixels: NewPixelBuffer(codec.ToRGB(img))}, nil
}

// PersistFullres stores the lossless full resolution copy
func (w *Writer) PersistFullres(ctx context.Context, d Decoded) (FullresPersisted, error) {
	defer w.stage(ctx, StageFullres)()

	path := storage.Path(storage.VariantFullres, d.key)
	if err := w.write(ctx, path, d.pixels, codec.Lossless()); err != nil {
		return FullresPersisted{}, &StageError{Stage: StageFullres, Path: path, Err: err}
	}

	return FullresPersisted(d), nil
}

// Resize scales to exactly ThumbnailWidth x ThumbnailHeight with Lanczos
func (w *Writer) Resize(ctx context.Context, f FullresPersisted) (Resized, error) {
	defer w.stage(ctx, StageResize)()

	if f.pixels.Width() == 0 || f.pixels.Height() == 0 {
		return Resized{}, &StageError{Stage: StageResize, Err: fmt.Errorf("%w: empty image", codec.ErrCorruptImage)}
	}

	thumb := imaging.Resize(f.pixels.Image(), ThumbnailWidth, ThumbnailHeight, imaging.Lanczos)
	return Resized{key: f.key, thumb: NewPixelBuffer(thumb)}, nil
}

// PersistThumbnail stores the lossy thumbnail. On failure the full resolution
// copy written earlier is removed so no orphan outlives the run.
func (w *Writer) PersistThumbnail(ctx context.Context, r Resized) (ThumbnailPersisted, error) {
	defer w.stage(ctx, StageThumbnail)()

	path := storage.Path(storage.VariantThumbnail, r.key)
	if err := w.write(ctx, path, r.thumb, codec.Lossy(w.opts.ThumbnailQuality)); err != nil {
		w.removeFullres(ctx, r.key)
		return ThumbnailPersisted{}, &StageError{Stage: StageThumbnail, Path: path, Err: err}
	}

	return ThumbnailPersisted(r), nil
}

// Placeholder encodes the placeholder of the stored thumbnail buffer
func (w *Writer) Placeholder(ctx context.Context, t ThumbnailPersisted) (placeholder.Placeholder, error) {
	defer w.stage(ctx, StagePlaceholder)()

	p, err := placeholder.Encode(t.thumb.Image())
	if err != nil {
		return placeholder.Placeholder{}, &StageError{Stage: StagePlaceholder, Err: err}
	}

	if !p.HasAccent() {
		w.metrics.RecordAccentMissing(ctx)
		w.logger.Debug(ctx).
			Str("cache_key", t.key.String()).
			Msg("Palette too small for an accent, placeholder has no suffix")
	}

	return p, nil
}

func (w *Writer) write(ctx context.Context, path string, pixels PixelBuffer, opts codec.EncodeOptions) error {
	var buf bytes.Buffer
	if err := (codec.WebP{}).Encode(&buf, pixels.Image(), opts); err != nil {
		return err
	}
	return w.store.Put(ctx, path, bytes.NewReader(buf.Bytes()), int64(buf.Len()), codec.ContentTypeWebP)
}

func (w *Writer) removeFullres(ctx context.Context, key cachekey.Key) {
	path := storage.Path(storage.VariantFullres, key)
	// the run context may already be canceled, cleanup still has to happen
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := w.store.Delete(cleanupCtx, path); err != nil {
		w.logger.Warn(ctx).
			Err(err).
			Str("path", path).
			Msg("Failed to remove orphaned full resolution artifact")
	}
}

// stage opens a span for one step and returns the func that closes it
func (w *Writer) stage(ctx context.Context, stage Stage) func() {
	_, span := w.tracer.Start(ctx, "poster."+string(stage))
	start := time.Now()

	return func() {
		w.metrics.RecordStage(ctx, string(stage), time.Since(start))
		span.End()
	}
}
