package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"poster-pipeline/internal/domain/series"
)

const maxPresenterBody = 64 << 10

func seriesID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", series.ErrInvalidSeriesID, chi.URLParam(r, "id"))
	}
	return id, nil
}

// uploadPosterHandler handles PUT /api/series/{id}/poster with the raw image
// as body and its type in Content-Type
func (h *Handler) uploadPosterHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UploadPoster", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	id, err := seriesID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	span.SetAttributes(
		attribute.Int64("series.id", id),
		attribute.String("upload.content_type", contentType),
	)

	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read body")
		h.logger.Warn(ctx).Err(err).Int64("series_id", id).Msg("Failed to read poster upload")
		h.writeError(ctx, w, err)
		return
	}

	span.SetAttributes(attribute.Int("upload.size", len(data)))

	result, err := h.posters.UploadPoster(ctx, series.UploadPosterRequest{
		SeriesID:    id,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "poster upload failed")
		h.writeError(ctx, w, err)
		return
	}

	span.SetStatus(codes.Ok, "poster stored")
	h.writeJSON(ctx, w, http.StatusOK, result)
}

func (h *Handler) getPosterHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := seriesID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	result, err := h.posters.GetPoster(ctx, id)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, result)
}

// presenterHandler regenerates the presenter image. The call is accepted even
// when rendering fails; the outcome is in the body.
func (h *Handler) presenterHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RegeneratePresenter", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	id, err := seriesID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	span.SetAttributes(attribute.Int64("series.id", id))

	var req series.PresenterRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxPresenterBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(ctx, w, fmt.Errorf("%w: %v", series.ErrInvalidRequest, err))
		return
	}

	result, err := h.posters.RegeneratePresenter(ctx, id, req)
	if err != nil {
		span.RecordError(err)
		h.writeError(ctx, w, err)
		return
	}

	span.SetAttributes(attribute.Bool("presenter.generated", result.Generated))
	h.writeJSON(ctx, w, http.StatusAccepted, result)
}
