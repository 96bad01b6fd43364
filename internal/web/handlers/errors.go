package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"poster-pipeline/internal/domain/series"
	"poster-pipeline/internal/platform/codec"
	"poster-pipeline/internal/platform/storage"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
	// Supported lists the accepted content types on 415 responses
	Supported []string `json:"supported,omitempty"`
}

// statusFor maps service errors to HTTP statuses. Anything unknown in the
// derivative path is a server error.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, codec.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, codec.ErrCorruptImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, series.ErrPayloadTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, series.ErrInvalidSeriesID),
		errors.Is(err, series.ErrInvalidRequest),
		errors.Is(err, storage.ErrUnknownVariant),
		errors.Is(err, storage.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, series.ErrPosterNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error(ctx).Err(err).Msg("Failed to encode response")
	}
}

// writeError logs server errors and hides their details from the client
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error(ctx).Err(err).Int("status", status).Msg("Request failed")
		message = http.StatusText(status)
	}
	resp := ErrorResponse{Error: message}
	if status == http.StatusUnsupportedMediaType {
		resp.Supported = codec.SupportedContentTypes()
	}
	h.writeJSON(ctx, w, status, resp)
}
