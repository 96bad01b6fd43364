package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"poster-pipeline/internal/platform/codec"
	"poster-pipeline/internal/platform/storage"
)

// artifactHandler streams GET /artifacts/{variant}/{key}.webp from the store.
// Keys never change content meaning, but regenerations overwrite files, so
// caches must revalidate.
func (h *Handler) artifactHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	file := chi.URLParam(r, "file")
	if !strings.HasSuffix(file, storage.Extension) {
		h.writeError(ctx, w, storage.ErrInvalidPath)
		return
	}

	variant, key, err := storage.ParsePath(chi.URLParam(r, "variant") + "/" + file)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	rc, err := h.store.Get(ctx, storage.Path(variant, key))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", codec.ContentTypeWebP)
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn(ctx).Err(err).Str("artifact", storage.Path(variant, key)).Msg("Failed to stream artifact")
	}
}
