// Package storage persists derivative artifacts. Every artifact lives at
// {variant}/{key}.webp relative to the store root, whatever the backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"poster-pipeline/internal/cachekey"
	"poster-pipeline/internal/config"
)

// Variant names one derivative of a poster
type Variant string

const (
	VariantFullres   Variant = "fullres"
	VariantThumbnail Variant = "310x468"
	VariantPresenter Variant = "pre"

	// Extension is shared by every variant
	Extension = ".webp"
)

var (
	ErrNotFound       = errors.New("artifact not found")
	ErrInvalidPath    = errors.New("invalid artifact path")
	ErrUnknownVariant = errors.New("unknown artifact variant")
)

// ArtifactStore is implemented by FileStore and MinIOStore
type ArtifactStore interface {
	// Put replaces the artifact at path. Readers never observe a partial file.
	Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	// Get returns ErrNotFound when nothing is stored at path
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Delete is idempotent
	Delete(ctx context.Context, path string) error
	Health(ctx context.Context) error
}

// Variants lists every derivative in the order the pipeline writes them
func Variants() []Variant {
	return []Variant{VariantFullres, VariantThumbnail, VariantPresenter}
}

// ParseVariant maps a URL segment to a Variant
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants() {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// Path returns the artifact path of a variant relative to the store root
func Path(variant Variant, key cachekey.Key) string {
	return string(variant) + "/" + key.String() + Extension
}

// ParsePath is the inverse of Path. It rejects anything Path cannot produce,
// which keeps traversal sequences out of both backends.
func ParsePath(p string) (Variant, cachekey.Key, error) {
	dir, file := path.Split(p)
	variant, err := ParseVariant(strings.TrimSuffix(dir, "/"))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !strings.HasSuffix(file, Extension) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	key, err := cachekey.Parse(strings.TrimSuffix(file, Extension))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return variant, key, nil
}

// New builds the store selected by ARTIFACT_BACKEND
func New(ctx context.Context, cfg *config.Config) (ArtifactStore, error) {
	switch cfg.Artifacts.Backend {
	case config.BackendFilesystem:
		return NewFileStore(cfg.Artifacts.CacheFolder)
	case config.BackendMinIO:
		return NewMinIOStore(ctx, cfg.Storage)
	default:
		return nil, fmt.Errorf("unsupported artifact backend: %q", cfg.Artifacts.Backend)
	}
}
