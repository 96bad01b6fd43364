package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poster-pipeline/internal/cachekey"
)

const testKey = cachekey.Key("abcdefghijkmnpqrstuv")

func TestPath(t *testing.T) {
	assert.Equal(t, "fullres/abcdefghijkmnpqrstuv.webp", Path(VariantFullres, testKey))
	assert.Equal(t, "310x468/abcdefghijkmnpqrstuv.webp", Path(VariantThumbnail, testKey))
	assert.Equal(t, "pre/abcdefghijkmnpqrstuv.webp", Path(VariantPresenter, testKey))
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantVariant Variant
		wantErr     bool
	}{
		{name: "fullres", path: "fullres/abcdefghijkmnpqrstuv.webp", wantVariant: VariantFullres},
		{name: "thumbnail", path: "310x468/abcdefghijkmnpqrstuv.webp", wantVariant: VariantThumbnail},
		{name: "presenter", path: "pre/abcdefghijkmnpqrstuv.webp", wantVariant: VariantPresenter},
		{name: "unknown variant", path: "raw/abcdefghijkmnpqrstuv.webp", wantErr: true},
		{name: "wrong extension", path: "pre/abcdefghijkmnpqrstuv.png", wantErr: true},
		{name: "traversal", path: "pre/../../etc/passwd.webp", wantErr: true},
		{name: "nested", path: "pre/x/abcdefghijkmnpqrstuv.webp", wantErr: true},
		{name: "absolute", path: "/pre/abcdefghijkmnpqrstuv.webp", wantErr: true},
		{name: "invalid key", path: "pre/abcdefghijkmnpqrst0.webp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variant, key, err := ParsePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVariant, variant)
			assert.Equal(t, testKey, key)
		})
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("310x468")
	require.NoError(t, err)
	assert.Equal(t, VariantThumbnail, v)

	_, err = ParseVariant("thumbs")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	store, err := NewFileStore(root)
	require.NoError(t, err)

	for _, v := range Variants() {
		assert.DirExists(t, filepath.Join(root, string(v)))
	}

	p := Path(VariantThumbnail, testKey)

	t.Run("missing artifact", func(t *testing.T) {
		exists, err := store.Exists(ctx, p)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = store.Get(ctx, p)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		payload := []byte("RIFF....WEBPVP8L")
		require.NoError(t, store.Put(ctx, p, bytes.NewReader(payload), int64(len(payload)), "image/webp"))

		exists, err := store.Exists(ctx, p)
		require.NoError(t, err)
		assert.True(t, exists)

		rc, err := store.Get(ctx, p)
		require.NoError(t, err)
		defer rc.Close()

		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("put replaces and leaves no temp files", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, p, bytes.NewReader([]byte("second")), 6, "image/webp"))

		entries, err := os.ReadDir(filepath.Join(root, string(VariantThumbnail)))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "abcdefghijkmnpqrstuv.webp", entries[0].Name())

		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, p))
		require.NoError(t, store.Delete(ctx, p))

		exists, err := store.Exists(ctx, p)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("rejects paths outside the layout", func(t *testing.T) {
		err := store.Put(ctx, "../escape.webp", bytes.NewReader(nil), 0, "image/webp")
		assert.ErrorIs(t, err, ErrInvalidPath)

		_, err = store.Get(ctx, "fullres/../../etc/passwd")
		assert.ErrorIs(t, err, ErrInvalidPath)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := store.Put(canceled, p, bytes.NewReader([]byte("x")), 1, "image/webp")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, store.Health(ctx))
	})
}

func TestNewFileStore_EmptyRoot(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
