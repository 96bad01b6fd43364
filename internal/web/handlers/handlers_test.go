package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poster-pipeline/internal/cachekey"
	"poster-pipeline/internal/domain/series"
	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/platform/codec"
	"poster-pipeline/internal/platform/storage"
	"poster-pipeline/internal/poster"
	"poster-pipeline/internal/testutils"
)

const testKey = cachekey.Key("abcdefghijkmnpqrstuv")

type fakePosterService struct {
	upload     func(req series.UploadPosterRequest) (poster.CachedImage, error)
	get        func(id int64) (poster.CachedImage, error)
	regenerate func(id int64, req series.PresenterRequest) (series.PresenterResult, error)
}

func (f *fakePosterService) UploadPoster(_ context.Context, req series.UploadPosterRequest) (poster.CachedImage, error) {
	return f.upload(req)
}

func (f *fakePosterService) GetPoster(_ context.Context, id int64) (poster.CachedImage, error) {
	return f.get(id)
}

func (f *fakePosterService) RegeneratePresenter(_ context.Context, id int64, req series.PresenterRequest) (series.PresenterResult, error) {
	return f.regenerate(id, req)
}

func (f *fakePosterService) ImportLegacy(context.Context, io.Reader) (series.ImportReport, error) {
	return series.ImportReport{}, errors.New("not used")
}

func (f *fakePosterService) MigratePlaceholders(context.Context) (series.MigrationReport, error) {
	return series.MigrationReport{}, errors.New("not used")
}

func newTestHandler(t *testing.T, svc series.PosterService, readiness ReadinessFunc) (*Handler, *storage.FileStore) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	h := New(Options{
		Posters:       svc,
		Store:         store,
		Readiness:     readiness,
		Logger:        observability.NewLogger(observability.Config{LogLevel: "error"}),
		MaxUploadSize: 1024,
		Service:       "poster-pipeline",
		Version:       "test",
	})
	return h, store
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestUploadPosterHandler(t *testing.T) {
	placeholder := "LEHV6nWB2yk8pyo0adR*.7kCMdnj/ab12"

	tests := []struct {
		name       string
		path       string
		body       []byte
		err        error
		wantStatus int
	}{
		{name: "stored", path: "/api/series/42/poster", body: []byte("img"), wantStatus: http.StatusOK},
		{name: "non numeric id", path: "/api/series/abc/poster", body: []byte("img"), wantStatus: http.StatusBadRequest},
		{name: "zero id", path: "/api/series/0/poster", body: []byte("img"), wantStatus: http.StatusBadRequest},
		{name: "unsupported format", path: "/api/series/42/poster", body: []byte("img"), err: codec.ErrUnsupportedFormat, wantStatus: http.StatusUnsupportedMediaType},
		{name: "corrupt image", path: "/api/series/42/poster", body: []byte("img"), err: fmt.Errorf("decode: %w", codec.ErrCorruptImage), wantStatus: http.StatusUnprocessableEntity},
		{name: "body over limit", path: "/api/series/42/poster", body: bytes.Repeat([]byte("x"), 2048), wantStatus: http.StatusRequestEntityTooLarge},
		{name: "storage failure", path: "/api/series/42/poster", body: []byte("img"), err: errors.New("disk full"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got series.UploadPosterRequest
			svc := &fakePosterService{upload: func(req series.UploadPosterRequest) (poster.CachedImage, error) {
				got = req
				if tt.err != nil {
					return poster.CachedImage{}, tt.err
				}
				return poster.CachedImage{Key: testKey, Placeholder: &placeholder}, nil
			}}
			h, _ := newTestHandler(t, svc, nil)

			req := testutils.MakeTestRequest(http.MethodPut, tt.path, bytes.NewReader(tt.body),
				map[string]string{"Content-Type": codec.ContentTypePNG})
			rec := serve(h, req)

			testutils.AssertHTTPStatus(t, rec, tt.wantStatus)
			if tt.wantStatus == http.StatusOK {
				var body poster.CachedImage
				require.NoError(t, testutils.AssertJSONResponse(t, rec, &body))
				assert.Equal(t, testKey, body.Key)
				require.NotNil(t, body.Placeholder)
				assert.Equal(t, placeholder, *body.Placeholder)
				assert.Equal(t, int64(42), got.SeriesID)
				assert.Equal(t, codec.ContentTypePNG, got.ContentType)
				assert.Equal(t, tt.body, got.Data)
				return
			}

			var body ErrorResponse
			require.NoError(t, testutils.AssertJSONResponse(t, rec, &body))
			assert.NotEmpty(t, body.Error)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, body.Error, "disk full")
			}
			if tt.wantStatus == http.StatusUnsupportedMediaType {
				assert.Equal(t, []string{codec.ContentTypeWebP, codec.ContentTypePNG}, body.Supported)
			} else {
				assert.Empty(t, body.Supported)
			}
		})
	}
}

func TestGetPosterHandler(t *testing.T) {
	svc := &fakePosterService{get: func(id int64) (poster.CachedImage, error) {
		if id == 7 {
			return poster.CachedImage{Key: testKey}, nil
		}
		return poster.CachedImage{}, series.ErrPosterNotFound
	}}
	h, _ := newTestHandler(t, svc, nil)

	rec := serve(h, testutils.MakeTestRequest(http.MethodGet, "/api/series/7/poster", nil, nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)
	var body poster.CachedImage
	require.NoError(t, testutils.AssertJSONResponse(t, rec, &body))
	assert.Equal(t, testKey, body.Key)
	assert.Nil(t, body.Placeholder)

	rec = serve(h, testutils.MakeTestRequest(http.MethodGet, "/api/series/8/poster", nil, nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusNotFound)
}

func TestPresenterHandler(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		result     series.PresenterResult
		err        error
		wantStatus int
	}{
		{
			name:       "generated",
			payload:    `{"title":"Frieren","releaseYear":2020,"volumes":12}`,
			result:     series.PresenterResult{Key: testKey, Generated: true},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "render failure is still accepted",
			payload:    `{"title":"Frieren"}`,
			result:     series.PresenterResult{Key: testKey, Error: "font load failed"},
			wantStatus: http.StatusAccepted,
		},
		{name: "malformed json", payload: `{"title":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", payload: `{"name":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid request", payload: `{"title":"x"}`, err: series.ErrInvalidRequest, wantStatus: http.StatusBadRequest},
		{name: "no poster", payload: `{"title":"x"}`, err: series.ErrPosterNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got series.PresenterRequest
			svc := &fakePosterService{regenerate: func(_ int64, req series.PresenterRequest) (series.PresenterResult, error) {
				got = req
				return tt.result, tt.err
			}}
			h, _ := newTestHandler(t, svc, nil)

			req := testutils.MakeTestRequest(http.MethodPost, "/api/series/3/presenter",
				strings.NewReader(tt.payload), map[string]string{"Content-Type": "application/json"})
			rec := serve(h, req)

			testutils.AssertHTTPStatus(t, rec, tt.wantStatus)
			if tt.wantStatus != http.StatusAccepted {
				return
			}
			var body series.PresenterResult
			require.NoError(t, testutils.AssertJSONResponse(t, rec, &body))
			assert.Equal(t, tt.result, body)
			assert.Equal(t, "Frieren", got.Title)
		})
	}
}

func TestArtifactHandler(t *testing.T) {
	h, store := newTestHandler(t, &fakePosterService{}, nil)
	ctx := context.Background()

	content := []byte("RIFF....WEBP")
	require.NoError(t, store.Put(ctx, storage.Path(storage.VariantThumbnail, testKey),
		bytes.NewReader(content), int64(len(content)), codec.ContentTypeWebP))

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "stored thumbnail", path: "/artifacts/310x468/" + testKey.String() + ".webp", wantStatus: http.StatusOK},
		{name: "missing presenter", path: "/artifacts/pre/" + testKey.String() + ".webp", wantStatus: http.StatusNotFound},
		{name: "unknown variant", path: "/artifacts/originals/" + testKey.String() + ".webp", wantStatus: http.StatusBadRequest},
		{name: "wrong extension", path: "/artifacts/310x468/" + testKey.String() + ".png", wantStatus: http.StatusBadRequest},
		{name: "malformed key", path: "/artifacts/310x468/..%2F..%2Fetc.webp", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, testutils.MakeTestRequest(http.MethodGet, tt.path, nil, nil))
			testutils.AssertHTTPStatus(t, rec, tt.wantStatus)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, codec.ContentTypeWebP, rec.Header().Get("Content-Type"))
				assert.Equal(t, content, rec.Body.Bytes())
			}
		})
	}
}

func TestHealthHandlers(t *testing.T) {
	tests := []struct {
		name       string
		readiness  ReadinessFunc
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name: "all dependencies healthy",
			readiness: func(context.Context) map[string]error {
				return map[string]error{"database": nil, "cache": nil}
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "healthy", "cache": "healthy"},
		},
		{
			name: "database down",
			readiness: func(context.Context) map[string]error {
				return map[string]error{"database": errors.New("connection refused"), "artifacts": nil}
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "unhealthy: connection refused", "artifacts": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &fakePosterService{}, tt.readiness)

			rec := serve(h, testutils.MakeTestRequest(http.MethodGet, "/readyz", nil, nil))
			testutils.AssertHTTPStatus(t, rec, tt.wantStatus)
			var body HealthResponse
			require.NoError(t, testutils.AssertJSONResponse(t, rec, &body))
			assert.Equal(t, tt.wantChecks, body.Checks)
			assert.Equal(t, "test", body.Version)
		})
	}

	h, _ := newTestHandler(t, &fakePosterService{}, nil)
	rec := serve(h, testutils.MakeTestRequest(http.MethodGet, "/healthz", nil, nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)

	rec = serve(h, testutils.MakeTestRequest(http.MethodGet, "/version", nil, nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)
	var version VersionResponse
	require.NoError(t, testutils.AssertJSONResponse(t, rec, &version))
	assert.Equal(t, VersionResponse{Service: "poster-pipeline", Version: "test"}, version)
}

func TestUploadPosterHandler_RateLimited(t *testing.T) {
	svc := &fakePosterService{upload: func(series.UploadPosterRequest) (poster.CachedImage, error) {
		return poster.CachedImage{Key: testKey}, nil
	}}
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	router := New(Options{
		Posters:         svc,
		Store:           store,
		Logger:          observability.NewLogger(observability.Config{LogLevel: "error"}),
		UploadRateLimit: 1,
	}).Routes()

	upload := func(remoteAddr string) *httptest.ResponseRecorder {
		req := testutils.MakeTestRequest(http.MethodPut, "/api/series/5/poster", strings.NewReader("img"),
			map[string]string{"Content-Type": codec.ContentTypePNG})
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	testutils.AssertHTTPStatus(t, upload("10.0.0.1:4000"), http.StatusOK)
	limited := upload("10.0.0.1:4001")
	testutils.AssertHTTPStatus(t, limited, http.StatusTooManyRequests)
	var body ErrorResponse
	require.NoError(t, testutils.AssertJSONResponse(t, limited, &body))
	assert.NotEmpty(t, body.Error)

	testutils.AssertHTTPStatus(t, upload("10.0.0.2:4000"), http.StatusOK)

	// reads are never throttled
	svc.get = func(int64) (poster.CachedImage, error) { return poster.CachedImage{Key: testKey}, nil }
	req := testutils.MakeTestRequest(http.MethodGet, "/api/series/5/poster", nil, nil)
	req.RemoteAddr = "10.0.0.1:4002"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)
}
