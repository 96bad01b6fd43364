package integrationtests

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"poster-pipeline/internal/cachekey"
	"poster-pipeline/internal/domain/series"
	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/placeholder"
	"poster-pipeline/internal/platform/storage"
	"poster-pipeline/internal/poster"
	"poster-pipeline/internal/services"
	"poster-pipeline/internal/testutils"
	"poster-pipeline/internal/testutils/imagetest"
	"poster-pipeline/internal/web/handlers"
)

// PosterPipelineIntegrationTestSuite runs the pipeline against Postgres,
// MinIO and Valkey containers
type PosterPipelineIntegrationTestSuite struct {
	suite.Suite
	testSuite *testutils.TestSuite
	ctx       context.Context
	container *services.Container
	posters   series.PosterService
}

func TestPosterPipelineIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(PosterPipelineIntegrationTestSuite))
}

// SetupSuite starts the containers and wires the real service container
func (s *PosterPipelineIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	testSuite, err := testutils.SetupTestSuite(s.ctx)
	require.NoError(s.T(), err, "Failed to setup test suite")
	s.testSuite = testSuite

	logger := observability.NewLogger(observability.Config{LogLevel: "error"})
	container, err := services.NewContainer(s.ctx, testSuite.Containers.Config(), testSuite.Containers.DB, logger, nil)
	require.NoError(s.T(), err, "Failed to create services container")
	s.container = container
	s.posters = container.PosterService()
}

func (s *PosterPipelineIntegrationTestSuite) TearDownSuite() {
	if s.container != nil {
		assert.NoError(s.T(), s.container.Close(s.ctx))
	}
	if s.testSuite != nil {
		require.NoError(s.T(), s.testSuite.Cleanup(s.ctx), "Failed to cleanup test suite")
	}
}

// SetupTest resets records and cache before each test
func (s *PosterPipelineIntegrationTestSuite) SetupTest() {
	require.NoError(s.T(), s.testSuite.ResetData(s.ctx), "Failed to reset test data")
}

func (s *PosterPipelineIntegrationTestSuite) upload(seriesID int64) poster.CachedImage {
	result, err := s.posters.UploadPoster(s.ctx, series.UploadPosterRequest{
		SeriesID:    seriesID,
		ContentType: "image/png",
		Data:        imagetest.EncodePNG(s.T(), imagetest.Poster(300, 450)),
	})
	require.NoError(s.T(), err)
	return result
}

func (s *PosterPipelineIntegrationTestSuite) assertArtifact(variant storage.Variant, key cachekey.Key, want bool) {
	exists, err := s.testSuite.Containers.Store.Exists(s.ctx, storage.Path(variant, key))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), want, exists, "artifact %s", storage.Path(variant, key))
}

func (s *PosterPipelineIntegrationTestSuite) TestUploadPoster_WritesArtifactsAndRecord() {
	// Given: a series without a poster
	// When: uploading a PNG
	result := s.upload(101)

	// Then: both derivatives are in the bucket
	s.assertArtifact(storage.VariantFullres, result.Key, true)
	s.assertArtifact(storage.VariantThumbnail, result.Key, true)
	s.assertArtifact(storage.VariantPresenter, result.Key, false)

	// And: the record holds the canonical placeholder
	record, err := s.testSuite.Posters.GetBySeries(s.ctx, 101)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), result.Key.String(), record.CacheKey)
	assert.Equal(s.T(), placeholder.Version, record.PlaceholderVersion)
	require.NotNil(s.T(), record.Placeholder)
	_, err = placeholder.Parse(*record.Placeholder)
	assert.NoError(s.T(), err)

	// And: the record is cached
	cached, err := s.testSuite.Containers.RedisClient.GetPoster(s.ctx, 101)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), result, *cached)
}

func (s *PosterPipelineIntegrationTestSuite) TestUploadPoster_ReuploadKeepsKey() {
	first := s.upload(102)
	second := s.upload(102)

	assert.Equal(s.T(), first.Key, second.Key)
}

func (s *PosterPipelineIntegrationTestSuite) TestUploadPoster_ConcurrentUploadsShareKey() {
	const uploads = 4
	data := imagetest.EncodePNG(s.T(), imagetest.Poster(200, 300))

	keys := make([]cachekey.Key, uploads)
	errs := make([]error, uploads)
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := s.posters.UploadPoster(s.ctx, series.UploadPosterRequest{
				SeriesID: 103, ContentType: "image/png", Data: data,
			})
			keys[i], errs[i] = result.Key, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < uploads; i++ {
		require.NoError(s.T(), errs[i])
		assert.Equal(s.T(), keys[0], keys[i])
	}
}

func (s *PosterPipelineIntegrationTestSuite) TestRegeneratePresenter() {
	uploaded := s.upload(104)

	result, err := s.posters.RegeneratePresenter(s.ctx, 104, series.PresenterRequest{
		Title:       "Mushishi",
		ReleaseYear: 2005,
		Episodes:    26,
	})
	require.NoError(s.T(), err)
	assert.True(s.T(), result.Generated)
	assert.Empty(s.T(), result.Error)
	assert.Equal(s.T(), uploaded.Key, result.Key)
	s.assertArtifact(storage.VariantPresenter, uploaded.Key, true)
}

func (s *PosterPipelineIntegrationTestSuite) TestImportAndMigrate() {
	// Given: a legacy export, one series already known
	existing := s.upload(201)

	legacy, err := placeholder.Encode(imagetest.Gradient(64, 96))
	require.NoError(s.T(), err)
	k1, err := cachekey.New()
	require.NoError(s.T(), err)
	k2, err := cachekey.New()
	require.NoError(s.T(), err)

	export := strings.Join([]string{
		fmt.Sprintf(`{"seriesId":201,"key":%q,"placeholder":%q}`, k1, legacy.Body),
		fmt.Sprintf(`{"seriesId":202,"key":%q,"placeholder":%q}`, k2, legacy.Body),
		`{"seriesId":203,"key":"short"}`,
	}, "\n")

	// When: importing
	report, err := s.posters.ImportLegacy(s.ctx, strings.NewReader(export))

	// Then: the known series is skipped and keeps its key
	require.NoError(s.T(), err)
	assert.Equal(s.T(), series.ImportReport{Read: 3, Invalid: 1, Inserted: 1, Skipped: 1}, report)
	got, err := s.posters.GetPoster(s.ctx, 201)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), existing.Key, got.Key)

	// When: migrating
	migration, err := s.posters.MigratePlaceholders(s.ctx)

	// Then: the imported record has no artifacts and is converted in place
	require.NoError(s.T(), err)
	assert.Equal(s.T(), series.MigrationReport{Scanned: 1, Converted: 1}, migration)
	remaining, err := s.testSuite.Posters.CountByPlaceholderVersion(s.ctx, placeholder.LegacyVersion)
	require.NoError(s.T(), err)
	assert.Zero(s.T(), remaining)
}

func (s *PosterPipelineIntegrationTestSuite) TestMigrate_RecomputesFromThumbnail() {
	// Given: an uploaded poster whose record was downgraded to the legacy format
	uploaded := s.upload(301)
	legacy, err := placeholder.Encode(imagetest.Gradient(64, 96))
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.testSuite.Posters.UpdatePlaceholder(s.ctx, 301, &legacy.Body, placeholder.LegacyVersion))

	// When: migrating
	migration, err := s.posters.MigratePlaceholders(s.ctx)

	// Then: the placeholder is recomputed from the stored thumbnail
	require.NoError(s.T(), err)
	assert.Equal(s.T(), series.MigrationReport{Scanned: 1, Recomputed: 1}, migration)
	got, err := s.posters.GetPoster(s.ctx, 301)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uploaded.Key, got.Key)
	require.NotNil(s.T(), got.Placeholder)
	_, err = placeholder.Parse(*got.Placeholder)
	assert.NoError(s.T(), err)
}

func (s *PosterPipelineIntegrationTestSuite) TestHTTP_UploadThenServeArtifact() {
	h := handlers.NewWithContainer(s.container, nil, "integration")
	router := h.Routes()

	body := imagetest.EncodeWebP(s.T(), imagetest.Poster(310, 468))
	req := testutils.MakeTestRequest(http.MethodPut, "/api/series/401/poster", bytes.NewReader(body),
		map[string]string{"Content-Type": "image/webp"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	testutils.AssertHTTPStatus(s.T(), rec, http.StatusOK)

	var result poster.CachedImage
	require.NoError(s.T(), testutils.AssertJSONResponse(s.T(), rec, &result))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, testutils.MakeTestRequest(http.MethodGet,
		"/artifacts/"+storage.Path(storage.VariantThumbnail, result.Key), nil, nil))
	testutils.AssertHTTPStatus(s.T(), rec, http.StatusOK)
	assert.Equal(s.T(), "image/webp", rec.Header().Get("Content-Type"))
	assert.NotEmpty(s.T(), rec.Body.Bytes())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, testutils.MakeTestRequest(http.MethodGet, "/readyz", nil, nil))
	testutils.AssertHTTPStatus(s.T(), rec, http.StatusOK)
}
