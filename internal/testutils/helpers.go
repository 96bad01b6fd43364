package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"poster-pipeline/internal/cachekey"
	"poster-pipeline/internal/platform/database"
)

// TestSuite provides common test utilities for integration tests
type TestSuite struct {
	Containers *TestContainers
	Posters    database.PosterRepository
}

// SetupTestSuite initializes a complete test suite with containers and repositories
func SetupTestSuite(ctx context.Context) (*TestSuite, error) {
	containers, err := SetupTestContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to setup test containers: %w", err)
	}

	return &TestSuite{
		Containers: containers,
		Posters:    database.NewPosterRepository(containers.DB),
	}, nil
}

// Cleanup cleans up all test resources
func (ts *TestSuite) Cleanup(ctx context.Context) error {
	return ts.Containers.Cleanup(ctx)
}

// ResetData clears all test data
func (ts *TestSuite) ResetData(ctx context.Context) error {
	return ts.Containers.ResetData(ctx)
}

// CreateTestPoster stores a record with a fresh key and no artifacts
func (ts *TestSuite) CreateTestPoster(ctx context.Context, seriesID int64, placeholder *string, version int) (*database.PosterRecord, error) {
	key, err := cachekey.New()
	if err != nil {
		return nil, err
	}

	record := &database.PosterRecord{
		SeriesID:           seriesID,
		CacheKey:           key.String(),
		Placeholder:        placeholder,
		PlaceholderVersion: version,
	}
	if err := ts.Posters.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create test poster: %w", err)
	}

	return record, nil
}

// MakeTestRequest creates an HTTP test request with the given parameters
func MakeTestRequest(method, url string, body io.Reader, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, url, body)

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req
}

// MakeJSONRequest creates an HTTP test request with JSON body
func MakeJSONRequest(method, url string, payload interface{}) *http.Request {
	var body io.Reader
	if payload != nil {
		jsonData, _ := json.Marshal(payload)
		body = bytes.NewReader(jsonData)
	}

	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", "application/json")

	return req
}

// AssertHTTPStatus checks if the HTTP response has the expected status code
func AssertHTTPStatus(t TestingInterface, resp *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if resp.Code != expectedStatus {
		t.Errorf("Expected status %d, got %d. Body: %s", expectedStatus, resp.Code, resp.Body.String())
	}
}

// AssertJSONResponse checks if the response contains valid JSON and optionally decodes it
func AssertJSONResponse(t TestingInterface, resp *httptest.ResponseRecorder, target interface{}) error {
	t.Helper()
	if !strings.Contains(resp.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Expected JSON response, got %s", resp.Header().Get("Content-Type"))
		return fmt.Errorf("not a JSON response")
	}

	if target != nil {
		if err := json.Unmarshal(resp.Body.Bytes(), target); err != nil {
			t.Errorf("Failed to unmarshal JSON response: %v", err)
			return err
		}
	}

	return nil
}

// TestingInterface defines the interface for testing frameworks (compatible with testing.T)
type TestingInterface interface {
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	Helper()
}
