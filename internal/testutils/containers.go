package testutils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	redisModule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"poster-pipeline/internal/config"
	"poster-pipeline/internal/platform/cache"
	"poster-pipeline/internal/platform/database"
	"poster-pipeline/internal/platform/storage"
)

const testBucket = "test-posters"

// TestContainers manages test containers for integration testing
type TestContainers struct {
	PostgresContainer testcontainers.Container
	MinioContainer    testcontainers.Container
	RedisContainer    testcontainers.Container
	DB                *sql.DB
	Store             *storage.MinIOStore
	RedisClient       *cache.RedisClient
	DatabaseURL       string
	MinioEndpoint     string
	MinioUsername     string
	MinioPassword     string
	RedisAddress      string
}

// SetupTestContainers starts Postgres, MinIO and Valkey and runs migrations
func SetupTestContainers(ctx context.Context) (*TestContainers, error) {
	containers := &TestContainers{
		MinioUsername: "testuser",
		MinioPassword: "testpass123",
	}

	if err := containers.setupPostgres(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup postgres container: %w", err)
	}

	if err := containers.setupMinio(ctx); err != nil {
		_ = containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup minio container: %w", err)
	}

	if err := containers.setupRedis(ctx); err != nil {
		_ = containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup redis container: %w", err)
	}

	if _, err := database.RunMigrations(ctx, containers.DB); err != nil {
		_ = containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return containers, nil
}

// setupPostgres creates and starts a PostgreSQL test container
func (tc *TestContainers) setupPostgres(ctx context.Context) error {
	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.WithSQLDriver("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}

	tc.PostgresContainer = postgresContainer

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	tc.DatabaseURL = connStr

	db, err := database.NewConnection(ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	tc.DB = db
	return nil
}

// setupMinio creates and starts a MinIO test container
func (tc *TestContainers) setupMinio(ctx context.Context) error {
	minioContainer, err := minio.Run(ctx,
		"minio/minio:latest",
		minio.WithUsername(tc.MinioUsername),
		minio.WithPassword(tc.MinioPassword),
	)
	if err != nil {
		return fmt.Errorf("failed to start minio container: %w", err)
	}

	tc.MinioContainer = minioContainer

	endpoint, err := minioContainer.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get minio endpoint: %w", err)
	}

	tc.MinioEndpoint = endpoint

	// The store creates the bucket on first use
	store, err := storage.NewMinIOStore(ctx, tc.StorageConfig())
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}

	tc.Store = store
	return nil
}

// setupRedis creates and starts a Valkey test container (Redis-compatible)
func (tc *TestContainers) setupRedis(ctx context.Context) error {
	redisContainer, err := redisModule.Run(ctx,
		"valkey/valkey:7-alpine",
		redisModule.WithSnapshotting(10, 1),
		redisModule.WithLogLevel(redisModule.LogLevelVerbose),
	)
	if err != nil {
		return fmt.Errorf("failed to start valkey container: %w", err)
	}

	tc.RedisContainer = redisContainer

	endpoint, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get valkey endpoint: %w", err)
	}

	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse valkey endpoint: %w", err)
	}
	tc.RedisAddress = opts.Addr

	redisClient, err := cache.NewRedisClient(tc.CacheConfig())
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}

	tc.RedisClient = redisClient
	return nil
}

// StorageConfig points the minio backend at the container
func (tc *TestContainers) StorageConfig() config.StorageConfig {
	return config.StorageConfig{
		Endpoint:        tc.MinioEndpoint,
		AccessKeyID:     tc.MinioUsername,
		SecretAccessKey: tc.MinioPassword,
		BucketName:      testBucket,
		Region:          "us-east-1",
		MaxUploadSize:   10 << 20,
	}
}

// CacheConfig points the record cache and locks at the container
func (tc *TestContainers) CacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Address:     tc.RedisAddress,
		DefaultTTL:  time.Hour,
		LockTTL:     30 * time.Second,
		DialTimeout: 5 * time.Second,
	}
}

// Config returns a complete configuration wired to every container
func (tc *TestContainers) Config() *config.Config {
	return &config.Config{
		Environment: "test",
		DatabaseURL: tc.DatabaseURL,
		Artifacts:   config.ArtifactConfig{Backend: config.BackendMinIO},
		Storage:     tc.StorageConfig(),
		Pipeline: config.PipelineConfig{
			Workers:          2,
			ThumbnailQuality: 85,
			PresenterQuality: 85,
		},
		Cache: tc.CacheConfig(),
	}
}

// Cleanup terminates all test containers and closes connections
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	var errs []error

	if tc.DB != nil {
		if err := tc.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if tc.RedisClient != nil {
		if err := tc.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close valkey client: %w", err))
		}
	}

	for name, container := range map[string]testcontainers.Container{
		"postgres": tc.PostgresContainer,
		"minio":    tc.MinioContainer,
		"valkey":   tc.RedisContainer,
	} {
		if container == nil {
			continue
		}
		if err := container.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate %s container: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// ResetData clears poster records and the cache. Artifacts are left in place
// since every test allocates fresh keys.
func (tc *TestContainers) ResetData(ctx context.Context) error {
	if _, err := tc.DB.ExecContext(ctx, "TRUNCATE poster_images"); err != nil {
		return fmt.Errorf("failed to truncate poster records: %w", err)
	}

	if err := tc.RedisClient.FlushCache(ctx); err != nil {
		return fmt.Errorf("failed to flush valkey: %w", err)
	}

	return nil
}
