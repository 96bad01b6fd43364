package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poster-pipeline/internal/config"
	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/platform/database"
	"poster-pipeline/internal/platform/server"
	"poster-pipeline/internal/services"
	"poster-pipeline/internal/web/handlers"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	obsCfg := observability.LoadConfig()
	obsCfg.LogLevel = cfg.Logging.Level
	obsCfg.LogFormat = cfg.Logging.Format
	obsCfg.LogOutput = cfg.Logging.Output
	logger := observability.NewLogger(obsCfg)

	ctx := context.Background()

	provider, err := observability.NewProvider(ctx, obsCfg, logger)
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to initialize OpenTelemetry")
	}

	pipelineMetrics, err := observability.NewPipelineMetrics(observability.GetPipelineMeter())
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to register pipeline metrics")
	}
	httpMetrics, err := observability.NewHTTPMetrics(observability.GetMeter())
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to register HTTP metrics")
	}

	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to connect to database")
	}

	applied, err := database.RunMigrations(ctx, db)
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to run migrations")
	}
	if len(applied) > 0 {
		logger.Info(ctx).Strs("versions", applied).Msg("Applied database migrations")
	}

	container, err := services.NewContainer(ctx, cfg, db, logger, pipelineMetrics)
	if err != nil {
		logger.Fatal(ctx).Err(err).Msg("Failed to initialize services container")
	}

	handler := handlers.NewWithContainer(container, httpMetrics, obsCfg.ServiceVersion)
	srv := server.New(cfg, handler.Routes())

	go func() {
		logger.Info(ctx).
			Str("addr", srv.Addr).
			Str("artifact_backend", cfg.Artifacts.Backend).
			Int("workers", cfg.Pipeline.Workers).
			Bool("cache_enabled", cfg.Cache.Enabled).
			Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx).Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx).Msg("Server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx).Err(err).Msg("Server forced to shutdown")
	}
	// Close waits for in-flight pipeline jobs before the database goes away
	if err := container.Close(shutdownCtx); err != nil {
		logger.Error(shutdownCtx).Err(err).Msg("Failed to close services")
	}
	if err := db.Close(); err != nil {
		logger.Error(shutdownCtx).Err(err).Msg("Failed to close database")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx).Err(err).Msg("Failed to shutdown OpenTelemetry")
	}

	logger.Info(shutdownCtx).Msg("Server exited")
}
