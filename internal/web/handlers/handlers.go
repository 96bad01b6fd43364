package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/otel/trace"

	"poster-pipeline/internal/domain/series"
	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/platform/storage"
	"poster-pipeline/internal/services"
)

// ReadinessFunc reports failing dependencies by name
type ReadinessFunc func(ctx context.Context) map[string]error

// Options wires a Handler. Tracer and HTTPMetrics may be nil, an
// UploadRateLimit of 0 disables upload throttling.
type Options struct {
	Posters         series.PosterService
	Store           storage.ArtifactStore
	Readiness       ReadinessFunc
	Logger          *observability.Logger
	Tracer          trace.Tracer
	HTTPMetrics     *observability.HTTPMetrics
	MaxUploadSize   int64
	UploadRateLimit int
	Service         string
	Version         string
}

type Handler struct {
	posters       series.PosterService
	store         storage.ArtifactStore
	readiness     ReadinessFunc
	logger        *observability.Logger
	tracer        trace.Tracer
	httpMetrics   *observability.HTTPMetrics
	maxUploadSize int64
	uploadLimit   int
	service       string
	version       string
}

func New(opts Options) *Handler {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.GetTracer()
	}
	return &Handler{
		posters:       opts.Posters,
		store:         opts.Store,
		readiness:     opts.Readiness,
		logger:        opts.Logger,
		tracer:        tracer,
		httpMetrics:   opts.HTTPMetrics,
		maxUploadSize: opts.MaxUploadSize,
		uploadLimit:   opts.UploadRateLimit,
		service:       opts.Service,
		version:       opts.Version,
	}
}

// NewWithContainer wires a Handler from the service container
func NewWithContainer(c *services.Container, httpMetrics *observability.HTTPMetrics, version string) *Handler {
	cfg := c.Config()
	opts := Options{
		Posters:       c.PosterService(),
		Store:         c.Store(),
		Readiness:     c.Readiness,
		Logger:        c.Logger(),
		HTTPMetrics:   httpMetrics,
		MaxUploadSize: cfg.Storage.MaxUploadSize,
		Service:       "poster-pipeline",
		Version:       version,
	}
	if cfg.Server != nil {
		opts.UploadRateLimit = cfg.Server.UploadRateLimit
	}
	return New(opts)
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.TracingMiddleware(h.tracer))
	if h.httpMetrics != nil {
		r.Use(observability.MetricsMiddleware(h.httpMetrics))
	}

	r.Get("/healthz", h.healthzHandler)
	r.Get("/readyz", h.readyzHandler)
	r.Get("/version", h.versionHandler)

	r.Route("/api/series/{id}", func(r chi.Router) {
		r.With(h.uploadLimiter()).Put("/poster", h.uploadPosterHandler)
		r.Get("/poster", h.getPosterHandler)
		r.Post("/presenter", h.presenterHandler)
	})

	r.Get("/artifacts/{variant}/{file}", h.artifactHandler)

	return r
}

// uploadLimiter throttles poster uploads per client IP. Decoding and encoding
// a large poster is the most expensive thing a client can ask for.
func (h *Handler) uploadLimiter() func(http.Handler) http.Handler {
	if h.uploadLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(h.uploadLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.writeJSON(r.Context(), w, http.StatusTooManyRequests, ErrorResponse{Error: "too many uploads, retry later"})
		}),
	)
}
