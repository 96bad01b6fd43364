package server

import (
	"net"
	"net/http"
	"time"

	"poster-pipeline/internal/config"
)

const (
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// New builds the HTTP server. Uploads can be slow on large posters, so the
// write timeout comes from configuration.
func New(cfg *config.Config, handler http.Handler) *http.Server {
	readTimeout, writeTimeout, idleTimeout := defaultReadTimeout, defaultWriteTimeout, defaultIdleTimeout
	if cfg.Server != nil {
		readTimeout = orDefault(cfg.Server.ReadTimeout, readTimeout)
		writeTimeout = orDefault(cfg.Server.WriteTimeout, writeTimeout)
		idleTimeout = orDefault(cfg.Server.IdleTimeout, idleTimeout)
	}

	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
