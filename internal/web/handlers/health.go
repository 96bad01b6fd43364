package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusOK        = "ok"
	healthStatusUnhealthy = "unhealthy"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// VersionResponse is served on /version
type VersionResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// healthzHandler handles liveness checks (/healthz)
func (h *Handler) healthzHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, HealthResponse{Status: healthStatusOK})
}

// readyzHandler handles readiness checks (/readyz). Every dependency the
// container reports must answer within two seconds.
func (h *Handler) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var results map[string]error
	if h.readiness != nil {
		results = h.readiness(ctx)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(results))
	allHealthy := true
	for _, name := range names {
		if err := results[name]; err != nil {
			checks[name] = healthStatusUnhealthy + ": " + err.Error()
			allHealthy = false
			h.logger.Warn(r.Context()).Err(err).Str("check", name).Msg("Readiness check failed")
			continue
		}
		checks[name] = healthStatusHealthy
	}

	response := HealthResponse{Status: healthStatusOK, Checks: checks, Version: h.version}
	status := http.StatusOK
	if !allHealthy {
		response.Status = healthStatusUnhealthy
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(r.Context(), w, status, response)
}

func (h *Handler) versionHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, VersionResponse{Service: h.service, Version: h.version})
}
