// Package api serves the status of the running profile over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/monitoring"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Handler
// =============================================================================

// StatusSource reports the status of the current run. Both methods return
// false before a run exists.
type StatusSource interface {
	Status() (domain.RunStatus, bool)
	Health() (domain.HealthStatus, bool)
}

// Pinger checks that the container engine is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the status API.
type Handler struct {
	status  StatusSource
	docker  Pinger
	metrics http.Handler
	logger  *slog.Logger
}

// NewHandler creates a new API handler. docker and metrics may be nil.
func NewHandler(status StatusSource, docker Pinger, metrics http.Handler, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		status:  status,
		docker:  docker,
		metrics: metrics,
		logger:  l.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/status", h.handleStatus)
			r.Get("/services/{name}", h.handleService)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleReady is ready once the engine answers and every service of the
// run has passed its gate.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if h.docker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.docker.Ping(ctx); err != nil {
			checks["docker"] = "failed"
			ready = false
		} else {
			checks["docker"] = "ok"
		}
	}

	health, ok := h.status.Health()
	switch {
	case !ok:
		checks["run"] = "not_started"
		ready = false
	default:
		checks["run"] = string(health)
		if health != domain.HealthStatusHealthy {
			ready = false
		}
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Status Handlers
// =============================================================================

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	run, ok := h.status.Status()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no profile has been started", "not_started")
		return
	}
	h.writeJSON(w, http.StatusOK, runToResponse(run))
}

func (h *Handler) handleService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	run, ok := h.status.Status()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no profile has been started", "not_started")
		return
	}
	for _, s := range run.Services {
		if s.Name == name {
			h.writeJSON(w, http.StatusOK, serviceToResponse(s))
			return
		}
	}
	h.writeError(w, http.StatusNotFound, "service not in the active profile", "not_found")
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func runToResponse(run domain.RunStatus) StatusResponse {
	resp := StatusResponse{
		Profile:  string(run.Profile),
		RunID:    run.RunID,
		Health:   string(monitoring.AggregateRun(run.Services)),
		Services: make([]ServiceResponse, 0, len(run.Services)),
	}
	for _, s := range run.Services {
		resp.Services = append(resp.Services, serviceToResponse(s))
	}
	return resp
}

func serviceToResponse(s domain.ServiceStatus) ServiceResponse {
	resp := ServiceResponse{
		Name:      s.Name,
		State:     string(s.State),
		Health:    string(s.Health),
		Failures:  s.Failures,
		Error:     s.Error,
		UpdatedAt: s.UpdatedAt,
	}
	if s.LastProbe != nil {
		resp.LastProbe = &ProbeResponse{
			OK:         s.LastProbe.OK,
			Output:     s.LastProbe.Output,
			DurationMS: s.LastProbe.Duration.Milliseconds(),
			At:         s.LastProbe.At,
		}
	}
	return resp
}
