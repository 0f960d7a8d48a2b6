package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type stubStatus struct {
	run *domain.RunStatus
}

func (s stubStatus) Status() (domain.RunStatus, bool) {
	if s.run == nil {
		return domain.RunStatus{}, false
	}
	return *s.run, true
}

func (s stubStatus) Health() (domain.HealthStatus, bool) {
	if s.run == nil {
		return domain.HealthStatusNone, false
	}
	return monitoring.AggregateRun(s.run.Services), true
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func backendRun(backend domain.ServiceState) *domain.RunStatus {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.RunStatus{
		Profile: domain.ProfileBackend,
		RunID:   "run-1",
		Services: []domain.ServiceStatus{
			{
				Name:      "database",
				State:     domain.StateHealthy,
				Health:    domain.HealthStatusHealthy,
				LastProbe: &domain.ProbeResult{OK: true, Output: "accepting connections", Duration: 12 * time.Millisecond, At: at},
				UpdatedAt: at,
			},
			{Name: "backend", State: backend, Health: domain.HealthStatusNone, UpdatedAt: at},
		},
	}
}

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealth(t *testing.T) {
	h := NewHandler(stubStatus{}, nil, nil, nil)

	rec := serve(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		status StatusSource
		docker Pinger
		want   int
		checks map[string]string
	}{
		{
			name:   "ready",
			status: stubStatus{run: backendRun(domain.StateStarted)},
			docker: stubPinger{},
			want:   http.StatusOK,
			checks: map[string]string{"docker": "ok", "run": "healthy"},
		},
		{
			name:   "not started",
			status: stubStatus{},
			docker: stubPinger{},
			want:   http.StatusServiceUnavailable,
			checks: map[string]string{"docker": "ok", "run": "not_started"},
		},
		{
			name:   "still starting",
			status: stubStatus{run: backendRun(domain.StatePending)},
			want:   http.StatusServiceUnavailable,
			checks: map[string]string{"run": "starting"},
		},
		{
			name:   "service failed",
			status: stubStatus{run: backendRun(domain.StateFailed)},
			want:   http.StatusServiceUnavailable,
			checks: map[string]string{"run": "unhealthy"},
		},
		{
			name:   "docker down",
			status: stubStatus{run: backendRun(domain.StateStarted)},
			docker: stubPinger{err: errors.New("connection refused")},
			want:   http.StatusServiceUnavailable,
			checks: map[string]string{"docker": "failed", "run": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, NewHandler(tt.status, tt.docker, nil, nil), "/ready")
			assert.Equal(t, tt.want, rec.Code)

			var resp ReadyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.checks, resp.Checks)
		})
	}
}

// =============================================================================
// Status Tests
// =============================================================================

func TestStatus(t *testing.T) {
	h := NewHandler(stubStatus{run: backendRun(domain.StateStarted)}, nil, nil, nil)

	rec := serve(t, h, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "backend", resp.Profile)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "healthy", resp.Health)
	require.Len(t, resp.Services, 2)
	assert.Equal(t, "database", resp.Services[0].Name)
	require.NotNil(t, resp.Services[0].LastProbe)
	assert.Equal(t, int64(12), resp.Services[0].LastProbe.DurationMS)
	assert.Nil(t, resp.Services[1].LastProbe)
}

func TestStatus_NotStarted(t *testing.T) {
	rec := serve(t, NewHandler(stubStatus{}, nil, nil, nil), "/api/v1/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_started", resp.Code)
}

func TestService(t *testing.T) {
	run := backendRun(domain.StateFailed)
	run.Services[1].Error = "launch failed"
	h := NewHandler(stubStatus{run: run}, nil, nil, nil)

	rec := serve(t, h, "/api/v1/services/backend")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ServiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.State)
	assert.Equal(t, "launch failed", resp.Error)

	rec = serve(t, h, "/api/v1/services/admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Metrics and Server Tests
// =============================================================================

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "stackup_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := NewHandler(stubStatus{}, nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil)
	rec := serve(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stackup_test_total 1")
}

func TestMetricsEndpoint_AbsentWithoutHandler(t *testing.T) {
	rec := serve(t, NewHandler(stubStatus{}, nil, nil, nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ServesUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), NewHandler(stubStatus{}, nil, nil, nil).Routes(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
