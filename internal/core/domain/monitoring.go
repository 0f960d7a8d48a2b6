package domain

import "time"

// =============================================================================
// Health Types
// =============================================================================

// HealthStatus is the verdict of a service's health gate.
type HealthStatus string

const (
	HealthStatusStarting  HealthStatus = "starting"
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusNone      HealthStatus = "none" // no health check declared
)

// ProbeResult is the outcome of a single probe execution.
type ProbeResult struct {
	OK       bool          `json:"ok"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// ServiceStatus is a point-in-time snapshot of one service during a run.
type ServiceStatus struct {
	Name      string       `json:"name"`
	State     ServiceState `json:"state"`
	Health    HealthStatus `json:"health"`
	Failures  int          `json:"failures"`
	LastProbe *ProbeResult `json:"last_probe,omitempty"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RunStatus aggregates the statuses of one run, ordered like the plan.
type RunStatus struct {
	Profile  Profile         `json:"profile"`
	RunID    string          `json:"run_id"`
	Services []ServiceStatus `json:"services"`
}
