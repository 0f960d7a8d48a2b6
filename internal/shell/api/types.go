package api

import "time"

// =============================================================================
// Response Types
// =============================================================================

// StatusResponse is the status of the current run.
type StatusResponse struct {
	Profile  string            `json:"profile"`
	RunID    string            `json:"run_id"`
	Health   string            `json:"health"`
	Services []ServiceResponse `json:"services"`
}

// ServiceResponse is the status of one service of the run.
type ServiceResponse struct {
	Name      string         `json:"name"`
	State     string         `json:"state"`
	Health    string         `json:"health"`
	Failures  int            `json:"failures"`
	LastProbe *ProbeResponse `json:"last_probe,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ProbeResponse is the most recent probe of a service.
type ProbeResponse struct {
	OK         bool      `json:"ok"`
	Output     string    `json:"output,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for the ready endpoint.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
