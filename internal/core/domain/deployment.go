package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Service State
// =============================================================================

// ServiceState is the lifecycle state of one service during a run.
type ServiceState string

const (
	StatePending  ServiceState = "pending"
	StateStarting ServiceState = "starting"
	StateStarted  ServiceState = "started"
	StateHealthy  ServiceState = "healthy"
	StateFailed   ServiceState = "failed"
	StateStopping ServiceState = "stopping"
	StateStopped  ServiceState = "stopped"
)

// validTransitions defines the allowed state transitions.
var validTransitions = map[ServiceState][]ServiceState{
	StatePending:  {StateStarting, StateStopped},
	StateStarting: {StateStarted, StateFailed},
	StateStarted:  {StateHealthy, StateFailed, StateStopping},
	StateHealthy:  {StateStopping},
	StateFailed:   {StateStopping, StateStopped},
	StateStopping: {StateStopped},
	StateStopped:  {}, // Terminal state
}

// ValidateTransition checks if a state transition is valid.
func ValidateTransition(from, to ServiceState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}

// Satisfies reports whether a dependency waiting on c may proceed.
func (s ServiceState) Satisfies(c Condition) bool {
	switch c {
	case ConditionHealthy:
		return s == StateHealthy
	default:
		return s == StateStarted || s == StateHealthy
	}
}

// Terminal reports whether no further progress towards readiness is possible.
func (s ServiceState) Terminal() bool {
	return s == StateFailed || s == StateStopping || s == StateStopped
}

// =============================================================================
// Deployment Plan
// =============================================================================

// Edge is a dependency edge restricted to a plan's active services.
type Edge struct {
	From      string    `json:"from"` // dependent
	To        string    `json:"to"`   // dependency
	Condition Condition `json:"condition"`
	Required  bool      `json:"required"`
}

// DeploymentPlan is computed fresh for every invocation and never mutated
// once returned by the planner.
type DeploymentPlan struct {
	Profile Profile `json:"profile"`
	RunID   string  `json:"run_id"`
	// Services are in dependency-consistent start order.
	Services    []ServiceDescriptor          `json:"services"`
	Edges       []Edge                       `json:"edges"`
	ActivePorts []HostPort                   `json:"active_ports"`
	Environment map[string]map[string]string `json:"environment,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
}

// NewDeploymentPlan creates an empty plan with a fresh run ID.
func NewDeploymentPlan(profile Profile) *DeploymentPlan {
	return &DeploymentPlan{
		Profile:     profile,
		RunID:       uuid.New().String(),
		Environment: make(map[string]map[string]string),
		CreatedAt:   time.Now().UTC(),
	}
}

// Names returns service names in start order.
func (p *DeploymentPlan) Names() []string {
	return ServiceNames(p.Services)
}

// Service looks up an active service by name.
func (p *DeploymentPlan) Service(name string) (ServiceDescriptor, bool) {
	for _, s := range p.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceDescriptor{}, false
}

// DependenciesOf returns the edges leaving the named service.
func (p *DeploymentPlan) DependenciesOf(name string) []Edge {
	var edges []Edge
	for _, e := range p.Edges {
		if e.From == name {
			edges = append(edges, e)
		}
	}
	return edges
}

// ReverseNames returns service names in stop order.
func (p *DeploymentPlan) ReverseNames() []string {
	names := p.Names()
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}
