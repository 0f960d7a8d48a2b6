package deployment

import "github.com/artpar/stackup/internal/core/domain"

// =============================================================================
// Deployment Planning
// =============================================================================

// BuildPlan turns the services resolved for a profile into a DeploymentPlan.
//
// Checks run in a fixed order so the first failure decides the error kind:
//  1. ValidatePorts - *domain.PortConflictError
//  2. Order - *domain.MissingDependencyError or *domain.CycleError
//
// Nothing is started here; a failed plan has no side effects.
//
// Example:
//
//	services, err := registry.Resolve("backend")
//	plan, err := BuildPlan(domain.ProfileBackend, services)
//	// plan.Names() == ["database", "backend"]
func BuildPlan(profile domain.Profile, services []domain.ServiceDescriptor) (*domain.DeploymentPlan, error) {
	ports, err := ValidatePorts(services)
	if err != nil {
		return nil, err
	}

	ordered, edges, err := Order(services)
	if err != nil {
		return nil, err
	}

	plan := domain.NewDeploymentPlan(profile)
	plan.Services = ordered
	plan.Edges = edges
	plan.ActivePorts = ports
	return plan, nil
}

// MergeEnvironment merges environment layers; later layers win.
// Env files come first in declaration order, then the service overrides.
//
// Example:
//
//	MergeEnvironment(
//	    map[string]string{"PORT": "3000", "A": "1"}, // env file
//	    map[string]string{"PORT": "8080"},           // overrides
//	)
//	// Returns: {"PORT": "8080", "A": "1"}
func MergeEnvironment(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// UnwindOrder returns the services to stop after a failure: those that were
// started, newest first.
//
// Example:
//
//	UnwindOrder([]string{"database", "migrate"}) // returns ["migrate", "database"]
func UnwindOrder(started []string) []string {
	out := make([]string, len(started))
	for i, name := range started {
		out[len(started)-1-i] = name
	}
	return out
}

// CanStop checks whether a service in the given state needs stopping.
// Returns whether the stop is needed and a reason if not.
func CanStop(state domain.ServiceState) (bool, string) {
	switch state {
	case domain.StatePending:
		return false, "service was never started"
	case domain.StateStopping, domain.StateStopped:
		return false, "service is already stopping"
	default:
		return true, ""
	}
}
