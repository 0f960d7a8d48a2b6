package deployment

import "github.com/artpar/stackup/internal/core/domain"

// =============================================================================
// Test Fixtures
// =============================================================================

func service(name string, index int, deps ...domain.Dependency) domain.ServiceDescriptor {
	return domain.ServiceDescriptor{
		Name:      name,
		Index:     index,
		Launch:    domain.LaunchSpec{Image: name + ":latest"},
		DependsOn: deps,
	}
}

func withPorts(s domain.ServiceDescriptor, ports ...int) domain.ServiceDescriptor {
	for _, p := range ports {
		s.Ports = append(s.Ports, domain.PortMapping{HostPort: p, ContainerPort: p, Protocol: "tcp"})
	}
	return s
}

func healthy(name string) domain.Dependency {
	return domain.Dependency{Service: name, Condition: domain.ConditionHealthy, Required: true}
}

func started(name string) domain.Dependency {
	return domain.Dependency{Service: name, Condition: domain.ConditionStarted, Required: true}
}

func optional(d domain.Dependency) domain.Dependency {
	d.Required = false
	return d
}

func names(services []domain.ServiceDescriptor) []string {
	return domain.ServiceNames(services)
}
