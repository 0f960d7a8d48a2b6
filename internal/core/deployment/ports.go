package deployment

import (
	"fmt"
	"sort"

	"github.com/artpar/stackup/internal/core/domain"
)

// =============================================================================
// Port Allocation
// =============================================================================

// ValidatePorts checks that no host port is published by two distinct
// services of one activation and returns the active host ports, sorted.
//
// Services are visited in declaration order, so a conflict always names the
// earlier-declared service first. Ephemeral host ports (0) never conflict.
// The same port on different protocols is not a conflict. A service that
// publishes the same host port twice is a malformed descriptor, not a
// conflict between services.
//
// Example:
//
//	services := []domain.ServiceDescriptor{
//	    {Name: "app", Index: 0, Ports: []domain.PortMapping{{HostPort: 3000, ContainerPort: 3000}}},
//	    {Name: "aio", Index: 1, Ports: []domain.PortMapping{{HostPort: 3000, ContainerPort: 80}}},
//	}
//	_, err := ValidatePorts(services)
//	// err is *domain.PortConflictError{Port: 3000, ServiceA: "app", ServiceB: "aio"}
func ValidatePorts(services []domain.ServiceDescriptor) ([]domain.HostPort, error) {
	ordered := make([]domain.ServiceDescriptor, len(services))
	copy(ordered, services)
	domain.SortByIndex(ordered)

	owners := make(map[domain.HostPort]string)
	var active []domain.HostPort

	for _, svc := range ordered {
		for _, p := range svc.Ports {
			if p.HostPort == 0 {
				continue
			}
			key := p.Key()
			if owner, taken := owners[key]; taken {
				if owner == svc.Name {
					return nil, duplicatePort(svc.Name, key)
				}
				return nil, &domain.PortConflictError{
					Port:     key.Port,
					Protocol: key.Protocol,
					ServiceA: owner,
					ServiceB: svc.Name,
				}
			}
			owners[key] = svc.Name
			active = append(active, key)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Port != active[j].Port {
			return active[i].Port < active[j].Port
		}
		return active[i].Protocol < active[j].Protocol
	})
	return active, nil
}

func duplicatePort(service string, key domain.HostPort) error {
	return domain.NewConfigError("services."+service+".ports",
		fmt.Sprintf("host port %d/%s published more than once", key.Port, key.Protocol),
		domain.ErrMalformedDescriptor)
}
