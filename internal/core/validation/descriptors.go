package validation

import (
	"errors"
	"fmt"

	"github.com/artpar/stackup/internal/core/domain"
)

// =============================================================================
// Descriptor Validation Functions
// =============================================================================

// ValidateDescriptors validates a complete topology. It returns nil or a
// joined error carrying every problem found, so a single run reports all of
// them.
//
// Example:
//
//	if err := ValidateDescriptors(services); err != nil {
//	    errors.Is(err, domain.ErrDuplicateService) // true if two services share a name
//	}
func ValidateDescriptors(services []domain.ServiceDescriptor) error {
	var errs []error

	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if seen[svc.Name] {
			errs = append(errs, domain.NewConfigError("services."+svc.Name,
				"service name declared more than once", domain.ErrDuplicateService))
			continue
		}
		seen[svc.Name] = true

		errs = append(errs, ValidateDescriptor(svc)...)
	}

	errs = append(errs, ValidateHealthyTargets(services)...)

	return errors.Join(errs...)
}

// ValidateDescriptor validates one service in isolation.
func ValidateDescriptor(svc domain.ServiceDescriptor) []error {
	var errs []error
	field := "services." + svc.Name

	if svc.Name == "" {
		errs = append(errs, domain.NewConfigError("services", "service name is required", domain.ErrMalformedDescriptor))
	}

	if svc.Launch.IsZero() && svc.Migration == nil {
		errs = append(errs, domain.NewConfigError(field, "service must have image, build or x-migrate", domain.ErrMalformedDescriptor))
	}

	for _, p := range svc.Profiles {
		if !p.Valid() {
			errs = append(errs, domain.NewConfigError(field+".profiles",
				fmt.Sprintf("unknown profile %q", p), domain.ErrUnknownProfileTag))
		}
	}

	published := make(map[domain.HostPort]bool, len(svc.Ports))
	for i, p := range svc.Ports {
		if p.HostPort < 0 || p.HostPort > 65535 || p.ContainerPort <= 0 || p.ContainerPort > 65535 {
			errs = append(errs, domain.NewConfigError(fmt.Sprintf("%s.ports[%d]", field, i),
				"port out of range", domain.ErrMalformedDescriptor))
			continue
		}
		if p.HostPort == 0 {
			continue
		}
		if key := p.Key(); published[key] {
			errs = append(errs, domain.NewConfigError(fmt.Sprintf("%s.ports[%d]", field, i),
				fmt.Sprintf("host port %d/%s published more than once", key.Port, key.Protocol), domain.ErrMalformedDescriptor))
		} else {
			published[key] = true
		}
	}

	for _, dep := range svc.DependsOn {
		if dep.Service == svc.Name {
			errs = append(errs, &domain.CycleError{Path: []string{svc.Name, svc.Name}})
		}
		if dep.Condition != domain.ConditionStarted && dep.Condition != domain.ConditionHealthy {
			errs = append(errs, domain.NewConfigError(field+".depends_on."+dep.Service,
				fmt.Sprintf("unknown condition %q", dep.Condition), domain.ErrMalformedDescriptor))
		}
	}

	if hc := svc.HealthCheck; hc != nil {
		if len(hc.Test) == 0 {
			errs = append(errs, domain.NewConfigError(field+".healthcheck", "test is required", domain.ErrMalformedDescriptor))
		} else if err := validateProbe(field+".healthcheck", hc.Test); err != nil {
			errs = append(errs, err)
		}
		if hc.Retries < 0 || hc.Interval < 0 || hc.Timeout < 0 {
			errs = append(errs, domain.NewConfigError(field+".healthcheck", "negative values are not allowed", domain.ErrMalformedDescriptor))
		}
	}

	return errs
}

// validateProbe checks the probe kind and its argument count. CMD takes any
// number of arguments; every other kind takes exactly one.
func validateProbe(field string, test []string) error {
	switch test[0] {
	case domain.ProbeCmd:
		if len(test) < 2 {
			return domain.NewConfigError(field, "CMD probe needs a command", domain.ErrMalformedDescriptor)
		}
	case domain.ProbeCmdShell, domain.ProbeShell, domain.ProbeHTTP, domain.ProbePostgres:
		if len(test) != 2 {
			return domain.NewConfigError(field, fmt.Sprintf("%s probe takes exactly one argument", test[0]), domain.ErrMalformedDescriptor)
		}
	default:
		return domain.NewConfigError(field, fmt.Sprintf("unsupported probe kind %q", test[0]), domain.ErrMalformedDescriptor)
	}
	return nil
}

// ValidateHealthyTargets checks that every Healthy edge whose target is
// declared in the topology points at a service with a health check. Targets
// absent from the topology are left to the dependency resolver.
func ValidateHealthyTargets(services []domain.ServiceDescriptor) []error {
	byName := make(map[string]domain.ServiceDescriptor, len(services))
	for _, svc := range services {
		byName[svc.Name] = svc
	}

	var errs []error
	for _, svc := range services {
		for _, dep := range svc.DependsOn {
			if dep.Condition != domain.ConditionHealthy {
				continue
			}
			target, ok := byName[dep.Service]
			if !ok {
				continue
			}
			if target.HealthCheck == nil {
				errs = append(errs, domain.NewConfigError(
					"services."+svc.Name+".depends_on."+dep.Service,
					fmt.Sprintf("%q waits for %q to be healthy but %q declares no health check", svc.Name, dep.Service, dep.Service),
					domain.ErrHealthyWithoutCheck,
				))
			}
		}
	}
	return errs
}
