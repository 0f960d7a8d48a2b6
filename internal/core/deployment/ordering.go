package deployment

import (
	"github.com/artpar/stackup/internal/core/domain"
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

// ActiveEdges restricts dependency edges to the given service set.
//
// An edge whose target is in the set is kept. An edge whose target is absent
// is dropped when it is not required (the dependency is satisfied outside
// this activation) and fails with *domain.MissingDependencyError when it is.
// Edges are returned in declaration order of their dependents, then by
// dependency name.
func ActiveEdges(services []domain.ServiceDescriptor) ([]domain.Edge, error) {
	ordered := make([]domain.ServiceDescriptor, len(services))
	copy(ordered, services)
	domain.SortByIndex(ordered)

	active := make(map[string]bool, len(ordered))
	for _, svc := range ordered {
		active[svc.Name] = true
	}

	var edges []domain.Edge
	for _, svc := range ordered {
		deps := make([]domain.Dependency, len(svc.DependsOn))
		copy(deps, svc.DependsOn)
		domain.SortDependencies(deps)

		for _, dep := range deps {
			if !active[dep.Service] {
				if dep.Required {
					return nil, &domain.MissingDependencyError{Service: svc.Name, Dependency: dep.Service}
				}
				continue
			}
			edges = append(edges, domain.Edge{
				From:      svc.Name,
				To:        dep.Service,
				Condition: dep.Condition,
				Required:  dep.Required,
			})
		}
	}
	return edges, nil
}

// Order sorts services by their dependencies using Kahn's algorithm and
// returns them with the edges that were honored.
//
// The sort is deterministic: among the services whose dependencies have all
// been placed, the one declared first is placed next. Identical input always
// yields identical output.
//
// Fails with *domain.MissingDependencyError (see ActiveEdges) or with
// *domain.CycleError naming one cycle among the services that could not be
// placed.
//
// Example:
//
//	// Services: aio → migrate → database
//	ordered, edges, err := Order(services)
//	// ordered: [database, migrate, aio]
//	// edges:   [aio→migrate (started), migrate→database (healthy)]
func Order(services []domain.ServiceDescriptor) ([]domain.ServiceDescriptor, []domain.Edge, error) {
	if len(services) == 0 {
		return nil, nil, nil
	}

	edges, err := ActiveEdges(services)
	if err != nil {
		return nil, nil, err
	}

	// Build dependency graph
	byName := make(map[string]domain.ServiceDescriptor, len(services))
	pending := make(map[string]int, len(services))
	dependents := make(map[string][]string)

	for _, svc := range services {
		byName[svc.Name] = svc
		pending[svc.Name] = 0
	}
	for _, e := range edges {
		pending[e.From]++
		dependents[e.To] = append(dependents[e.To], e.From)
	}

	// Start with services that have no dependencies
	ready := make(map[string]bool)
	for name, n := range pending {
		if n == 0 {
			ready[name] = true
		}
	}

	result := make([]domain.ServiceDescriptor, 0, len(services))
	for len(ready) > 0 {
		name := lowestIndex(ready, byName)
		delete(ready, name)
		result = append(result, byName[name])

		// Reduce pending count for dependents
		for _, dep := range dependents[name] {
			pending[dep]--
			if pending[dep] == 0 {
				ready[dep] = true
			}
		}
	}

	if len(result) < len(services) {
		placed := make(map[string]bool, len(result))
		for _, s := range result {
			placed[s.Name] = true
		}
		return nil, nil, &domain.CycleError{Path: findCycle(services, edges, placed, byName)}
	}

	return result, edges, nil
}

// lowestIndex picks the earliest-declared name from set.
func lowestIndex(set map[string]bool, byName map[string]domain.ServiceDescriptor) string {
	best := ""
	for name := range set {
		if best == "" || byName[name].Index < byName[best].Index ||
			(byName[name].Index == byName[best].Index && name < best) {
			best = name
		}
	}
	return best
}

// findCycle walks dependency edges among unplaced services, starting at the
// earliest-declared one, until a service repeats. Every unplaced service has
// at least one unplaced dependency, so the walk always closes a cycle.
func findCycle(services []domain.ServiceDescriptor, edges []domain.Edge, placed map[string]bool, byName map[string]domain.ServiceDescriptor) []string {
	remaining := make(map[string]bool)
	for _, s := range services {
		if !placed[s.Name] {
			remaining[s.Name] = true
		}
	}

	next := func(from string) string {
		candidates := make(map[string]bool)
		for _, e := range edges {
			if e.From == from && remaining[e.To] {
				candidates[e.To] = true
			}
		}
		if len(candidates) == 0 {
			return ""
		}
		return lowestIndex(candidates, byName)
	}

	var path []string
	seenAt := make(map[string]int)
	current := lowestIndex(remaining, byName)
	for current != "" {
		if at, seen := seenAt[current]; seen {
			cycle := append([]string{}, path[at:]...)
			return append(cycle, current)
		}
		seenAt[current] = len(path)
		path = append(path, current)
		current = next(current)
	}
	return path
}
