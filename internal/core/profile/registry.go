// Package profile maps profile names to the services they activate.
// It is a pure lookup layer; the registry is built once and never mutated.
package profile

import (
	"fmt"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/validation"
)

// Registry is the authoritative profile table of a topology.
// A service without profile tags belongs to every profile.
type Registry struct {
	services []domain.ServiceDescriptor
	byName   map[string]int
	members  map[domain.Profile][]int
}

// NewRegistry validates the descriptors and builds the profile table.
func NewRegistry(services []domain.ServiceDescriptor) (*Registry, error) {
	if err := validation.ValidateDescriptors(services); err != nil {
		return nil, err
	}

	sorted := make([]domain.ServiceDescriptor, len(services))
	copy(sorted, services)
	domain.SortByIndex(sorted)

	r := &Registry{
		services: sorted,
		byName:   make(map[string]int, len(sorted)),
		members:  make(map[domain.Profile][]int),
	}

	for i, svc := range sorted {
		r.byName[svc.Name] = i
		for _, p := range domain.KnownProfiles {
			if len(svc.Profiles) == 0 || svc.HasProfile(p) {
				r.members[p] = append(r.members[p], i)
			}
		}
	}

	return r, nil
}

// Resolve returns the services activated by the named profile, in
// declaration order. It fails with domain.ErrUnknownProfile when the name is
// not a known profile or the topology assigns it no services.
func (r *Registry) Resolve(name string) ([]domain.ServiceDescriptor, error) {
	p, err := domain.ParseProfile(name)
	if err != nil {
		return nil, err
	}

	idx := r.members[p]
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: %q activates no services", domain.ErrUnknownProfile, name)
	}

	out := make([]domain.ServiceDescriptor, len(idx))
	for i, j := range idx {
		out[i] = r.services[j]
	}
	return out, nil
}

// Profiles returns the registered profiles, those with at least one
// service, in display order.
func (r *Registry) Profiles() []domain.Profile {
	var out []domain.Profile
	for _, p := range domain.KnownProfiles {
		if len(r.members[p]) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Members returns the service names of p in declaration order.
func (r *Registry) Members(p domain.Profile) []string {
	idx := r.members[p]
	names := make([]string, len(idx))
	for i, j := range idx {
		names[i] = r.services[j].Name
	}
	return names
}

// Service looks up a descriptor by name.
func (r *Registry) Service(name string) (domain.ServiceDescriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return domain.ServiceDescriptor{}, false
	}
	return r.services[i], true
}

// Services returns every descriptor in declaration order.
func (r *Registry) Services() []domain.ServiceDescriptor {
	out := make([]domain.ServiceDescriptor, len(r.services))
	copy(out, r.services)
	return out
}
