package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/stackup/internal/core/domain"
)

// =============================================================================
// Cross-Profile Advisories
// =============================================================================

// Claim is one service publishing a host port under a profile.
type Claim struct {
	Profile domain.Profile
	Service string
}

// Overlap is a host port published by different services in different
// profiles. It never blocks an activation: those profiles are alternatives,
// and running them at the same time is what the overlap warns against.
type Overlap struct {
	Port   domain.HostPort
	Claims []Claim
}

func (o Overlap) String() string {
	parts := make([]string, len(o.Claims))
	for i, c := range o.Claims {
		parts[i] = fmt.Sprintf("%s/%s", c.Profile, c.Service)
	}
	return fmt.Sprintf("host port %s shared by %s", o.Port, strings.Join(parts, ", "))
}

// Profiles returns the distinct profiles involved, in display order.
func (o Overlap) Profiles() []domain.Profile {
	seen := make(map[domain.Profile]bool)
	var out []domain.Profile
	for _, p := range domain.KnownProfiles {
		for _, c := range o.Claims {
			if c.Profile == p && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// CrossProfileOverlaps lists host ports that two different services publish
// under two different profiles, ordered by port. Ephemeral ports are ignored.
func CrossProfileOverlaps(r *Registry) []Overlap {
	claims := make(map[domain.HostPort][]Claim)
	for _, p := range r.Profiles() {
		for _, name := range r.Members(p) {
			svc, _ := r.Service(name)
			for _, port := range svc.Ports {
				if port.HostPort == 0 {
					continue
				}
				key := port.Key()
				claims[key] = append(claims[key], Claim{Profile: p, Service: name})
			}
		}
	}

	var out []Overlap
	for port, cs := range claims {
		if overlapping(cs) {
			out = append(out, Overlap{Port: port, Claims: cs})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Port.Port != out[j].Port.Port {
			return out[i].Port.Port < out[j].Port.Port
		}
		return out[i].Port.Protocol < out[j].Port.Protocol
	})
	return out
}

// overlapping reports whether two claims come from different services in
// different profiles.
func overlapping(cs []Claim) bool {
	for i := range cs {
		for j := i + 1; j < len(cs); j++ {
			if cs[i].Service != cs[j].Service && cs[i].Profile != cs[j].Profile {
				return true
			}
		}
	}
	return false
}

// ExclusiveWith returns the profiles that cannot run alongside p because they
// publish one of its host ports from a different service.
func ExclusiveWith(r *Registry, p domain.Profile) []domain.Profile {
	excl := make(map[domain.Profile]bool)
	for _, o := range CrossProfileOverlaps(r) {
		var mine []string
		for _, c := range o.Claims {
			if c.Profile == p {
				mine = append(mine, c.Service)
			}
		}
		if len(mine) == 0 {
			continue
		}
		for _, c := range o.Claims {
			if c.Profile == p {
				continue
			}
			for _, s := range mine {
				if s != c.Service {
					excl[c.Profile] = true
				}
			}
		}
	}

	var out []domain.Profile
	for _, k := range domain.KnownProfiles {
		if excl[k] {
			out = append(out, k)
		}
	}
	return out
}
