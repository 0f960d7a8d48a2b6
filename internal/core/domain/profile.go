// Package domain contains the core domain types for stackup.
package domain

import "fmt"

// =============================================================================
// Profiles
// =============================================================================

// Profile names a deployment style. The set of profiles is closed: a topology
// may only tag services with one of the values below.
type Profile string

const (
	// ProfileDefault runs the all-in-one bundle with its own database.
	ProfileDefault Profile = "default"
	// ProfileDefaultNoDB runs the all-in-one bundle against an external database.
	ProfileDefaultNoDB Profile = "default-no-db"

	ProfileBackend     Profile = "backend"
	ProfileApp         Profile = "app"
	ProfileAdmin       Profile = "admin"
	ProfileDatabase    Profile = "database"
	ProfileJustBackend Profile = "just-backend"

	// ProfileDeprecated is the legacy service set kept for older installs.
	ProfileDeprecated Profile = "deprecated"
)

// KnownProfiles lists every profile in display order.
var KnownProfiles = []Profile{
	ProfileDefault,
	ProfileDefaultNoDB,
	ProfileBackend,
	ProfileApp,
	ProfileAdmin,
	ProfileDatabase,
	ProfileJustBackend,
	ProfileDeprecated,
}

// Valid reports whether p is one of the known profiles. Matching is case-sensitive.
func (p Profile) Valid() bool {
	for _, k := range KnownProfiles {
		if k == p {
			return true
		}
	}
	return false
}

// IsBundle reports whether p activates the all-in-one bundle. Bundle profiles
// publish the same ports as the individual-service profiles and must not be
// combined with them.
func (p Profile) IsBundle() bool {
	return p == ProfileDefault || p == ProfileDefaultNoDB
}

func (p Profile) String() string {
	return string(p)
}

// ParseProfile converts a user-supplied name into a Profile.
func ParseProfile(name string) (Profile, error) {
	p := Profile(name)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}
