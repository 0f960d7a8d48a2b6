package compose

import "github.com/artpar/stackup/internal/core/domain"

// MigrateExtension is the service-level extension key marking a native
// migration step.
const MigrateExtension = "x-migrate"

// Options control how a topology document is interpreted.
type Options struct {
	// ProjectName overrides the document's top-level name.
	ProjectName string
	// WorkingDir is the base for relative env file and build context paths.
	WorkingDir string
	// Environment is used for ${VAR} interpolation and for bare
	// environment entries that inherit a value.
	Environment map[string]string
}

// Topology is the parsed, immutable service set of one document.
type Topology struct {
	Name string
	// Services are in declaration order.
	Services []domain.ServiceDescriptor
}

// Service looks up a descriptor by name.
func (t *Topology) Service(name string) (domain.ServiceDescriptor, bool) {
	for _, s := range t.Services {
		if s.Name == name {
			return s, true
		}
	}
	return domain.ServiceDescriptor{}, false
}
