package domain

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// Dependency Conditions
// =============================================================================

// Condition is the readiness a dependent waits for before it starts.
type Condition string

const (
	// ConditionStarted is satisfied once the dependency has been launched.
	ConditionStarted Condition = "started"
	// ConditionHealthy is satisfied once the dependency's health check passes.
	ConditionHealthy Condition = "healthy"
)

// Dependency is one dependsOn edge of a service.
type Dependency struct {
	Service   string    `json:"service"`
	Condition Condition `json:"condition"`
	// Required edges must be satisfied inside the active profile. Non-required
	// edges to services outside the profile are treated as satisfied externally.
	Required bool `json:"required"`
}

// =============================================================================
// Restart Policy
// =============================================================================

type RestartPolicy string

const (
	RestartAlways        RestartPolicy = "always"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
	RestartNever         RestartPolicy = "no"
)

// ParseRestartPolicy maps a compose restart value onto a RestartPolicy.
// An empty value means RestartNever.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch s {
	case "", "no":
		return RestartNever, nil
	case "always":
		return RestartAlways, nil
	case "unless-stopped":
		return RestartUnlessStopped, nil
	default:
		return "", fmt.Errorf("%w: unsupported restart policy %q", ErrMalformedDescriptor, s)
	}
}

// =============================================================================
// Launch Specification
// =============================================================================

// BuildSpec describes an image built from a Dockerfile.
type BuildSpec struct {
	Dockerfile string `json:"dockerfile"`
	Context    string `json:"context"`
	Target     string `json:"target,omitempty"`
}

// LaunchSpec says how a service's image is obtained. Exactly one of Build or
// Image is the source; when both are set, Image is the tag given to the build.
type LaunchSpec struct {
	Build *BuildSpec `json:"build,omitempty"`
	Image string     `json:"image,omitempty"`
}

// IsBuild reports whether the image is built locally.
func (l LaunchSpec) IsBuild() bool {
	return l.Build != nil
}

// IsZero reports whether no launch source is configured.
func (l LaunchSpec) IsZero() bool {
	return l.Build == nil && l.Image == ""
}

// =============================================================================
// Environment, Ports, Health
// =============================================================================

// EnvFileRef is one env file, read in declaration order.
type EnvFileRef struct {
	Path     string `json:"path"`
	Required bool   `json:"required"`
}

// PortMapping publishes a container port on the host.
type PortMapping struct {
	HostIP        string `json:"host_ip,omitempty"`
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol"` // tcp, udp
}

// Key returns the host side of the mapping, which is what must be unique.
func (p PortMapping) Key() HostPort {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return HostPort{Port: p.HostPort, Protocol: proto}
}

// HostPort is a host port bound by a plan.
type HostPort struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

func (h HostPort) String() string {
	return fmt.Sprintf("%d/%s", h.Port, h.Protocol)
}

// Container engine defaults applied when a health check omits a field.
const (
	DefaultHealthInterval = 30 * time.Second
	DefaultHealthTimeout  = 30 * time.Second
	DefaultHealthRetries  = 3
)

// HealthCheck describes how readiness of a started service is probed.
type HealthCheck struct {
	Test        []string      `json:"test"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	Retries     int           `json:"retries"`
	StartPeriod time.Duration `json:"start_period"`
}

// Probe kinds, the first element of HealthCheck.Test.
// CMD and CMD-SHELL run inside the service's container; the others run on
// the host against the service's resolved environment.
const (
	ProbeCmd      = "CMD"
	ProbeCmdShell = "CMD-SHELL"
	ProbeShell    = "SHELL"
	ProbeHTTP     = "HTTP"
	ProbePostgres = "POSTGRES"
)

// Kind returns the probe kind of the check.
func (h HealthCheck) Kind() string {
	if len(h.Test) == 0 {
		return ""
	}
	return h.Test[0]
}

// HostSide reports whether the probe runs on the host rather than in the container.
func (h HealthCheck) HostSide() bool {
	switch h.Kind() {
	case ProbeShell, ProbeHTTP, ProbePostgres:
		return true
	default:
		return false
	}
}

// WithDefaults returns a copy with zero fields replaced by engine defaults.
func (h HealthCheck) WithDefaults() HealthCheck {
	if h.Interval <= 0 {
		h.Interval = DefaultHealthInterval
	}
	if h.Timeout <= 0 {
		h.Timeout = DefaultHealthTimeout
	}
	if h.Retries <= 0 {
		h.Retries = DefaultHealthRetries
	}
	if h.StartPeriod < 0 {
		h.StartPeriod = 0
	}
	return h
}

// MigrationSpec marks a service as a one-shot schema migration that runs
// natively instead of in a container.
type MigrationSpec struct {
	// Source is a migrations directory or a golang-migrate source URL.
	Source string `json:"source" yaml:"source"`
	// DatabaseURLEnv names the environment variable holding the database URL.
	DatabaseURLEnv string `json:"database_url_env" yaml:"database_url_env"`
}

// =============================================================================
// Service Descriptor
// =============================================================================

// ServiceDescriptor is the immutable launch description of one service.
type ServiceDescriptor struct {
	Name string `json:"name"`
	// Index is the declaration order within the topology, used for
	// deterministic tie-breaking.
	Index       int               `json:"index"`
	Launch      LaunchSpec        `json:"launch"`
	EnvFiles    []EnvFileRef      `json:"env_files,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Ports       []PortMapping     `json:"ports,omitempty"`
	DependsOn   []Dependency      `json:"depends_on,omitempty"`
	Restart     RestartPolicy     `json:"restart"`
	HealthCheck *HealthCheck      `json:"healthcheck,omitempty"`
	Profiles    []Profile         `json:"profiles,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Migration   *MigrationSpec    `json:"migration,omitempty"`
}

// HasProfile reports whether the service is tagged with p.
func (s ServiceDescriptor) HasProfile(p Profile) bool {
	for _, tag := range s.Profiles {
		if tag == p {
			return true
		}
	}
	return false
}

// SortDependencies orders deps by service name so that map-sourced edges
// iterate deterministically.
func SortDependencies(deps []Dependency) {
	sort.Slice(deps, func(i, j int) bool { return deps[i].Service < deps[j].Service })
}

// SortByIndex orders services by declaration order.
func SortByIndex(services []ServiceDescriptor) {
	sort.SliceStable(services, func(i, j int) bool { return services[i].Index < services[j].Index })
}

// ServiceNames extracts names preserving order.
func ServiceNames(services []ServiceDescriptor) []string {
	names := make([]string, len(services))
	for i, s := range services {
		names[i] = s.Name
	}
	return names
}
