package domain

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// ErrorKind classifies failures. Config and topology errors are detected
// before anything starts; resource errors during port validation; runtime
// errors while services are being launched.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfig
	KindTopology
	KindResource
	KindRuntime
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTopology:
		return "topology"
	case KindResource:
		return "resource"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

var (
	// Config errors
	ErrUnknownProfile      = errors.New("unknown profile")
	ErrUnknownProfileTag   = errors.New("unknown profile tag")
	ErrDuplicateService    = errors.New("duplicate service name")
	ErrMalformedDescriptor = errors.New("malformed service descriptor")
	ErrHealthyWithoutCheck = errors.New("healthy condition on service without health check")
	ErrMissingEnvFile      = errors.New("required env file not found")

	// Topology errors
	ErrCyclicDependency  = errors.New("cyclic dependency")
	ErrMissingDependency = errors.New("missing dependency")

	// Resource errors
	ErrPortConflict = errors.New("port conflict")

	// Runtime errors
	ErrHealthCheckExhausted = errors.New("health check exhausted")
	ErrLaunchFailed         = errors.New("launch failed")
	ErrInvalidTransition    = errors.New("invalid state transition")
)

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var cfg *ConfigError
	switch {
	case errors.Is(err, ErrHealthCheckExhausted), errors.Is(err, ErrLaunchFailed):
		return KindRuntime
	case errors.Is(err, ErrPortConflict):
		return KindResource
	case errors.Is(err, ErrCyclicDependency), errors.Is(err, ErrMissingDependency):
		return KindTopology
	case errors.Is(err, ErrUnknownProfile),
		errors.Is(err, ErrUnknownProfileTag),
		errors.Is(err, ErrDuplicateService),
		errors.Is(err, ErrMalformedDescriptor),
		errors.Is(err, ErrHealthyWithoutCheck),
		errors.Is(err, ErrMissingEnvFile),
		errors.As(err, &cfg):
		return KindConfig
	default:
		return KindUnknown
	}
}

// =============================================================================
// Typed Errors
// =============================================================================

// ConfigError wraps errors with context about where configuration failed.
type ConfigError struct {
	Field   string // e.g., "services.backend.depends_on.database"
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}

// PortConflictError reports a host port published by two services of the
// same activation. ServiceA is the earlier-declared service.
type PortConflictError struct {
	Port     int
	Protocol string
	ServiceA string
	ServiceB string
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port conflict: host port %d/%s published by both %q and %q",
		e.Port, e.Protocol, e.ServiceA, e.ServiceB)
}

func (e *PortConflictError) Unwrap() error {
	return ErrPortConflict
}

// CycleError reports a dependency cycle. Path starts and ends with the same service.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCyclicDependency.Error()
	}
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// MissingDependencyError reports a required edge whose target is not active.
type MissingDependencyError struct {
	Service    string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("missing dependency: %q requires %q which is not in the active profile",
		e.Service, e.Dependency)
}

func (e *MissingDependencyError) Unwrap() error {
	return ErrMissingDependency
}

// StartupError reports a service that failed to launch or become healthy.
// Reason is ErrLaunchFailed or ErrHealthCheckExhausted.
type StartupError struct {
	Service string
	Reason  error
	Err     error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %q: %v: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("service %q: %v", e.Service, e.Reason)
}

func (e *StartupError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// NewStartupError creates a new StartupError.
func NewStartupError(service string, reason, err error) *StartupError {
	return &StartupError{Service: service, Reason: reason, Err: err}
}
