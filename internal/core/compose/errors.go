// Package compose contains pure functions for parsing compose-format topologies.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"

	"github.com/artpar/stackup/internal/core/domain"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("topology is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Topology structure errors
	ErrNoServices = errors.New("topology must define at least one service")

	// Service validation errors
	ErrServiceNoImage       = errors.New("service must have image or build")
	ErrServiceInvalidPort   = errors.New("invalid port configuration")
	ErrUnsupportedCondition = errors.New("unsupported depends_on condition")
	ErrInvalidExtension     = errors.New("invalid extension")
)

// newParseError returns a config error whose chain carries both the parse
// sentinel and domain.ErrMalformedDescriptor.
func newParseError(field, message string, err error) *domain.ConfigError {
	return domain.NewConfigError(field, message, fmt.Errorf("%w: %w", domain.ErrMalformedDescriptor, err))
}
