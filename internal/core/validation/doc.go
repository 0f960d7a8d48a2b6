// Package validation provides pure validation functions for service topologies.
//
// This package contains the functional core logic for checking structural
// rules on a loaded descriptor set before any profile is resolved. All
// functions are pure (no I/O, no side effects).
//
// # Functions
//
//   - ValidateDescriptors: Check a whole topology, returning every problem found
//   - ValidateDescriptor: Check one service in isolation
//   - ValidateHealthyTargets: Check that Healthy edges point at services with health checks
//
// # Usage
//
// The profile registry validates descriptors once at construction:
//
//	if err := validation.ValidateDescriptors(services); err != nil {
//	    // Configuration error, exit before planning
//	}
package validation
