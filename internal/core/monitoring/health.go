// Package monitoring provides pure functions for health gate logic.
// This package contains NO I/O: callers pass in probe results and elapsed time.
package monitoring

import (
	"time"

	"github.com/artpar/stackup/internal/core/domain"
)

// =============================================================================
// Health Gate Evaluation (Pure Functions)
// =============================================================================

// Budget is the longest a gate may take before it reports failure:
// startPeriod + retries × (interval + timeout). Defaults are applied first.
//
// Example:
//
//	Budget(domain.HealthCheck{Retries: 10, Interval: 5 * time.Second, Timeout: time.Second})
//	// returns 60s
func Budget(hc domain.HealthCheck) time.Duration {
	hc = hc.WithDefaults()
	return hc.StartPeriod + time.Duration(hc.Retries)*(hc.Interval+hc.Timeout)
}

// GateState is the accumulated verdict of a gate between probes.
type GateState struct {
	Status   domain.HealthStatus
	Failures int // consecutive failures outside the start period
}

// Evaluate folds one probe outcome into the gate state.
//
// Rules:
//   - success makes the gate Healthy, whatever came before
//   - a failure inside the start period is not counted
//   - the gate is Unhealthy after retries consecutive counted failures
//   - the gate is Unhealthy once elapsed reaches the budget
//
// elapsed is measured from when the gate began probing. Healthy and
// Unhealthy are final: further observations do not change them.
func Evaluate(hc domain.HealthCheck, state GateState, ok bool, elapsed time.Duration) GateState {
	if state.Status == domain.HealthStatusHealthy || state.Status == domain.HealthStatusUnhealthy {
		return state
	}
	hc = hc.WithDefaults()

	if ok {
		return GateState{Status: domain.HealthStatusHealthy}
	}

	next := GateState{Status: domain.HealthStatusStarting, Failures: state.Failures}
	if elapsed >= hc.StartPeriod {
		next.Failures++
	}
	if next.Failures >= hc.Retries || elapsed >= Budget(hc) {
		next.Status = domain.HealthStatusUnhealthy
	}
	return next
}

// Expired reports whether the budget has run out without a verdict. A gate
// checks it before every attempt.
func Expired(hc domain.HealthCheck, elapsed time.Duration) bool {
	return elapsed >= Budget(hc)
}

// AttemptTimeout is the timeout for an attempt starting at elapsed: the
// configured timeout, cut to what is left of the budget.
//
// Example:
//
//	hc := domain.HealthCheck{Retries: 1, Interval: time.Second, Timeout: time.Second}
//	AttemptTimeout(hc, 1500*time.Millisecond) // 500ms
func AttemptTimeout(hc domain.HealthCheck, elapsed time.Duration) time.Duration {
	hc = hc.WithDefaults()
	return max(min(hc.Timeout, Budget(hc)-elapsed), 0)
}

// =============================================================================
// Run Aggregation (Pure Functions)
// =============================================================================

// AggregateRun determines overall run health from service statuses.
// Services without a health check count as healthy once started.
func AggregateRun(services []domain.ServiceStatus) domain.HealthStatus {
	if len(services) == 0 {
		return domain.HealthStatusNone
	}

	for _, s := range services {
		if s.State == domain.StateFailed || s.Health == domain.HealthStatusUnhealthy {
			return domain.HealthStatusUnhealthy
		}
	}
	for _, s := range services {
		if !s.State.Satisfies(domain.ConditionStarted) || s.Health == domain.HealthStatusStarting {
			return domain.HealthStatusStarting
		}
	}
	return domain.HealthStatusHealthy
}

// =============================================================================
// Event Message Generation (Pure Functions)
// =============================================================================

// StateMessage generates a human-readable message for a service state change.
func StateMessage(service string, state domain.ServiceState) string {
	switch state {
	case domain.StatePending:
		return "Service " + service + " waiting for dependencies"
	case domain.StateStarting:
		return "Service " + service + " starting"
	case domain.StateStarted:
		return "Service " + service + " started"
	case domain.StateHealthy:
		return "Service " + service + " health check passed"
	case domain.StateFailed:
		return "Service " + service + " failed"
	case domain.StateStopping:
		return "Service " + service + " stopping"
	case domain.StateStopped:
		return "Service " + service + " stopped"
	default:
		return "Service " + service + " state: " + string(state)
	}
}
