package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/monitoring"
)

// ErrDependencyFailed is returned by Wait when the awaited service can no
// longer reach the requested condition.
var ErrDependencyFailed = errors.New("dependency failed")

// =============================================================================
// Readiness Board
// =============================================================================

// Board holds the readiness status of every service in a run.
//
// Each service has exactly one writer at a time: the orchestrator while it
// launches the service, then the service's gate. Any number of goroutines
// may read or Wait.
type Board struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	status domain.ServiceStatus
	// changed is closed and replaced on every update.
	changed chan struct{}
}

// NewBoard creates a board with every service pending.
func NewBoard(services []string) *Board {
	b := &Board{
		order:   append([]string(nil), services...),
		entries: make(map[string]*entry, len(services)),
		now:     time.Now,
	}
	now := b.now()
	for _, name := range services {
		b.entries[name] = &entry{
			status: domain.ServiceStatus{
				Name:      name,
				State:     domain.StatePending,
				Health:    domain.HealthStatusNone,
				UpdatedAt: now,
			},
			changed: make(chan struct{}),
		}
	}
	return b
}

// Transition moves service to state. cause, when set, is recorded as the
// service's error.
func (b *Board) Transition(service string, to domain.ServiceState, cause error) error {
	return b.update(service, func(s *domain.ServiceStatus) error {
		if err := domain.ValidateTransition(s.State, to); err != nil {
			return fmt.Errorf("%s: %s -> %s: %w", service, s.State, to, err)
		}
		s.State = to
		if cause != nil {
			s.Error = cause.Error()
		}
		return nil
	})
}

// Observe records a probe result and the gate verdict after it.
func (b *Board) Observe(service string, gate monitoring.GateState, probe domain.ProbeResult) error {
	return b.update(service, func(s *domain.ServiceStatus) error {
		s.Health = gate.Status
		s.Failures = gate.Failures
		s.LastProbe = &probe
		return nil
	})
}

// SetHealth records a health verdict without a probe result.
func (b *Board) SetHealth(service string, health domain.HealthStatus) error {
	return b.update(service, func(s *domain.ServiceStatus) error {
		s.Health = health
		return nil
	})
}

func (b *Board) update(service string, fn func(*domain.ServiceStatus) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[service]
	if !ok {
		return fmt.Errorf("unknown service %q", service)
	}
	if err := fn(&e.status); err != nil {
		return err
	}
	e.status.UpdatedAt = b.now()
	close(e.changed)
	e.changed = make(chan struct{})
	return nil
}

// Status returns a snapshot of one service.
func (b *Board) Status(service string) (domain.ServiceStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[service]
	if !ok {
		return domain.ServiceStatus{}, false
	}
	return e.status, true
}

// Snapshot returns every service's status in registration order.
func (b *Board) Snapshot() []domain.ServiceStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.ServiceStatus, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.entries[name].status)
	}
	return out
}

// Wait blocks until service satisfies cond. It fails with
// ErrDependencyFailed once the service fails or is stopped, and with the
// context's error when ctx is done first.
func (b *Board) Wait(ctx context.Context, service string, cond domain.Condition) error {
	for {
		b.mu.RLock()
		e, ok := b.entries[service]
		if !ok {
			b.mu.RUnlock()
			return fmt.Errorf("unknown service %q", service)
		}
		status, changed := e.status, e.changed
		b.mu.RUnlock()

		if status.State.Satisfies(cond) {
			return nil
		}
		if status.State.Terminal() {
			if status.Error != "" {
				return fmt.Errorf("%w: %s is %s: %s", ErrDependencyFailed, service, status.State, status.Error)
			}
			return fmt.Errorf("%w: %s is %s", ErrDependencyFailed, service, status.State)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
