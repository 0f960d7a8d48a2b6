// Package orchestrator drives a profile's services from plan to running and
// back: pre-flight checks, concurrent gated start, unwind on failure and
// shutdown.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/artpar/stackup/internal/core/deployment"
	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/profile"
	"github.com/artpar/stackup/internal/shell/docker"
	"github.com/artpar/stackup/internal/shell/envfile"
	"github.com/artpar/stackup/internal/shell/health"
	"github.com/artpar/stackup/internal/shell/migrator"
)

// =============================================================================
// Collaborators
// =============================================================================

// Containers is the container engine the orchestrator launches services on.
type Containers interface {
	EnsureNetwork(ctx context.Context, project string) error
	RemoveNetwork(ctx context.Context, project string) error
	// Launch reports false when it adopted a container that was already
	// running instead of creating one.
	Launch(ctx context.Context, plan deployment.ContainerPlan) (created bool, err error)
	Stop(ctx context.Context, name string) error
	Containers(ctx context.Context, project string) ([]docker.ContainerInfo, error)
	TailLogs(ctx context.Context, name string, lines int) (string, error)
}

// Migrations runs migration services to completion.
type Migrations interface {
	Run(ctx context.Context, service string, spec domain.MigrationSpec, env map[string]string) error
}

// ProbeFactory builds the readiness probe of a service.
type ProbeFactory interface {
	New(hc domain.HealthCheck, target health.Target) (health.Probe, error)
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the orchestrator.
type Config struct {
	// Project names the network, containers and labels of every run.
	Project string

	// MaxConcurrentStarts bounds launches in flight at once.
	// Default: 4.
	MaxConcurrentStarts int

	// ShutdownGrace bounds the unwind after a failure and Session.Shutdown.
	// Default: 30 seconds.
	ShutdownGrace time.Duration

	// LogTailLines is how much of a failed container's output is logged.
	// Default: 20.
	LogTailLines int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Project:             domain.DefaultProjectName,
		MaxConcurrentStarts: 4,
		ShutdownGrace:       30 * time.Second,
		LogTailLines:        20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Project == "" {
		c.Project = def.Project
	}
	if c.MaxConcurrentStarts <= 0 {
		c.MaxConcurrentStarts = def.MaxConcurrentStarts
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = def.ShutdownGrace
	}
	if c.LogTailLines <= 0 {
		c.LogTailLines = def.LogTailLines
	}
	return c
}

// Option configures optional orchestrator behavior.
type Option func(*Orchestrator)

// WithMetrics records lifecycle metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithEnvLookup sets how ${VAR} references in env files resolve.
// Default: os.LookupEnv.
func WithEnvLookup(lookup envfile.Lookup) Option {
	return func(o *Orchestrator) { o.lookup = lookup }
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator starts and stops the services of a profile.
type Orchestrator struct {
	registry   *profile.Registry
	containers Containers
	migrations Migrations
	probes     ProbeFactory
	config     Config
	metrics    *Metrics
	lookup     envfile.Lookup
	logger     *slog.Logger

	mu      sync.RWMutex
	current *Session
}

// New creates an orchestrator over an immutable registry.
func New(registry *profile.Registry, containers Containers, migrations Migrations, probes ProbeFactory, config Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		registry:   registry,
		containers: containers,
		migrations: migrations,
		probes:     probes,
		config:     config.withDefaults(),
		lookup:     os.LookupEnv,
		logger:     logger.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Plan runs every pre-flight check for profileName and returns the plan
// with each service's environment resolved. Nothing is started.
//
// Checks, in order:
//  1. the profile is registered (domain.ErrUnknownProfile)
//  2. no host port is published twice (*domain.PortConflictError)
//  3. the dependency graph is complete and acyclic
//  4. env files resolve and migration services have a database URL
func (o *Orchestrator) Plan(profileName string) (*domain.DeploymentPlan, error) {
	services, err := o.registry.Resolve(profileName)
	if err != nil {
		return nil, err
	}

	plan, err := deployment.BuildPlan(domain.Profile(profileName), services)
	if err != nil {
		return nil, err
	}

	envs, err := envfile.ResolveAll(plan.Services, o.lookup)
	if err != nil {
		return nil, err
	}
	plan.Environment = envs

	for _, svc := range plan.Services {
		if svc.Migration == nil {
			continue
		}
		if _, err := migrator.DatabaseURL(*svc.Migration, envs[svc.Name]); err != nil {
			return nil, fmt.Errorf("service %s: %w", svc.Name, err)
		}
	}

	return plan, nil
}

// Up starts every service of profileName and returns once all of them are
// started and every health gate has passed.
//
// Pre-flight failures return before anything is started. A launch or gate
// failure stops the services already started, newest first, and returns
// the *domain.StartupError of the service that failed first. Cancelling
// ctx during startup aborts and unwinds the same way.
func (o *Orchestrator) Up(ctx context.Context, profileName string) (*Session, error) {
	plan, err := o.Plan(profileName)
	if err != nil {
		return nil, err
	}

	probes, err := o.buildProbes(plan)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With("profile", plan.Profile, "run_id", plan.RunID)
	for _, overlap := range profile.CrossProfileOverlaps(o.registry) {
		logger.Debug("host port shared across profiles", "overlap", overlap.String())
	}
	logger.Info("starting profile", "services", plan.Names())

	if needsNetwork(plan) {
		if err := o.containers.EnsureNetwork(ctx, o.config.Project); err != nil {
			return nil, fmt.Errorf("%w: network: %w", domain.ErrLaunchFailed, err)
		}
	}

	s := newSession(o, plan, probes, logger)
	o.setCurrent(s)

	if err := s.start(ctx); err != nil {
		return nil, err
	}
	logger.Info("profile is up", "services", len(plan.Services))
	return s, nil
}

// Down stops and removes the containers of profileName's services, newest
// first. It runs the same pre-flight checks as Up. Stop errors do not halt
// the sweep; the first one is returned.
func (o *Orchestrator) Down(ctx context.Context, profileName string) error {
	plan, err := o.Plan(profileName)
	if err != nil {
		return err
	}
	logger := o.logger.With("profile", plan.Profile)

	existing, err := o.containers.Containers(ctx, o.config.Project)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(existing))
	for _, c := range existing {
		present[c.Labels[deployment.LabelService]] = true
	}

	var first error
	stopped := 0
	for _, name := range plan.ReverseNames() {
		svc, _ := plan.Service(name)
		if svc.Migration != nil || !present[name] {
			continue
		}
		err := o.containers.Stop(ctx, deployment.ContainerName(o.config.Project, name))
		o.metrics.recordStop(name, err)
		if err != nil {
			logger.Error("failed to stop service", "service", name, "error", err)
			if first == nil {
				first = fmt.Errorf("stop %s: %w", name, err)
			}
			continue
		}
		stopped++
		logger.Info("stopped service", "service", name)
	}

	if first == nil && len(existing) == stopped && stopped > 0 {
		if err := o.containers.RemoveNetwork(ctx, o.config.Project); err != nil {
			logger.Warn("failed to remove network", "error", err)
		}
	}
	logger.Info("profile is down", "stopped", stopped)
	return first
}

// Status returns the status of the most recent run of this process.
func (o *Orchestrator) Status() (domain.RunStatus, bool) {
	o.mu.RLock()
	s := o.current
	o.mu.RUnlock()
	if s == nil {
		return domain.RunStatus{}, false
	}
	return s.Status(), true
}

// Health aggregates the health of the most recent run.
func (o *Orchestrator) Health() (domain.HealthStatus, bool) {
	o.mu.RLock()
	s := o.current
	o.mu.RUnlock()
	if s == nil {
		return domain.HealthStatusNone, false
	}
	return s.Health(), true
}

func (o *Orchestrator) setCurrent(s *Session) {
	o.mu.Lock()
	o.current = s
	o.mu.Unlock()
}

// buildProbes creates the probe of every service with a health check.
func (o *Orchestrator) buildProbes(plan *domain.DeploymentPlan) (map[string]health.Probe, error) {
	probes := make(map[string]health.Probe)
	for _, svc := range plan.Services {
		if svc.HealthCheck == nil {
			continue
		}
		probe, err := o.probes.New(*svc.HealthCheck, health.Target{
			Service:   svc.Name,
			Container: deployment.ContainerName(o.config.Project, svc.Name),
			Env:       plan.Environment[svc.Name],
		})
		if err != nil {
			return nil, err
		}
		probes[svc.Name] = probe
	}
	return probes, nil
}

func needsNetwork(plan *domain.DeploymentPlan) bool {
	for _, svc := range plan.Services {
		if svc.Migration == nil {
			return true
		}
	}
	return false
}

// isStartupError reports whether err names the service that caused a failure.
func isStartupError(err error) bool {
	var serr *domain.StartupError
	return errors.As(err, &serr)
}
