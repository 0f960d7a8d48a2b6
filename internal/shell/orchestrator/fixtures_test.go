package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/artpar/stackup/internal/core/deployment"
	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/profile"
	"github.com/artpar/stackup/internal/shell/docker"
	"github.com/artpar/stackup/internal/shell/health"
	"github.com/stretchr/testify/require"
)

const testProject = "test"

// =============================================================================
// Descriptors
// =============================================================================

func service(name string, index int, profiles []domain.Profile, deps ...domain.Dependency) domain.ServiceDescriptor {
	return domain.ServiceDescriptor{
		Name:      name,
		Index:     index,
		Launch:    domain.LaunchSpec{Image: name + ":latest"},
		DependsOn: deps,
		Profiles:  profiles,
	}
}

func withCheck(s domain.ServiceDescriptor, retries int) domain.ServiceDescriptor {
	s.HealthCheck = &domain.HealthCheck{
		Test:     []string{"CMD", "true"},
		Interval: time.Millisecond,
		Timeout:  50 * time.Millisecond,
		Retries:  retries,
	}
	return s
}

func withPort(s domain.ServiceDescriptor, port int) domain.ServiceDescriptor {
	s.Ports = append(s.Ports, domain.PortMapping{HostPort: port, ContainerPort: port, Protocol: "tcp"})
	return s
}

func asMigration(s domain.ServiceDescriptor) domain.ServiceDescriptor {
	s.Launch = domain.LaunchSpec{}
	s.Migration = &domain.MigrationSpec{Source: "./migrations", DatabaseURLEnv: "DATABASE_URL"}
	s.Environment = map[string]string{"DATABASE_URL": "postgres://u:p@localhost/app"}
	return s
}

func healthy(name string) domain.Dependency {
	return domain.Dependency{Service: name, Condition: domain.ConditionHealthy, Required: true}
}

func started(name string) domain.Dependency {
	return domain.Dependency{Service: name, Condition: domain.ConditionStarted, Required: true}
}

func optional(d domain.Dependency) domain.Dependency {
	d.Required = false
	return d
}

func profiles(p ...domain.Profile) []domain.Profile { return p }

// suiteServices mirrors the shape of the default topology.
func suiteServices() []domain.ServiceDescriptor {
	return []domain.ServiceDescriptor{
		withPort(withCheck(service("database", 0, profiles(domain.ProfileDefault, domain.ProfileBackend, domain.ProfileDatabase)), 5), 5432),
		asMigration(service("migrate", 1, profiles(domain.ProfileDefault), optional(healthy("database")))),
		withPort(service("aio", 2, profiles(domain.ProfileDefault), optional(started("migrate"))), 3000),
		withPort(withCheck(service("backend", 3, profiles(domain.ProfileBackend, domain.ProfileJustBackend), optional(healthy("database"))), 5), 8080),
		withPort(service("app", 4, profiles(domain.ProfileApp), optional(started("backend"))), 3000),
	}
}

func newRegistry(t *testing.T, services []domain.ServiceDescriptor) *profile.Registry {
	t.Helper()
	reg, err := profile.NewRegistry(services)
	require.NoError(t, err)
	return reg
}

// =============================================================================
// Fake Container Engine
// =============================================================================

// recorder is a shared, ordered event log.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// withPrefix returns the events starting with prefix, prefix removed.
func (r *recorder) withPrefix(prefix string) []string {
	var out []string
	for _, e := range r.list() {
		if strings.HasPrefix(e, prefix) {
			out = append(out, strings.TrimPrefix(e, prefix))
		}
	}
	return out
}

// index returns the position of event, or -1.
func (r *recorder) index(event string) int {
	for i, e := range r.list() {
		if e == event {
			return i
		}
	}
	return -1
}

type fakeContainers struct {
	rec *recorder

	mu         sync.Mutex
	delay      func(service string) time.Duration
	failLaunch map[string]error
	failStop   map[string]error
	adopt      map[string]bool // already running before the run
	existing   []docker.ContainerInfo
	inFlight   int
	maxFlight  int
	networkOps []string
}

var _ Containers = (*fakeContainers)(nil)

func newFakeContainers(rec *recorder) *fakeContainers {
	return &fakeContainers{rec: rec, failLaunch: map[string]error{}, failStop: map[string]error{}, adopt: map[string]bool{}}
}

func (f *fakeContainers) EnsureNetwork(_ context.Context, project string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkOps = append(f.networkOps, "ensure:"+project)
	return nil
}

func (f *fakeContainers) RemoveNetwork(_ context.Context, project string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkOps = append(f.networkOps, "remove:"+project)
	return nil
}

func (f *fakeContainers) Launch(ctx context.Context, plan deployment.ContainerPlan) (bool, error) {
	service := plan.Labels[deployment.LabelService]

	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	delay := time.Duration(0)
	if f.delay != nil {
		delay = f.delay(service)
	}
	failErr := f.failLaunch[service]
	adopt := f.adopt[service]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	f.rec.add("launch:%s", service)
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if failErr != nil {
		return false, failErr
	}
	if adopt {
		f.rec.add("adopted:%s", service)
		return false, nil
	}
	f.rec.add("started:%s", service)
	return true, nil
}

func (f *fakeContainers) Stop(_ context.Context, name string) error {
	service := strings.TrimPrefix(name, "stackup_"+testProject+"_")
	f.mu.Lock()
	err := f.failStop[service]
	f.mu.Unlock()
	f.rec.add("stop:%s", service)
	return err
}

func (f *fakeContainers) Containers(_ context.Context, project string) ([]docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]docker.ContainerInfo(nil), f.existing...), nil
}

func (f *fakeContainers) TailLogs(_ context.Context, name string, lines int) (string, error) {
	return "last words of " + name, nil
}

func (f *fakeContainers) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight
}

// =============================================================================
// Fake Migrations and Probes
// =============================================================================

type fakeMigrations struct {
	rec *recorder
	err error
}

func (f *fakeMigrations) Run(_ context.Context, service string, spec domain.MigrationSpec, env map[string]string) error {
	f.rec.add("migrate:%s", service)
	return f.err
}

// fakeProbes hands out probes that pass on the first call unless okAfter
// says otherwise for the service; an entry of 0 means never.
type fakeProbes struct {
	rec     *recorder
	okAfter map[string]int
	err     error
}

func (f *fakeProbes) New(hc domain.HealthCheck, target health.Target) (health.Probe, error) {
	if f.err != nil {
		return nil, f.err
	}
	okAfter, set := f.okAfter[target.Service]
	if !set {
		okAfter = 1
	}
	var mu sync.Mutex
	calls := 0
	return health.ProbeFunc(func(ctx context.Context) domain.ProbeResult {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		ok := okAfter > 0 && n >= okAfter
		if ok {
			f.rec.add("healthy:%s", target.Service)
		}
		return domain.ProbeResult{OK: ok, Output: "probe", At: time.Now()}
	}), nil
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	rec        *recorder
	containers *fakeContainers
	migrations *fakeMigrations
	probes     *fakeProbes
	orch       *Orchestrator
}

func newHarness(t *testing.T, services []domain.ServiceDescriptor, opts ...Option) *harness {
	t.Helper()
	rec := &recorder{}
	h := &harness{
		rec:        rec,
		containers: newFakeContainers(rec),
		migrations: &fakeMigrations{rec: rec},
		probes:     &fakeProbes{rec: rec, okAfter: map[string]int{}},
	}
	cfg := DefaultConfig()
	cfg.Project = testProject
	cfg.ShutdownGrace = time.Second

	opts = append([]Option{WithEnvLookup(func(string) (string, bool) { return "", false })}, opts...)
	h.orch = New(newRegistry(t, services), h.containers, h.migrations, h.probes, cfg, nil, opts...)
	return h
}
