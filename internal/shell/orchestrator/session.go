package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/stackup/internal/core/deployment"
	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/monitoring"
	"github.com/artpar/stackup/internal/shell/health"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Session - One Run of a Profile
// =============================================================================

// Session is a started profile. It is returned by Orchestrator.Up and ends
// with Shutdown.
type Session struct {
	o      *Orchestrator
	plan   *domain.DeploymentPlan
	probes map[string]health.Probe
	board  *health.Board
	logger *slog.Logger

	// cancel stops every gate and pending start of the run.
	cancel context.CancelFunc

	mu      sync.Mutex
	started []string        // in start order
	adopted map[string]bool // running before this run; never stopped by it
	failure error           // first service failure

	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
}

func newSession(o *Orchestrator, plan *domain.DeploymentPlan, probes map[string]health.Probe, logger *slog.Logger) *Session {
	return &Session{
		o:       o,
		plan:    plan,
		probes:  probes,
		board:   health.NewBoard(plan.Names()),
		logger:  logger,
		adopted: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// Plan returns the plan the session was started from.
func (s *Session) Plan() *domain.DeploymentPlan {
	return s.plan
}

// Status returns a snapshot of every service in plan order.
func (s *Session) Status() domain.RunStatus {
	return domain.RunStatus{
		Profile:  s.plan.Profile,
		RunID:    s.plan.RunID,
		Services: s.board.Snapshot(),
	}
}

// Health aggregates the health of every service in the run.
func (s *Session) Health() domain.HealthStatus {
	return monitoring.AggregateRun(s.board.Snapshot())
}

// Done is closed once Shutdown has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Started returns the services started so far, in start order.
func (s *Session) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

// start launches every service, one goroutine per service. Each waits on
// the board for its dependencies, takes a launch slot, launches and then
// runs its gate. The first failure cancels the rest and unwinds.
func (s *Session) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	// Up's caller can abort startup; afterwards only Shutdown ends the run.
	startupDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-startupDone:
		}
	}()
	defer close(startupDone)

	slots := make(chan struct{}, s.o.config.MaxConcurrentStarts)
	g, gctx := errgroup.WithContext(runCtx)
	for _, svc := range s.plan.Services {
		g.Go(func() error {
			return s.startService(gctx, svc, slots)
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if s.failure != nil {
		err = s.failure
	}
	s.mu.Unlock()
	if !isStartupError(err) && ctx.Err() != nil {
		err = fmt.Errorf("%w: startup aborted: %w", domain.ErrLaunchFailed, ctx.Err())
	}

	s.logger.Error("startup failed, unwinding", "error", err)
	cancel()
	s.unwind()
	close(s.done)
	return err
}

func (s *Session) startService(ctx context.Context, svc domain.ServiceDescriptor, slots chan struct{}) error {
	logger := s.logger.With("service", svc.Name)

	for _, edge := range s.plan.DependenciesOf(svc.Name) {
		logger.Debug("waiting for dependency", "dependency", edge.To, "condition", edge.Condition)
		if err := s.board.Wait(ctx, edge.To, edge.Condition); err != nil {
			return err
		}
	}

	if err := s.board.Transition(svc.Name, domain.StateStarting, nil); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		_ = s.board.Transition(svc.Name, domain.StateFailed, ctx.Err())
		return ctx.Err()
	case slots <- struct{}{}:
	}
	began := time.Now()
	logger.Info(monitoring.StateMessage(svc.Name, domain.StateStarting))
	created, err := s.launch(ctx, svc)
	<-slots

	if err != nil {
		if ctx.Err() != nil {
			_ = s.board.Transition(svc.Name, domain.StateFailed, ctx.Err())
			return ctx.Err()
		}
		serr := domain.NewStartupError(svc.Name, domain.ErrLaunchFailed, err)
		s.fail(serr)
		_ = s.board.Transition(svc.Name, domain.StateFailed, serr)
		s.o.metrics.recordStart(svc.Name, false, 0)
		s.logTail(svc)
		return serr
	}

	s.mu.Lock()
	s.started = append(s.started, svc.Name)
	if !created {
		s.adopted[svc.Name] = true
	}
	s.mu.Unlock()
	if created && svc.Migration == nil {
		s.o.metrics.recordRunning(1)
	}
	if err := s.board.Transition(svc.Name, domain.StateStarted, nil); err != nil {
		return err
	}
	logger.Info(monitoring.StateMessage(svc.Name, domain.StateStarted))

	probe, ok := s.probes[svc.Name]
	if !ok || svc.HealthCheck == nil {
		s.o.metrics.recordStart(svc.Name, true, time.Since(began))
		return nil
	}

	gate := health.NewGate(svc.Name, *svc.HealthCheck, probe, s.board, s.logger,
		health.WithObserver(s.o.metrics.recordProbe))
	if err := gate.Run(ctx); err != nil {
		if isStartupError(err) {
			s.fail(err)
			s.o.metrics.recordStart(svc.Name, false, 0)
			s.logTail(svc)
		}
		return err
	}
	s.o.metrics.recordStart(svc.Name, true, time.Since(began))
	return nil
}

// launch runs a migration service to completion or brings its container up.
// created is false when a running container was adopted.
func (s *Session) launch(ctx context.Context, svc domain.ServiceDescriptor) (created bool, err error) {
	env := s.plan.Environment[svc.Name]
	if svc.Migration != nil {
		return true, s.o.migrations.Run(ctx, svc.Name, *svc.Migration, env)
	}
	return s.o.containers.Launch(ctx, deployment.ContainerFor(s.o.config.Project, s.plan, svc))
}

func (s *Session) isAdopted(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adopted[name]
}

// fail records err unless an earlier service already failed.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		s.failure = err
	}
}

func (s *Session) logTail(svc domain.ServiceDescriptor) {
	if svc.Migration != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name := deployment.ContainerName(s.o.config.Project, svc.Name)
	out, err := s.o.containers.TailLogs(ctx, name, s.o.config.LogTailLines)
	if err != nil || out == "" {
		return
	}
	s.logger.Warn("container output", "service", svc.Name, "logs", out)
}

// =============================================================================
// Stop
// =============================================================================

// Shutdown cancels every gate and pending start, then stops the services
// this run started, newest first, within the configured grace period.
// Containers adopted from an earlier run keep running. Stop errors
// do not halt the sweep; they are joined in the result. Calling Shutdown
// more than once is safe.
func (s *Session) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down", "services", len(s.Started()))
		if s.cancel != nil {
			s.cancel()
		}
		s.shutdownErr = s.stopStarted(ctx)
		close(s.done)
	})
	return s.shutdownErr
}

// unwind stops what a failed startup left running. Errors are logged only.
func (s *Session) unwind() {
	s.shutdownOnce.Do(func() {
		if err := s.stopStarted(context.Background()); err != nil {
			s.logger.Warn("unwind incomplete", "error", err)
		}
	})
}

func (s *Session) stopStarted(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.o.config.ShutdownGrace)
	defer cancel()

	var errs []error
	for _, name := range deployment.UnwindOrder(s.Started()) {
		svc, _ := s.plan.Service(name)
		if svc.Migration != nil {
			continue
		}
		if s.isAdopted(name) {
			s.logger.Debug("leaving adopted service running", "service", name)
			continue
		}

		status, _ := s.board.Status(name)
		if stop, reason := deployment.CanStop(status.State); !stop {
			s.logger.Debug("not stopping service", "service", name, "reason", reason)
			continue
		}
		_ = s.board.Transition(name, domain.StateStopping, nil)

		err := s.o.containers.Stop(ctx, deployment.ContainerName(s.o.config.Project, name))
		s.o.metrics.recordStop(name, err)
		if err != nil {
			s.logger.Error("failed to stop service", "service", name, "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			continue
		}
		_ = s.board.Transition(name, domain.StateStopped, nil)
		s.o.metrics.recordRunning(-1)
		s.logger.Info(monitoring.StateMessage(name, domain.StateStopped))
	}
	return errors.Join(errs...)
}
