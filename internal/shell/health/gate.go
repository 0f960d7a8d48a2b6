package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/monitoring"
)

// =============================================================================
// Health Gate
// =============================================================================

// Gate probes one started service until it is healthy or its budget is spent.
type Gate struct {
	service string
	check   domain.HealthCheck
	probe   Probe
	board   *Board
	logger  *slog.Logger
	// observe, when set, sees every probe result; used for metrics.
	observe func(service string, res domain.ProbeResult)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithObserver registers a callback for every probe result.
func WithObserver(fn func(service string, res domain.ProbeResult)) GateOption {
	return func(g *Gate) { g.observe = fn }
}

// NewGate creates a gate for service. The service must already be Started
// on the board.
func NewGate(service string, check domain.HealthCheck, probe Probe, board *Board, logger *slog.Logger, opts ...GateOption) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		service: service,
		check:   check.WithDefaults(),
		probe:   probe,
		board:   board,
		logger:  logger.With("component", "health_gate", "service", service),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Budget is the longest Run can take before it reports failure.
func (g *Gate) Budget() time.Duration {
	return monitoring.Budget(g.check)
}

// Run probes immediately and then every interval. It returns nil once the
// service is healthy and a *domain.StartupError wrapping
// domain.ErrHealthCheckExhausted once the gate fails. Cancelling ctx stops
// the gate with the context's error and leaves the board untouched.
func (g *Gate) Run(ctx context.Context) error {
	hc := g.check
	budget := monitoring.Budget(hc)
	start := time.Now()
	state := monitoring.GateState{Status: domain.HealthStatusStarting}

	if err := g.board.SetHealth(g.service, state.Status); err != nil {
		return err
	}
	g.logger.Debug("health gate started",
		"interval", hc.Interval,
		"timeout", hc.Timeout,
		"retries", hc.Retries,
		"budget", budget,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	var last domain.ProbeResult
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		elapsed := time.Since(start)
		if monitoring.Expired(hc, elapsed) {
			state.Status = domain.HealthStatusUnhealthy
			if err := g.board.SetHealth(g.service, state.Status); err != nil {
				return err
			}
			return g.exhausted(state, last, start)
		}

		probeCtx, cancel := context.WithTimeout(ctx, monitoring.AttemptTimeout(hc, elapsed))
		res := g.probe.Run(probeCtx)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		last = res

		state = monitoring.Evaluate(hc, state, res.OK, time.Since(start))
		if err := g.board.Observe(g.service, state, res); err != nil {
			return err
		}
		if g.observe != nil {
			g.observe(g.service, res)
		}

		switch state.Status {
		case domain.HealthStatusHealthy:
			g.logger.Info("health check passed", "elapsed", time.Since(start).Round(time.Millisecond))
			return g.board.Transition(g.service, domain.StateHealthy, nil)
		case domain.HealthStatusUnhealthy:
			return g.exhausted(state, res, start)
		}

		g.logger.Debug("health check failed", "failures", state.Failures, "output", res.Output)

		// never sleep past the budget; the next round reports expiry
		wait := hc.Interval
		if remaining := budget - time.Since(start); remaining < wait {
			wait = max(remaining, 0)
		}
		timer.Reset(wait)
	}
}

// exhausted fails the service on the board and builds the gate error.
func (g *Gate) exhausted(state monitoring.GateState, last domain.ProbeResult, start time.Time) error {
	err := domain.NewStartupError(g.service, domain.ErrHealthCheckExhausted,
		fmt.Errorf("%d consecutive failures after %s, last output: %s",
			state.Failures, time.Since(start).Round(time.Millisecond), last.Output))
	g.logger.Warn("health check exhausted", "failures", state.Failures, "output", last.Output)
	if terr := g.board.Transition(g.service, domain.StateFailed, err); terr != nil {
		g.logger.Error("failed to record gate failure", "error", terr)
	}
	return err
}
