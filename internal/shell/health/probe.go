// Package health runs readiness probes for started services and publishes
// the results on a readiness board that dependents wait on.
package health

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/artpar/stackup/internal/core/deployment"
	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/shell/docker"
	"github.com/go-resty/resty/v2"
	"github.com/jackc/pgx/v5"
)

// maxOutput bounds the probe output kept in a result.
const maxOutput = 512

// =============================================================================
// Probe Types
// =============================================================================

// Probe checks a service once. The context carries the probe timeout.
type Probe interface {
	Run(ctx context.Context) domain.ProbeResult
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) domain.ProbeResult

// Run calls f(ctx).
func (f ProbeFunc) Run(ctx context.Context) domain.ProbeResult {
	return f(ctx)
}

// Executor runs a command inside a container.
type Executor interface {
	Exec(ctx context.Context, container string, cmd []string) (docker.ExecResult, error)
}

// Target identifies what a probe checks.
type Target struct {
	Service   string
	Container string
	// Env is the service's resolved environment; host-side probe arguments
	// are expanded against it.
	Env map[string]string
}

// =============================================================================
// Probe Factory
// =============================================================================

// Factory builds probes from health check definitions.
type Factory struct {
	exec Executor
	http *resty.Client
}

// NewFactory creates a probe factory. exec may be nil when no service uses
// an in-container probe; http may be nil to use a default client.
func NewFactory(exec Executor, http *resty.Client) *Factory {
	if http == nil {
		http = resty.New()
	}
	return &Factory{exec: exec, http: http}
}

// New builds the probe for hc.Test.
//
// Supported kinds:
//   - ["CMD", args...] runs args in the container
//   - ["CMD-SHELL", cmd] runs sh -c cmd in the container
//   - ["SHELL", cmd] runs sh -c cmd on the host
//   - ["HTTP", url] succeeds on a 2xx response
//   - ["POSTGRES", dsn] succeeds when a connection pings
func (f *Factory) New(hc domain.HealthCheck, target Target) (Probe, error) {
	test := hc.Test
	if hc.HostSide() {
		test = deployment.ExpandProbeArgs(test, target.Env)
	}

	switch hc.Kind() {
	case domain.ProbeCmd, domain.ProbeCmdShell:
		if f.exec == nil {
			return nil, fmt.Errorf("probe %s for %s: no container executor", hc.Kind(), target.Service)
		}
		cmd := test[1:]
		if hc.Kind() == domain.ProbeCmdShell {
			cmd = []string{"sh", "-c", test[1]}
		}
		return ExecProbe(f.exec, target.Container, cmd), nil
	case domain.ProbeShell:
		return ShellProbe(test[1]), nil
	case domain.ProbeHTTP:
		return HTTPProbe(f.http, test[1]), nil
	case domain.ProbePostgres:
		return PostgresProbe(test[1]), nil
	default:
		return nil, domain.NewConfigError("services."+target.Service+".healthcheck",
			fmt.Sprintf("unsupported probe kind %q", hc.Kind()), domain.ErrMalformedDescriptor)
	}
}

// =============================================================================
// Probe Implementations
// =============================================================================

// ExecProbe runs cmd inside container; exit code 0 is healthy.
func ExecProbe(executor Executor, container string, cmd []string) Probe {
	return ProbeFunc(func(ctx context.Context) domain.ProbeResult {
		start := time.Now()
		res, err := executor.Exec(ctx, container, cmd)
		if err != nil {
			return failed(start, err)
		}
		if res.ExitCode != 0 {
			return result(start, false, fmt.Sprintf("exit code %d: %s", res.ExitCode, res.Output()))
		}
		return result(start, true, res.Output())
	})
}

// ShellProbe runs cmd with sh -c on the host; exit status 0 is healthy.
func ShellProbe(cmd string) Probe {
	return ProbeFunc(func(ctx context.Context) domain.ProbeResult {
		start := time.Now()
		out, err := exec.CommandContext(ctx, "sh", "-c", cmd).CombinedOutput()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return result(start, false, fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(out))))
			}
			return failed(start, err)
		}
		return result(start, true, strings.TrimSpace(string(out)))
	})
}

// HTTPProbe issues a GET to url; any 2xx response is healthy.
func HTTPProbe(client *resty.Client, url string) Probe {
	return ProbeFunc(func(ctx context.Context) domain.ProbeResult {
		start := time.Now()
		resp, err := client.R().SetContext(ctx).Get(url)
		if err != nil {
			return failed(start, err)
		}
		return result(start, resp.IsSuccess(), fmt.Sprintf("HTTP %d", resp.StatusCode()))
	})
}

// PostgresProbe connects to dsn and pings; a successful ping is healthy.
func PostgresProbe(dsn string) Probe {
	return ProbeFunc(func(ctx context.Context) domain.ProbeResult {
		start := time.Now()
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return failed(start, err)
		}
		defer conn.Close(context.WithoutCancel(ctx))

		if err := conn.Ping(ctx); err != nil {
			return failed(start, err)
		}
		return result(start, true, "accepting connections")
	})
}

func result(start time.Time, ok bool, output string) domain.ProbeResult {
	if len(output) > maxOutput {
		output = output[:maxOutput]
	}
	return domain.ProbeResult{
		OK:       ok,
		Output:   output,
		Duration: time.Since(start),
		At:       start,
	}
}

func failed(start time.Time, err error) domain.ProbeResult {
	return result(start, false, err.Error())
}
