package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/artpar/stackup/internal/core/compose"
	"github.com/artpar/stackup/internal/core/domain"
	"github.com/artpar/stackup/internal/core/profile"
	"github.com/artpar/stackup/internal/shell/docker"
	"github.com/artpar/stackup/internal/shell/health"
	"github.com/artpar/stackup/internal/shell/migrator"
	"github.com/artpar/stackup/internal/shell/orchestrator"
	"github.com/artpar/stackup/internal/topology"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// =============================================================================
// Application Setup
// =============================================================================

// globalOptions are the persistent flags. Set values override config.
type globalOptions struct {
	configPath string
	file       string
	logLevel   string
	logFormat  string
}

func (g globalOptions) apply(cfg *Config) {
	if g.file != "" {
		cfg.Project.File = g.file
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
}

// app is what every command needs: config, logger and the loaded topology.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	source   *topology.Source
	registry *profile.Registry
	project  string
}

func loadApp(ctx context.Context, opts globalOptions, logOut io.Writer) (*app, error) {
	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return nil, domain.NewConfigError("config", err.Error(), err)
	}
	opts.apply(cfg)
	logger := SetupLogger(cfg, logOut)

	src, err := topology.Open(ctx, cfg.Project.File, compose.Options{
		ProjectName: cfg.Project.Name,
		Environment: environ(),
	})
	if err != nil {
		return nil, err
	}

	registry, err := profile.NewRegistry(src.Topology.Services)
	if err != nil {
		return nil, err
	}

	project := cfg.Project.Name
	if project == "" {
		project = src.Topology.Name
	}

	logger.Debug("loaded topology",
		"file", orDash(src.Path),
		"services", len(src.Topology.Services),
		"profiles", len(registry.Profiles()))

	return &app{
		cfg:      cfg,
		logger:   logger,
		source:   src,
		registry: registry,
		project:  domain.NormalizeProjectName(project),
	}, nil
}

func (a *app) orchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Project:             a.project,
		MaxConcurrentStarts: a.cfg.Orchestrator.MaxConcurrentStarts,
		ShutdownGrace:       a.cfg.Orchestrator.ShutdownGrace,
		LogTailLines:        a.cfg.Orchestrator.LogTailLines,
	}
}

// planner returns an orchestrator that can plan but not run anything.
func (a *app) planner() *orchestrator.Orchestrator {
	return orchestrator.New(a.registry, nil, nil, nil, a.orchestratorConfig(), a.logger)
}

// runner is an orchestrator wired to the container engine.
type runner struct {
	orch    *orchestrator.Orchestrator
	docker  *docker.DockerClient
	metrics *prometheus.Registry
}

func (r *runner) Close() error {
	return r.docker.Close()
}

func (a *app) connect(ctx context.Context) (*runner, error) {
	dc, err := docker.NewDockerClient(ctx, a.cfg.Docker.Host)
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := orchestrator.NewMetrics(reg)
	if err != nil {
		dc.Close()
		return nil, err
	}

	engine := docker.NewEngine(dc, a.logger, a.cfg.Orchestrator.StopTimeout)
	probes := health.NewFactory(engine, resty.New())
	orch := orchestrator.New(a.registry, engine, migrator.NewRunner(a.logger), probes,
		a.orchestratorConfig(), a.logger, orchestrator.WithMetrics(metrics))

	return &runner{orch: orch, docker: dc, metrics: reg}, nil
}

// environ returns the process environment for ${VAR} interpolation.
func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
