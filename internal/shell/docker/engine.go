package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/artpar/stackup/internal/core/deployment"
	"github.com/docker/docker/pkg/stdcopy"
)

// DefaultStopTimeout is how long a container gets to exit before it is killed.
const DefaultStopTimeout = 10 * time.Second

// =============================================================================
// Engine - Container Lifecycle for Planned Services
// =============================================================================

// Engine launches and stops the containers of a deployment plan.
type Engine struct {
	docker      Client
	logger      *slog.Logger
	stopTimeout time.Duration
}

// NewEngine creates an engine over a Docker client.
func NewEngine(docker Client, logger *slog.Logger, stopTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Engine{
		docker:      docker,
		logger:      logger.With("component", "docker"),
		stopTimeout: stopTimeout,
	}
}

// EnsureNetwork creates the project network unless it already exists.
func (e *Engine) EnsureNetwork(ctx context.Context, project string) error {
	name := deployment.NetworkName(project)
	id, err := e.docker.CreateNetwork(ctx, NetworkSpec{
		Name:   name,
		Labels: deployment.ProjectLabels(project),
	})
	if errors.Is(err, ErrNetworkAlreadyExists) {
		return nil
	}
	if err != nil {
		return err
	}
	e.logger.Debug("created network", "network", name, "network_id", id)
	return nil
}

// RemoveNetwork removes the project network. A missing network, or one other
// containers still use, is left alone.
func (e *Engine) RemoveNetwork(ctx context.Context, project string) error {
	name := deployment.NetworkName(project)
	err := e.docker.RemoveNetwork(ctx, name)
	switch {
	case err == nil:
		e.logger.Debug("removed network", "network", name)
		return nil
	case errors.Is(err, ErrNetworkNotFound):
		return nil
	case errors.Is(err, ErrNetworkInUse):
		e.logger.Debug("network still in use", "network", name)
		return nil
	default:
		return err
	}
}

// Launch brings the planned container up and reports whether it created it.
//
// A container of the same name that is already running is adopted as is,
// so services shared by two profiles are not restarted; created is false
// then. A stopped one is replaced. The image is built when the plan has a
// build section and pulled when it is missing locally.
func (e *Engine) Launch(ctx context.Context, plan deployment.ContainerPlan) (created bool, err error) {
	existing, err := e.docker.InspectContainer(ctx, plan.Name)
	switch {
	case err == nil && existing.Running():
		e.logger.Info("adopting running container", "container", plan.Name)
		return false, nil
	case err == nil:
		if err := e.docker.RemoveContainer(ctx, existing.ID, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
			return false, err
		}
	case !errors.Is(err, ErrContainerNotFound):
		return false, err
	}

	if err := e.ensureImage(ctx, plan); err != nil {
		return false, err
	}

	id, err := e.docker.CreateContainer(ctx, containerSpec(plan))
	if err != nil {
		return false, err
	}
	if err := e.docker.StartContainer(ctx, id); err != nil {
		// a created but unstarted container would block the next attempt
		if rmErr := e.docker.RemoveContainer(context.WithoutCancel(ctx), id, RemoveOptions{Force: true}); rmErr != nil {
			e.logger.Warn("failed to remove container after start failure", "container", plan.Name, "error", rmErr)
		}
		return false, err
	}

	e.logger.Debug("started container", "container", plan.Name, "container_id", id, "image", plan.Image)
	return true, nil
}

func (e *Engine) ensureImage(ctx context.Context, plan deployment.ContainerPlan) error {
	if plan.Build != nil {
		e.logger.Info("building image", "image", plan.Image, "context", plan.Build.Context, "target", plan.Build.Target)
		return e.docker.BuildImage(ctx, BuildSpec{
			ContextDir: plan.Build.Context,
			Dockerfile: plan.Build.Dockerfile,
			Target:     plan.Build.Target,
			Tag:        plan.Image,
			Labels:     map[string]string{deployment.LabelManaged: "true"},
		})
	}

	exists, err := e.docker.ImageExists(ctx, plan.Image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	e.logger.Info("pulling image", "image", plan.Image)
	return e.docker.PullImage(ctx, plan.Image)
}

// Stop stops and removes a container by name. A container that is already
// gone counts as stopped.
func (e *Engine) Stop(ctx context.Context, name string) error {
	timeout := e.stopTimeout
	err := e.docker.StopContainer(ctx, name, &timeout)
	if err != nil && !errors.Is(err, ErrContainerNotFound) && !errors.Is(err, ErrContainerNotRunning) {
		return err
	}

	err = e.docker.RemoveContainer(ctx, name, RemoveOptions{Force: true})
	if err != nil && !errors.Is(err, ErrContainerNotFound) {
		return err
	}
	e.logger.Debug("stopped container", "container", name)
	return nil
}

// Exec runs cmd inside the named container.
func (e *Engine) Exec(ctx context.Context, name string, cmd []string) (ExecResult, error) {
	return e.docker.Exec(ctx, name, cmd)
}

// Containers lists every container of the project, running or not.
func (e *Engine) Containers(ctx context.Context, project string) ([]ContainerInfo, error) {
	return e.docker.ListContainers(ctx, ListOptions{
		All:    true,
		Labels: deployment.ProjectLabels(project),
	})
}

// TailLogs returns the last lines the container wrote, for failure reports.
func (e *Engine) TailLogs(ctx context.Context, name string, lines int) (string, error) {
	reader, err := e.docker.ContainerLogs(ctx, name, LogOptions{Tail: fmt.Sprint(lines)})
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", NewDockerError("TailLogs", "container", name, err.Error(), err)
	}
	return strings.TrimSpace(stdout.String() + stderr.String()), nil
}

// containerSpec maps a planned container onto a client spec.
func containerSpec(plan deployment.ContainerPlan) ContainerSpec {
	return ContainerSpec{
		Name:    plan.Name,
		Image:   plan.Image,
		Command: plan.Command,
		Env:     plan.Env,
		Labels:  plan.Labels,
		Ports:   plan.Ports,
		Network: plan.Network,
		Alias:   plan.Alias,
		Restart: plan.Restart,
	}
}
