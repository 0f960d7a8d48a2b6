// Package docker runs planned services as containers on a Docker engine.
package docker

import (
	"context"
	"io"
	"time"

	"github.com/artpar/stackup/internal/core/domain"
)

// ContainerSpec is one container to create.
type ContainerSpec struct {
	Name    string
	Image   string
	Command []string
	Env     map[string]string
	Labels  map[string]string
	Ports   []domain.PortMapping
	Network string // joined at create time when set
	Alias   string
	Restart string // "no", "always" or "unless-stopped"
}

// ContainerState is the engine's state string for a container.
type ContainerState string

const (
	ContainerCreated    ContainerState = "created"
	ContainerRunning    ContainerState = "running"
	ContainerRestarting ContainerState = "restarting"
	ContainerExited     ContainerState = "exited"
	ContainerDead       ContainerState = "dead"
)

// ContainerInfo is what stackup reads back about a container.
type ContainerInfo struct {
	ID       string
	Name     string
	Image    string
	State    ContainerState
	Labels   map[string]string
	ExitCode int
}

// Running reports whether the container is up.
func (c ContainerInfo) Running() bool {
	return c.State == ContainerRunning || c.State == ContainerRestarting
}

// NetworkSpec is a bridge network to create.
type NetworkSpec struct {
	Name   string
	Labels map[string]string
}

// BuildSpec describes a local image build.
type BuildSpec struct {
	ContextDir string
	Dockerfile string // relative to ContextDir, "Dockerfile" when empty
	Target     string
	Tag        string
	Labels     map[string]string
}

// ExecResult is the outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout followed by stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// RemoveOptions controls container removal.
type RemoveOptions struct {
	Force bool
}

// ListOptions selects containers by label.
type ListOptions struct {
	All    bool              // include stopped containers
	Labels map[string]string // all must match
}

// LogOptions selects the tail of a container's output.
type LogOptions struct {
	Tail string // "all" or a line count
}

// Client is the part of the Docker API stackup drives.
type Client interface {
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error)
	Exec(ctx context.Context, containerID string, cmd []string) (ExecResult, error)

	CreateNetwork(ctx context.Context, spec NetworkSpec) (networkID string, err error)
	RemoveNetwork(ctx context.Context, networkID string) error

	PullImage(ctx context.Context, image string) error
	ImageExists(ctx context.Context, image string) (bool, error)
	BuildImage(ctx context.Context, spec BuildSpec) error

	Ping(ctx context.Context) error
	Close() error
}
