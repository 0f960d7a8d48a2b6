package docker

import (
	"bytes"
	"context"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/stackup/internal/core/domain"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerClient implements Client over the Docker SDK.
type DockerClient struct {
	cli *client.Client
}

var _ Client = (*DockerClient)(nil)

// NewDockerClient connects to host, or to the daemon named by the environment
// when host is empty. In the second case the Docker Desktop socket under the
// user's home is used instead if only it answers.
func NewDockerClient(ctx context.Context, host string) (*DockerClient, error) {
	if host != "" {
		return dial(client.WithHost(host))
	}

	d, err := dial(client.FromEnv)
	if err != nil {
		return nil, err
	}
	if d.Ping(ctx) == nil {
		return d, nil
	}

	socket, ok := desktopSocket()
	if !ok {
		return d, nil
	}
	if alt, err := dial(client.WithHost(socket)); err == nil {
		if alt.Ping(ctx) == nil {
			d.Close()
			return alt, nil
		}
		alt.Close()
	}
	return d, nil
}

func dial(opt client.Opt) (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(opt, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", err.Error(), ErrConnectionFailed)
	}
	return &DockerClient{cli: cli}, nil
}

func desktopSocket() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	path := filepath.Join(home, ".docker", "run", "docker.sock")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return "unix://" + path, true
}

// Ping checks that the daemon answers.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Containers
// =============================================================================

func (d *DockerClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	cfg, hostCfg, netCfg := createConfigs(spec)
	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", classify("CreateContainer", "container", spec.Name, err, nil)
	}
	return resp.ID, nil
}

// createConfigs splits a spec into the three configs ContainerCreate takes.
// Env entries are sorted so identical specs create identical containers.
func createConfigs(spec ContainerSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig) {
	exposed, bindings := portMaps(spec.Ports)

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}
	for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
		cfg.Env = append(cfg.Env, k+"="+spec.Env[k])
	}

	hostCfg := &container.HostConfig{PortBindings: bindings}
	if spec.Restart != "" {
		hostCfg.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(spec.Restart)}
	}

	if spec.Network == "" {
		return cfg, hostCfg, nil
	}
	endpoint := &network.EndpointSettings{}
	if spec.Alias != "" {
		endpoint.Aliases = []string{spec.Alias}
	}
	return cfg, hostCfg, &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{spec.Network: endpoint},
	}
}

// portMaps converts mappings to the exposed set and host bindings the engine
// expects. Host port 0 leaves the choice to the engine.
func portMaps(ports []domain.PortMapping) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))

	for _, p := range ports {
		port := nat.Port(strconv.Itoa(p.ContainerPort) + "/" + p.Key().Protocol)
		exposed[port] = struct{}{}

		binding := nat.PortBinding{HostIP: p.HostIP}
		if p.HostPort != 0 {
			binding.HostPort = strconv.Itoa(p.HostPort)
		}
		bindings[port] = append(bindings[port], binding)
	}
	return exposed, bindings
}

func (d *DockerClient) StartContainer(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return classify("StartContainer", "container", containerID, err, nil)
	}
	return nil
}

// StopContainer stops a container, killing it after timeout. A nil timeout
// uses the container's own stop timeout.
func (d *DockerClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	var opts container.StopOptions
	if timeout != nil {
		seconds := int(timeout.Seconds())
		opts.Timeout = &seconds
	}
	if err := d.cli.ContainerStop(ctx, containerID, opts); err != nil {
		return classify("StopContainer", "container", containerID, err, nil)
	}
	return nil
}

func (d *DockerClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: opts.Force}); err != nil {
		return classify("RemoveContainer", "container", containerID, err, nil)
	}
	return nil
}

func (d *DockerClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	resp, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, classify("InspectContainer", "container", containerID, err, nil)
	}

	info := &ContainerInfo{ID: resp.ID, Name: strings.TrimPrefix(resp.Name, "/")}
	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
	}
	if resp.State != nil {
		info.State = ContainerState(resp.State.Status)
		info.ExitCode = resp.State.ExitCode
	}
	return info, nil
}

func (d *DockerClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	var args []filters.KeyValuePair
	for k, v := range opts.Labels {
		args = append(args, filters.Arg("label", k+"="+v))
	}

	list, err := d.cli.ContainerList(ctx, container.ListOptions{All: opts.All, Filters: filters.NewArgs(args...)})
	if err != nil {
		return nil, classify("ListContainers", "container", "", err, nil)
	}

	out := make([]ContainerInfo, 0, len(list))
	for _, c := range list {
		info := ContainerInfo{ID: c.ID, Image: c.Image, State: ContainerState(c.State), Labels: c.Labels}
		if len(c.Names) > 0 {
			info.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, info)
	}
	return out, nil
}

// ContainerLogs returns the multiplexed stdout and stderr stream.
func (d *DockerClient) ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	reader, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       opts.Tail,
	})
	if err != nil {
		return nil, classify("ContainerLogs", "container", containerID, err, nil)
	}
	return reader, nil
}

// Exec runs cmd inside a running container and waits for it to exit.
// A non-zero exit code is reported in the result, not as an error.
func (d *DockerClient) Exec(ctx context.Context, containerID string, cmd []string) (ExecResult, error) {
	created, err := d.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, classify("Exec", "container", containerID, err, ErrExecFailed)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, NewDockerError("Exec", "container", containerID, err.Error(), ErrExecFailed)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if err := copyExecOutput(ctx, attach, &stdout, &stderr); err != nil {
		return ExecResult{}, NewDockerError("Exec", "container", containerID, err.Error(), ErrExecFailed)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, NewDockerError("Exec", "container", containerID, err.Error(), ErrExecFailed)
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
	}, nil
}

// copyExecOutput demultiplexes the attached stream until it ends or ctx is done.
func copyExecOutput(ctx context.Context, attach types.HijackedResponse, stdout, stderr io.Writer) error {
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attach.Reader)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		attach.Close()
		return ctx.Err()
	}
}

// =============================================================================
// Networks and images
// =============================================================================

// CreateNetwork creates a bridge network.
func (d *DockerClient) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	resp, err := d.cli.NetworkCreate(ctx, spec.Name, network.CreateOptions{Driver: "bridge", Labels: spec.Labels})
	if err == nil {
		return resp.ID, nil
	}
	// older daemons answer a duplicate name without a conflict status
	if strings.Contains(err.Error(), "already exists") {
		return "", NewDockerError("CreateNetwork", "network", spec.Name, err.Error(), ErrNetworkAlreadyExists)
	}
	return "", classify("CreateNetwork", "network", spec.Name, err, nil)
}

func (d *DockerClient) RemoveNetwork(ctx context.Context, networkID string) error {
	if err := d.cli.NetworkRemove(ctx, networkID); err != nil {
		return classify("RemoveNetwork", "network", networkID, err, nil)
	}
	return nil
}

// PullImage pulls ref and waits for the pull to finish.
func (d *DockerClient) PullImage(ctx context.Context, ref string) error {
	reader, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return classify("PullImage", "image", ref, err, ErrImagePullFailed)
	}
	defer reader.Close()

	if err := drainStream(reader); err != nil {
		return classify("PullImage", "image", ref, err, ErrImagePullFailed)
	}
	return nil
}

func (d *DockerClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := d.cli.ImageInspect(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case cerrdefs.IsNotFound(err):
		return false, nil
	default:
		return false, classify("ImageExists", "image", ref, err, nil)
	}
}

// BuildImage builds spec.ContextDir and tags the result spec.Tag.
func (d *DockerClient) BuildImage(ctx context.Context, spec BuildSpec) error {
	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	buildContext, err := tarContext(spec.ContextDir, dockerfile)
	if err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuild)
	}
	defer buildContext.Close()

	resp, err := d.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{spec.Tag},
		Dockerfile: dockerfile,
		Target:     spec.Target,
		Labels:     spec.Labels,
		Remove:     true,
	})
	if err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuild)
	}
	defer resp.Body.Close()

	if err := drainStream(resp.Body); err != nil {
		return NewDockerError("BuildImage", "image", spec.Tag, err.Error(), ErrImageBuild)
	}
	return nil
}

// drainStream reads a pull or build progress stream to the end and returns
// the first error the daemon reported in it.
func drainStream(r io.Reader) error {
	return jsonmessage.DisplayJSONMessagesStream(r, io.Discard, 0, false, nil)
}
