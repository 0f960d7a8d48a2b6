package docker

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of the Client interface.
type MockClient struct {
	mock.Mock
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockClient) StartContainer(ctx context.Context, containerID string) error {
	return m.Called(ctx, containerID).Error(0)
}

func (m *MockClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	return m.Called(ctx, containerID, timeout).Error(0)
}

func (m *MockClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	return m.Called(ctx, containerID, opts).Error(0)
}

func (m *MockClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	args := m.Called(ctx, containerID)
	info, _ := args.Get(0).(*ContainerInfo)
	return info, args.Error(1)
}

func (m *MockClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	args := m.Called(ctx, opts)
	list, _ := args.Get(0).([]ContainerInfo)
	return list, args.Error(1)
}

func (m *MockClient) ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, containerID, opts)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockClient) Exec(ctx context.Context, containerID string, cmd []string) (ExecResult, error) {
	args := m.Called(ctx, containerID, cmd)
	return args.Get(0).(ExecResult), args.Error(1)
}

func (m *MockClient) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockClient) RemoveNetwork(ctx context.Context, networkID string) error {
	return m.Called(ctx, networkID).Error(0)
}

func (m *MockClient) PullImage(ctx context.Context, image string) error {
	return m.Called(ctx, image).Error(0)
}

func (m *MockClient) ImageExists(ctx context.Context, image string) (bool, error) {
	args := m.Called(ctx, image)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) BuildImage(ctx context.Context, spec BuildSpec) error {
	return m.Called(ctx, spec).Error(0)
}

func (m *MockClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockClient) Close() error {
	return m.Called().Error(0)
}
