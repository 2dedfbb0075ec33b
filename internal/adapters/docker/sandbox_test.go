package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocker struct {
	mock.Mock
}

func (m *MockDocker) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	args := m.Called(ctx, config, hostConfig, networkingConfig, platform, containerName)
	return args.Get(0).(container.CreateResponse), args.Error(1)
}

func (m *MockDocker) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return m.Called(ctx, containerID, options).Error(0)
}

func (m *MockDocker) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	args := m.Called(ctx, containerID, condition)
	return args.Get(0).(<-chan container.WaitResponse), args.Get(1).(<-chan error)
}

func (m *MockDocker) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, containerID, options)
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockDocker) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return m.Called(ctx, containerID, options).Error(0)
}

func (m *MockDocker) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	args := m.Called(ctx, options)
	return args.Get(0).([]container.Summary), args.Error(1)
}

func (m *MockDocker) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, refStr, options)
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func muxLogs(t *testing.T, stdout, stderr string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
	require.NoError(t, err)
	if stderr != "" {
		_, err = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
		require.NoError(t, err)
	}
	return io.NopCloser(&buf)
}

func waitChans(status int64, err error) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if err != nil {
		errCh <- err
	} else {
		statusCh <- container.WaitResponse{StatusCode: status}
	}
	return statusCh, errCh
}

func TestSandbox_Run(t *testing.T) {
	cli := new(MockDocker)
	cli.On("ContainerCreate", mock.Anything,
		mock.MatchedBy(func(c *container.Config) bool {
			return c.Image == "alpine:3.20" && c.Cmd[2] == "echo hi" && c.Labels[managedLabel] == "true"
		}),
		mock.MatchedBy(func(h *container.HostConfig) bool {
			return h.NetworkMode == "none" && h.ReadonlyRootfs
		}),
		mock.Anything, mock.Anything, mock.Anything,
	).Return(container.CreateResponse{ID: "c1"}, nil)
	cli.On("ContainerStart", mock.Anything, "c1", mock.Anything).Return(nil)
	statusCh, errCh := waitChans(2, nil)
	cli.On("ContainerWait", mock.Anything, "c1", container.WaitConditionNotRunning).Return(statusCh, errCh)
	cli.On("ContainerLogs", mock.Anything, "c1", mock.Anything).Return(muxLogs(t, "hi\n", "warn\n"), nil)
	cli.On("ContainerRemove", mock.Anything, "c1", container.RemoveOptions{Force: true}).Return(nil)

	sb := newSandbox(slog.New(slog.NewTextHandler(io.Discard, nil)), cli, "")
	out, err := sb.Run(t.Context(), "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out.Stdout)
	assert.Equal(t, "warn\n", out.Stderr)
	assert.Equal(t, 2, out.ExitCode)
	cli.AssertExpectations(t)
}

func TestSandbox_RemovesContainerOnStartFailure(t *testing.T) {
	cli := new(MockDocker)
	cli.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(container.CreateResponse{ID: "c2"}, nil)
	cli.On("ContainerStart", mock.Anything, "c2", mock.Anything).Return(errors.New("no space left"))
	cli.On("ContainerRemove", mock.Anything, "c2", mock.Anything).Return(nil)

	sb := newSandbox(slog.New(slog.NewTextHandler(io.Discard, nil)), cli, "")
	_, err := sb.Run(t.Context(), "ls")
	require.ErrorContains(t, err, "no space left")
	cli.AssertCalled(t, "ContainerRemove", mock.Anything, "c2", mock.Anything)
}

func TestSandbox_Prune(t *testing.T) {
	cli := new(MockDocker)
	cli.On("ContainerList", mock.Anything, mock.MatchedBy(func(o container.ListOptions) bool {
		return o.All && o.Filters.ExactMatch("label", managedLabel+"=true")
	})).Return([]container.Summary{{ID: "old1"}, {ID: "old2"}}, nil)
	cli.On("ContainerRemove", mock.Anything, mock.Anything, container.RemoveOptions{Force: true}).Return(nil)

	sb := newSandbox(slog.New(slog.NewTextHandler(io.Discard, nil)), cli, "")
	n, err := sb.Prune(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
