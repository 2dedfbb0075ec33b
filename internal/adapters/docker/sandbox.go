package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/abhishekraut01/Gen-AI/internal/core/ports"
)

const (
	managedLabel  = "genai.managed"
	sandboxPrefix = "genai-sandbox-"
	containerUser = "nobody"
	removeTimeout = 10 * time.Second
)

// dockerAPI is the subset of the Docker client the sandbox needs.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// Sandbox runs each command in a throwaway container with no network and a
// read-only root filesystem.
type Sandbox struct {
	logger *slog.Logger
	cli    dockerAPI
	image  string
}

var _ ports.CommandRunner = (*Sandbox)(nil)

// NewSandbox creates a sandbox using the Docker daemon from the environment.
func NewSandbox(logger *slog.Logger, image string) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newSandbox(logger, cli, image), nil
}

func newSandbox(logger *slog.Logger, cli dockerAPI, image string) *Sandbox {
	if image == "" {
		image = "alpine:3.20"
	}
	return &Sandbox{logger: logger, cli: cli, image: image}
}

// Run creates, starts and waits for a container running `sh -c command`,
// then collects its output and removes it.
func (s *Sandbox) Run(ctx context.Context, command string) (ports.CommandOutput, error) {
	name := sandboxPrefix + uuid.NewString()

	cfg := &container.Config{
		Image:      s.image,
		Cmd:        []string{"/bin/sh", "-c", command},
		Env:        []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin", "HOME=/tmp"},
		User:       containerUser,
		WorkingDir: "/tmp",
		Labels: map[string]string{
			managedLabel: "true",
		},
	}
	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,nosuid,size=64m",
		},
		Resources: container.Resources{
			Memory:    256 << 20,
			NanoCPUs:  1e9,
			PidsLimit: ptr(int64(128)),
		},
	}

	resp, err := s.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if client.IsErrNotFound(err) {
		if pullErr := s.pull(ctx); pullErr != nil {
			return ports.CommandOutput{}, pullErr
		}
		resp, err = s.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return ports.CommandOutput{}, fmt.Errorf("failed to create container: %w", err)
	}
	defer s.remove(resp.ID)

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return ports.CommandOutput{}, fmt.Errorf("failed to start container: %w", err)
	}

	var exitCode int
	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return ports.CommandOutput{}, ctx.Err()
		}
		return ports.CommandOutput{}, fmt.Errorf("failed waiting for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return ports.CommandOutput{}, errors.New(status.Error.Message)
		}
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		return ports.CommandOutput{}, ctx.Err()
	}

	logs, err := s.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return ports.CommandOutput{ExitCode: exitCode}, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return ports.CommandOutput{ExitCode: exitCode}, fmt.Errorf("failed to demultiplex logs: %w", err)
	}

	return ports.CommandOutput{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

// Prune force-removes sandbox containers left behind by a previous run.
func (s *Sandbox) Prune(ctx context.Context) (int, error) {
	containers, err := s.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: makeFilters(map[string]string{
			"label": managedLabel + "=true",
		}),
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, c := range containers {
		if err := s.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			s.logger.Warn("failed to remove stale sandbox", "container", c.ID, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Sandbox) pull(ctx context.Context) error {
	s.logger.Info("pulling sandbox image", "image", s.image)
	reader, err := s.cli.ImagePull(ctx, s.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", s.image, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// remove runs on a fresh context so a cancelled command still cleans up.
func (s *Sandbox) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	if err := s.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		s.logger.Warn("failed to remove sandbox", "container", id, "error", err)
	}
}

// Helper to construct list filters
func makeFilters(m map[string]string) filters.Args {
	args := filters.NewArgs()
	for k, v := range m {
		args.Add(k, v)
	}
	return args
}

func ptr[T any](v T) *T { return &v }
