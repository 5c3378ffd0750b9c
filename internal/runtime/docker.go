package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

const workDir = "/workspace"

// DockerBackend runs code inside one long-lived Python container
type DockerBackend struct {
	client *client.Client
	cfg    Config

	mu          sync.Mutex
	containerID string
}

// NewDockerBackend connects to the local Docker daemon.
// The container itself is created on first use.
func NewDockerBackend(cfg Config) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}

	if cfg.Image == "" {
		cfg.Image = DefaultConfig().Image
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &DockerBackend{client: cli, cfg: cfg}, nil
}

// Ready pings the daemon
func (b *DockerBackend) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := b.client.Ping(ctx)
	return err == nil
}

// Execute copies the script into the container and runs it
func (b *DockerBackend) Execute(ctx context.Context, script Script) (*Execution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	containerID, err := b.ensureContainer(ctx)
	if err != nil {
		return nil, err
	}

	if err := b.copyFiles(ctx, containerID, scriptFiles(script.Code)); err != nil {
		return nil, fmt.Errorf("copy files: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	execResp, err := b.client.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		Cmd:          []string{"python3", "-u", runnerFile},
		Env:          scriptEnv(script),
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec: %w", err)
	}

	start := time.Now()
	attachResp, err := b.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec: %w", err)
	}
	defer attachResp.Close()

	raw := newCappedBuffer(rawOutputLimit)
	_, copyErr := io.Copy(raw, attachResp.Reader)
	duration := time.Since(start)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		// The exec keeps running inside the container; replace it.
		b.destroyLocked()
		stdout, stderr := splitOutput(raw)
		return &Execution{Stdout: stdout, Stderr: stderr, ExitCode: -1, TimedOut: true, Duration: duration}, nil
	}
	if copyErr != nil {
		return nil, fmt.Errorf("read exec output: %w", copyErr)
	}

	inspectResp, err := b.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec: %w", err)
	}

	stdout, stderr := splitOutput(raw)
	return &Execution{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: inspectResp.ExitCode,
		Duration: duration,
	}, nil
}

// Close removes the container and closes the client
func (b *DockerBackend) Close() error {
	b.mu.Lock()
	b.destroyLocked()
	b.mu.Unlock()
	return b.client.Close()
}

func (b *DockerBackend) ensureContainer(ctx context.Context) (string, error) {
	if b.containerID != "" {
		info, err := b.client.ContainerInspect(ctx, b.containerID)
		if err == nil && info.State != nil && info.State.Running {
			return b.containerID, nil
		}
		b.destroyLocked()
	}

	if err := b.ensureImage(ctx, b.cfg.Image); err != nil {
		return "", fmt.Errorf("ensure image: %w", err)
	}

	containerCfg := &container.Config{
		Image:           b.cfg.Image,
		Cmd:             []string{"sh", "-c", "while true; do sleep 3600; done"},
		WorkingDir:      workDir,
		NetworkDisabled: b.cfg.NetworkOff,
		Labels: map[string]string{
			"pyquest.runtime": "true",
		},
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   int64(b.cfg.MemoryMB) * 1024 * 1024,
			NanoCPUs: int64(b.cfg.CPULimit * 1e9),
		},
	}

	resp, err := b.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = b.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}

	b.containerID = resp.ID
	return resp.ID, nil
}

func (b *DockerBackend) destroyLocked() {
	if b.containerID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = b.client.ContainerRemove(ctx, b.containerID, container.RemoveOptions{Force: true})
	b.containerID = ""
}

func (b *DockerBackend) copyFiles(ctx context.Context, containerID string, files map[string]string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for name, content := range files {
		header := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return fmt.Errorf("write tar content: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}

	return b.client.CopyToContainer(ctx, containerID, workDir, &buf, container.CopyToContainerOptions{})
}

func (b *DockerBackend) ensureImage(ctx context.Context, img string) error {
	if _, err := b.client.ImageInspect(ctx, img); err == nil {
		return nil
	}

	reader, err := b.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// demuxOutput splits Docker's multiplexed stream. Each frame has an 8-byte
// header: [type][0][0][0][size big-endian uint32], type 1=stdout 2=stderr.
func demuxOutput(data []byte) (stdout, stderr string) {
	var outBuf, errBuf strings.Builder
	raw := data

	for len(data) >= 8 {
		streamType := data[0]
		size := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
		data = data[8:]

		if size > len(data) {
			size = len(data)
		}
		chunk := string(data[:size])
		data = data[size:]

		switch streamType {
		case 1:
			outBuf.WriteString(chunk)
		case 2:
			errBuf.WriteString(chunk)
		}
	}

	if outBuf.Len() == 0 && errBuf.Len() == 0 && len(raw) > 0 && (raw[0] != 1 && raw[0] != 2) {
		return string(raw), ""
	}
	return outBuf.String(), errBuf.String()
}

// splitOutput demultiplexes the captured stream and caps each side
func splitOutput(raw *cappedBuffer) (stdout, stderr string) {
	stdout, stderr = demuxOutput(raw.Bytes())
	return limitOutput(stdout, maxOutputBytes, raw.truncated), limitOutput(stderr, maxOutputBytes, false)
}

var _ Backend = (*DockerBackend)(nil)
