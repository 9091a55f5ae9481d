// Package docker builds releases inside throwaway Docker containers.
//
// Each build takes a pre-warmed container from the Pool, streams the release
// files into /workspace as a tar archive over the exec's stdin, runs the
// configured build command and removes the container afterwards.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/circuitpad/internal/builder"
)

const workspaceDir = "/workspace"

// Builder is a builder.Builder backed by Docker.
type Builder struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ builder.Builder = (*Builder)(nil)

// New connects to the Docker daemon from the environment, pulls the image
// and starts the pool.
func New(cfg Config, logger *slog.Logger) (*Builder, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring build image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker: pulling image %s: %w", cfg.Image, err)
	}
	// The pull only finishes once the progress stream is drained.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	b := &Builder{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cli, cfg, logger),
	}
	b.pool.Start()
	return b, nil
}

// Close stops the pool and the Docker client.
func (b *Builder) Close() error {
	b.pool.Stop()
	return b.cli.Close()
}

// Build implements builder.Builder.
func (b *Builder) Build(ctx context.Context, req builder.Request) (*builder.Result, error) {
	start := time.Now()

	archive, err := tarFiles(req.Files)
	if err != nil {
		return nil, err
	}

	containerID, err := b.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("docker: waiting for a build container: %w", err)
	}
	defer b.pool.remove(containerID)

	buildCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	var logs bytes.Buffer

	if code, err := b.exec(buildCtx, containerID, []string{"tar", "-x", "-C", workspaceDir}, archive, &logs); err != nil {
		return nil, fmt.Errorf("docker: unpacking files: %w", err)
	} else if code != 0 {
		return &builder.Result{Logs: logs.String(), ExitCode: code, Duration: time.Since(start)}, nil
	}

	code, err := b.exec(buildCtx, containerID, []string{"sh", "-c", b.config.Command}, nil, &logs)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || buildCtx.Err() == context.DeadlineExceeded:
		code = builder.ExitTimeout
		logs.WriteString("\nbuild timed out\n")
	case err != nil:
		return nil, fmt.Errorf("docker: running build: %w", err)
	}

	return &builder.Result{Logs: logs.String(), ExitCode: code, Duration: time.Since(start)}, nil
}

// exec runs cmd in the container, optionally feeding stdin, and appends
// stdout and stderr to out. It returns the process exit code.
func (b *Builder) exec(ctx context.Context, containerID string, cmd []string, stdin io.Reader, out *bytes.Buffer) (int, error) {
	execResp, err := b.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   workspaceDir,
		Cmd:          cmd,
	})
	if err != nil {
		return 0, fmt.Errorf("creating exec: %w", err)
	}

	attach, err := b.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return 0, fmt.Errorf("attaching to exec: %w", err)
	}
	defer attach.Close()

	if stdin != nil {
		if _, err := io.Copy(attach.Conn, stdin); err != nil {
			return 0, fmt.Errorf("writing stdin: %w", err)
		}
		if err := attach.CloseWrite(); err != nil {
			return 0, fmt.Errorf("closing stdin: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		// stdout and stderr are multiplexed on one stream; both go to the log.
		_, _ = stdcopy.StdCopy(out, out, attach.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	inspect, err := b.cli.ContainerExecInspect(context.WithoutCancel(ctx), execResp.ID)
	if err != nil {
		return 0, fmt.Errorf("inspecting exec: %w", err)
	}
	return inspect.ExitCode, nil
}

// tarFiles packs files into an in-memory tar stream rooted at the workspace.
func tarFiles(files []builder.File) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.Path,
			Mode:    0o644,
			Size:    int64(len(f.Content)),
			ModTime: time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("docker: writing tar header for %s: %w", f.Path, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return nil, fmt.Errorf("docker: writing %s: %w", f.Path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("docker: closing tar: %w", err)
	}
	return &buf, nil
}
