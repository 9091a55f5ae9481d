package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Pool keeps Config.PoolSize idle build containers running so a build does
// not pay container start-up latency. Every container is used for exactly
// one build and then removed; the manager goroutine refills the pool.
type Pool struct {
	cli        *client.Client
	config     Config
	logger     *slog.Logger
	containers chan string
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewPool creates an empty pool. Call Start to begin warming containers.
func NewPool(cli *client.Client, cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cli:        cli,
		config:     cfg,
		logger:     logger,
		containers: make(chan string, cfg.PoolSize),
		done:       make(chan struct{}),
	}
}

// Start launches the manager goroutine. Calling it twice is harmless.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting build container pool", slog.Int("poolSize", p.config.PoolSize))
		p.wg.Add(1)
		go p.manager()
	})
}

// Stop halts the manager and removes every idle container.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down build container pool")
		close(p.done)
		p.wg.Wait()

		for {
			select {
			case id := <-p.containers:
				p.remove(id)
			default:
				return
			}
		}
	})
}

// Get blocks until a warm container is available or ctx is done.
func (p *Pool) Get(ctx context.Context) (string, error) {
	select {
	case id := <-p.containers:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Pool) manager() {
	defer p.wg.Done()

	for {
		if len(p.containers) >= cap(p.containers) {
			if !p.wait(100 * time.Millisecond) {
				return
			}
			continue
		}

		id, err := p.create()
		if err != nil {
			p.logger.Error("failed to create build container", slog.String("error", err.Error()))
			if !p.wait(time.Second) {
				return
			}
			continue
		}

		select {
		case p.containers <- id:
		case <-p.done:
			p.remove(id)
			return
		}
	}
}

// wait sleeps for d and reports false if the pool was stopped meanwhile.
func (p *Pool) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.done:
		return false
	}
}

func (p *Pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		ReadonlyRootfs: true,
		// The only writable place is the tmpfs the release is unpacked into.
		Tmpfs: map[string]string{
			workspaceDir: "rw,exec,mode=1777,size=" + p.config.WorkspaceSize,
			"/tmp":       "rw,size=16m",
		},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:      p.config.Image,
		Cmd:        []string{"sleep", "infinity"},
		User:       "nobody",
		WorkingDir: workspaceDir,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return "", fmt.Errorf("starting container: %w", err)
	}
	return resp.ID, nil
}

func (p *Pool) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Warn("failed to remove build container", slog.String("id", id), slog.String("error", err.Error()))
	}
}
