package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/builder"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

// BuildService owns the build queue. Schedule records a pending build and
// enqueues it; Run starts the workers that drain the queue. A build that
// could not be enqueued (queue full, server restarted) stays pending and is
// picked up again by RequeueStale.
type BuildService struct {
	releases repository.ReleaseRepository
	builds   repository.BuildRepository
	files    repository.FileRepository
	builder  builder.Builder
	resolver releaseResolver
	logger   *slog.Logger

	queue chan string
	now   func() time.Time

	mu      sync.Mutex
	pending map[string]struct{} // queued or running build IDs
}

var _ BuildScheduler = (*BuildService)(nil)

func NewBuildService(
	packages repository.PackageRepository,
	releases repository.ReleaseRepository,
	builds repository.BuildRepository,
	files repository.FileRepository,
	orgs repository.OrgRepository,
	b builder.Builder,
	queueSize int,
	logger *slog.Logger,
) *BuildService {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &BuildService{
		releases: releases,
		builds:   builds,
		files:    files,
		builder:  b,
		resolver: releaseResolver{packages: packages, releases: releases, access: access{orgs: orgs}},
		logger:   logger,
		queue:    make(chan string, queueSize),
		now:      time.Now,
		pending:  make(map[string]struct{}),
	}
}

// Schedule creates a pending build for the release and queues it.
func (s *BuildService) Schedule(ctx context.Context, releaseID string) (*model.PackageBuild, error) {
	build := &model.PackageBuild{PackageReleaseID: releaseID}
	if err := s.builds.CreateBuild(ctx, build); err != nil {
		return nil, fmt.Errorf("creating build: %w", err)
	}
	s.enqueue(build.ID)
	return build, nil
}

// enqueue never blocks; a full queue leaves the build for RequeueStale.
func (s *BuildService) enqueue(buildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[buildID]; ok {
		return false
	}
	select {
	case s.queue <- buildID:
		s.pending[buildID] = struct{}{}
		return true
	default:
		s.logger.Warn("build queue full, leaving build pending", slog.String("buildID", buildID))
		return false
	}
}

func (s *BuildService) done(buildID string) {
	s.mu.Lock()
	delete(s.pending, buildID)
	s.mu.Unlock()
}

// Run starts n workers and blocks until ctx is cancelled and every worker
// has finished its current build.
func (s *BuildService) Run(ctx context.Context, n int) error {
	if n <= 0 {
		n = 1
	}
	s.logger.Info("build workers started", slog.Int("workers", n))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-s.queue:
					s.process(ctx, id)
					s.done(id)
				}
			}
		}()
	}
	wg.Wait()
	s.logger.Info("build workers stopped")
	return nil
}

// RequeueStale queues the builds of releases that have been pending for
// longer than olderThan and returns how many were queued. Releases without
// any build get a fresh one.
func (s *BuildService) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.releases.ListStaleReleases(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("listing stale releases: %w", err)
	}

	queued := 0
	for _, r := range stale {
		if r.LatestPackageBuildID == "" {
			if _, err := s.Schedule(ctx, r.ID); err != nil {
				s.logger.Error("failed to schedule stale release",
					slog.String("releaseID", r.ID), slog.String("error", err.Error()))
				continue
			}
			queued++
			continue
		}
		if s.enqueue(r.LatestPackageBuildID) {
			queued++
		}
	}
	if queued > 0 {
		s.logger.Info("requeued stale builds", slog.Int("count", queued))
	}
	return queued, nil
}

// process runs one build and records the outcome on the build and, through
// the repository, on its release.
func (s *BuildService) process(ctx context.Context, buildID string) {
	logger := s.logger.With(slog.String("buildID", buildID))

	build, err := s.builds.GetBuildByID(ctx, buildID)
	if err != nil {
		logger.Error("failed to load build", slog.String("error", err.Error()))
		return
	}
	if build.Status.Done() {
		return
	}

	started := s.now()
	build.Status = model.BuildBuilding
	build.StartedAt = &started
	if err := s.builds.UpdateBuild(ctx, build); err != nil {
		logger.Error("failed to mark build as building", slog.String("error", err.Error()))
		return
	}

	req, err := s.request(ctx, build.PackageReleaseID)
	var res *builder.Result
	if err == nil {
		res, err = s.builder.Build(ctx, req)
	}

	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// Shutdown interrupted the build; leave it pending for RequeueStale.
		build.Status = model.BuildPending
		build.StartedAt = nil
		if err := s.builds.UpdateBuild(context.WithoutCancel(ctx), build); err != nil {
			logger.Error("failed to return interrupted build to pending", slog.String("error", err.Error()))
			return
		}
		logger.Info("build interrupted by shutdown, left pending", slog.String("releaseID", build.PackageReleaseID))
		return
	}

	completed := s.now()
	build.CompletedAt = &completed
	switch {
	case err != nil:
		build.Status = model.BuildError
		build.ExitCode = -1
		build.Logs = "build could not run: " + err.Error()
	case res.ExitCode != 0:
		build.Status = model.BuildError
		build.ExitCode = res.ExitCode
		build.Logs = res.Logs
	default:
		build.Status = model.BuildComplete
		build.Logs = res.Logs
	}

	// The request context may be gone during shutdown; the outcome is still recorded.
	if err := s.builds.UpdateBuild(context.WithoutCancel(ctx), build); err != nil {
		logger.Error("failed to record build result", slog.String("error", err.Error()))
		return
	}
	logger.Info("build finished",
		slog.String("releaseID", build.PackageReleaseID),
		slog.String("status", string(build.Status)),
		slog.Int("exitCode", build.ExitCode),
		slog.Duration("duration", completed.Sub(started)),
	)
}

func (s *BuildService) request(ctx context.Context, releaseID string) (builder.Request, error) {
	files, err := s.files.ListFiles(ctx, releaseID)
	if err != nil {
		return builder.Request{}, fmt.Errorf("listing files: %w", err)
	}
	req := builder.Request{ReleaseID: releaseID, Files: make([]builder.File, 0, len(files))}
	for _, f := range files {
		content := []byte(f.ContentText)
		if f.ContentBase64 != "" {
			if content, err = base64.StdEncoding.DecodeString(f.ContentBase64); err != nil {
				return builder.Request{}, fmt.Errorf("decoding %s: %w", f.FilePath, err)
			}
		}
		req.Files = append(req.Files, builder.File{Path: f.FilePath, Content: content})
	}
	return req, nil
}

// Get returns a build the viewer may see.
func (s *BuildService) Get(ctx context.Context, viewerID, id string) (*model.PackageBuild, error) {
	id, err := requireID("package_build_id", id)
	if err != nil {
		return nil, err
	}
	build, err := s.builds.GetBuildByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.resolver.resolve(ctx, viewerID, ReleaseRef{ReleaseID: build.PackageReleaseID}); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("package_build", id)
		}
		return nil, err
	}
	return build, nil
}

// List returns a release's builds, newest first.
func (s *BuildService) List(ctx context.Context, viewerID, releaseID string) ([]model.PackageBuild, error) {
	releaseID, err := requireID("package_release_id", releaseID)
	if err != nil {
		return nil, err
	}
	release, _, err := s.resolver.resolve(ctx, viewerID, ReleaseRef{ReleaseID: releaseID})
	if err != nil {
		return nil, err
	}
	builds, err := s.builds.ListBuilds(ctx, release.ID)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	return builds, nil
}
