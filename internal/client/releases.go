package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sakif/circuitpad/internal/model"
)

// DefaultPollInterval is how often WaitForBuild checks on a release.
const DefaultPollInterval = 2000 * time.Millisecond

type CreateReleaseRequest struct {
	PackageID string `json:"package_id"`
	Version   string `json:"version"`
	IsLatest  bool   `json:"is_latest,omitempty"`
}

type UpdateReleaseRequest struct {
	PackageReleaseID string `json:"package_release_id"`
	IsLocked         *bool  `json:"is_locked,omitempty"`
	IsLatest         *bool  `json:"is_latest,omitempty"`
}

func (c *Client) GetRelease(ctx context.Context, ref ReleaseRef) (*model.PackageRelease, error) {
	var release model.PackageRelease
	if err := c.get(ctx, "/package_releases/get", ref.query(), "package_release", &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// GetReleaseByName resolves "owner/name@version".
func (c *Client) GetReleaseByName(ctx context.Context, nameWithVersion string) (*model.PackageRelease, error) {
	var release model.PackageRelease
	q := url.Values{"package_name_with_version": {nameWithVersion}}
	if err := c.get(ctx, "/package_releases/get", q, "package_release", &release); err != nil {
		return nil, err
	}
	return &release, nil
}

func (c *Client) ListReleases(ctx context.Context, packageID string) ([]model.PackageRelease, error) {
	var releases []model.PackageRelease
	q := url.Values{"package_id": {packageID}}
	if err := c.get(ctx, "/package_releases/list", q, "package_releases", &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

func (c *Client) CreateRelease(ctx context.Context, req CreateReleaseRequest) (*model.PackageRelease, error) {
	var release model.PackageRelease
	if err := c.post(ctx, "/package_releases/create", req, "package_release", &release); err != nil {
		return nil, err
	}
	return &release, nil
}

func (c *Client) UpdateRelease(ctx context.Context, req UpdateReleaseRequest) (*model.PackageRelease, error) {
	var release model.PackageRelease
	if err := c.post(ctx, "/package_releases/update", req, "package_release", &release); err != nil {
		return nil, err
	}
	return &release, nil
}

// Rebuild queues a new build of the release.
func (c *Client) Rebuild(ctx context.Context, releaseID string) (*model.PackageBuild, error) {
	var build model.PackageBuild
	body := map[string]string{"package_release_id": releaseID}
	if err := c.post(ctx, "/package_releases/rebuild", body, "package_build", &build); err != nil {
		return nil, err
	}
	return &build, nil
}

// Download streams the release's tar.gz into w and returns the bytes copied.
func (c *Client) Download(ctx context.Context, releaseID string, w io.Writer) (int64, error) {
	u := c.baseURL + "/package_releases/download?" + url.Values{"package_release_id": {releaseID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("client: building request: %w", err)
	}
	resp, sentToken, err := c.send(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, c.failure(req, resp, sentToken)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("client: reading download: %w", err)
	}
	return n, nil
}

func (c *Client) GetBuild(ctx context.Context, buildID string) (*model.PackageBuild, error) {
	var build model.PackageBuild
	q := url.Values{"package_build_id": {buildID}}
	if err := c.get(ctx, "/package_builds/get", q, "package_build", &build); err != nil {
		return nil, err
	}
	return &build, nil
}

func (c *Client) ListBuilds(ctx context.Context, releaseID string) ([]model.PackageBuild, error) {
	var builds []model.PackageBuild
	q := url.Values{"package_release_id": {releaseID}}
	if err := c.get(ctx, "/package_builds/list", q, "package_builds", &builds); err != nil {
		return nil, err
	}
	return builds, nil
}

// WaitForBuild polls the release every interval (DefaultPollInterval when
// interval is not positive) until its build is complete or failed, and
// returns the release in that state. Polling stops with ctx.Err() when ctx
// ends; a failed poll stops it with that error.
func (c *Client) WaitForBuild(ctx context.Context, releaseID string, interval time.Duration) (*model.PackageRelease, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		release, err := c.GetRelease(ctx, ReleaseRef{ReleaseID: releaseID})
		if err != nil {
			return nil, err
		}
		if release.BuildStatus.Done() {
			return release, nil
		}
		c.logger.Debug("build still running",
			slog.String("releaseID", releaseID),
			slog.String("status", string(release.BuildStatus)),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
