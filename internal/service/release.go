package service

import (
	"archive/tar"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/klauspost/compress/gzip"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

// ReleaseService creates releases, flips their flags, rebuilds them and
// streams them as archives.
type ReleaseService struct {
	releases repository.ReleaseRepository
	files    repository.FileRepository
	builds   BuildScheduler
	resolver releaseResolver
	logger   *slog.Logger
}

func NewReleaseService(
	packages repository.PackageRepository,
	releases repository.ReleaseRepository,
	files repository.FileRepository,
	orgs repository.OrgRepository,
	builds BuildScheduler,
	logger *slog.Logger,
) *ReleaseService {
	return &ReleaseService{
		releases: releases,
		files:    files,
		builds:   builds,
		resolver: releaseResolver{packages: packages, releases: releases, access: access{orgs: orgs}},
		logger:   logger,
	}
}

// ReleaseQuery is the lookup of /package_releases/get. PackageNameWithVersion
// is "owner/name@version".
type ReleaseQuery struct {
	ReleaseRef
	PackageNameWithVersion string
}

// Get returns one release.
func (s *ReleaseService) Get(ctx context.Context, viewerID string, q ReleaseQuery) (*model.PackageRelease, error) {
	ref := q.ReleaseRef
	if nv := strings.TrimSpace(q.PackageNameWithVersion); nv != "" && ref.ReleaseID == "" && ref.PackageID == "" {
		name, version, _ := strings.Cut(strings.TrimPrefix(nv, "@"), "@")
		owner, unscoped, ok := model.SplitName(name)
		if !ok {
			return nil, apperror.InvalidQuery("package_name_with_version", "expected owner/name@version")
		}
		pkg, err := s.resolver.packages.GetPackageByName(ctx, owner, unscoped)
		if err != nil {
			return nil, err
		}
		ref = ReleaseRef{PackageID: pkg.ID, Version: version}
	}

	release, _, err := s.resolver.resolve(ctx, viewerID, ref)
	return release, err
}

// List returns a package's releases, newest first.
func (s *ReleaseService) List(ctx context.Context, viewerID, packageID string) ([]model.PackageRelease, error) {
	packageID, err := requireID("package_id", packageID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.resolver.packages.GetPackageByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.access.visible(ctx, pkg, viewerID); err != nil {
		return nil, err
	}
	releases, err := s.releases.ListReleases(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}
	return releases, nil
}

// CreateReleaseInput is the body of /package_releases/create.
type CreateReleaseInput struct {
	PackageID string
	Version   string
	IsLatest  bool
}

// Create snapshots the files of the package's current latest release into a
// new release and queues a build of it. The first release of a package is
// always latest.
func (s *ReleaseService) Create(ctx context.Context, actorID string, in CreateReleaseInput) (*model.PackageRelease, error) {
	packageID, err := requireID("package_id", in.PackageID)
	if err != nil {
		return nil, err
	}
	version := strings.TrimPrefix(strings.TrimSpace(in.Version), "v")
	if _, err := semver.StrictNewVersion(version); err != nil {
		return nil, apperror.ValidationFailed("version", fmt.Sprintf("version must be semver like 1.2.3: %v", err))
	}

	pkg, err := s.resolver.packages.GetPackageByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.access.mustModify(ctx, pkg, actorID); err != nil {
		return nil, err
	}

	var snapshot []model.PackageFile
	previous, err := s.releases.GetLatestRelease(ctx, pkg.ID)
	switch {
	case err == nil:
		snapshot, err = s.files.ListFiles(ctx, previous.ID)
		if err != nil {
			return nil, fmt.Errorf("listing files to snapshot: %w", err)
		}
	case errors.Is(err, apperror.ErrNotFound):
		in.IsLatest = true
	default:
		return nil, fmt.Errorf("loading latest release: %w", err)
	}

	release := &model.PackageRelease{PackageID: pkg.ID, Version: version, IsLatest: in.IsLatest}
	if err := s.releases.CreateRelease(ctx, release); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("creating release: %w", err)
	}
	for _, f := range snapshot {
		f.PackageReleaseID = release.ID
		if err := s.files.CreateFile(ctx, &f); err != nil {
			return nil, fmt.Errorf("copying %s: %w", f.FilePath, err)
		}
	}

	build, err := s.builds.Schedule(ctx, release.ID)
	if err != nil {
		return nil, fmt.Errorf("scheduling build: %w", err)
	}
	release.LatestPackageBuildID = build.ID

	s.logger.Info("release created",
		slog.String("package", pkg.Name()),
		slog.String("version", version),
		slog.Bool("latest", release.IsLatest),
		slog.Int("files", len(snapshot)),
	)
	return s.releases.GetReleaseByID(ctx, release.ID)
}

// UpdateReleaseInput is the body of /package_releases/update.
type UpdateReleaseInput struct {
	IsLocked *bool
	IsLatest *bool
}

// Update flips a release's lock and latest flags. A locked release can be
// unlocked in the same call that changes other flags.
func (s *ReleaseService) Update(ctx context.Context, actorID, id string, in UpdateReleaseInput) (*model.PackageRelease, error) {
	id, err := requireID("package_release_id", id)
	if err != nil {
		return nil, err
	}
	release, pkg, err := s.resolver.resolve(ctx, actorID, ReleaseRef{ReleaseID: id})
	if err != nil {
		return nil, err
	}
	if err := s.resolver.access.mustModify(ctx, pkg, actorID); err != nil {
		return nil, err
	}

	if in.IsLocked != nil {
		release.IsLocked = *in.IsLocked
	}
	if in.IsLatest != nil {
		release.IsLatest = *in.IsLatest
	}
	if err := s.releases.UpdateRelease(ctx, release); err != nil {
		return nil, fmt.Errorf("updating release: %w", err)
	}
	return s.releases.GetReleaseByID(ctx, release.ID)
}

// Rebuild queues a fresh build of a release.
func (s *ReleaseService) Rebuild(ctx context.Context, actorID, id string) (*model.PackageBuild, error) {
	id, err := requireID("package_release_id", id)
	if err != nil {
		return nil, err
	}
	release, pkg, err := s.resolver.resolve(ctx, actorID, ReleaseRef{ReleaseID: id})
	if err != nil {
		return nil, err
	}
	if err := s.resolver.access.mustModify(ctx, pkg, actorID); err != nil {
		return nil, err
	}
	build, err := s.builds.Schedule(ctx, release.ID)
	if err != nil {
		return nil, fmt.Errorf("scheduling rebuild: %w", err)
	}
	s.logger.Info("rebuild requested", slog.String("releaseID", release.ID), slog.String("buildID", build.ID))
	return build, nil
}

// Download writes a gzipped tar of the release's files to w and returns the
// suggested file name, e.g. "alice-usb-c-1.0.0.tar.gz". Entries live under a
// "package/" prefix like npm tarballs.
func (s *ReleaseService) Download(ctx context.Context, viewerID string, ref ReleaseRef, w io.Writer) (string, error) {
	release, pkg, err := s.resolver.resolve(ctx, viewerID, ref)
	if err != nil {
		return "", err
	}
	files, err := s.files.ListFiles(ctx, release.ID)
	if err != nil {
		return "", fmt.Errorf("listing files: %w", err)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		content := []byte(f.ContentText)
		if f.ContentBase64 != "" {
			if content, err = base64.StdEncoding.DecodeString(f.ContentBase64); err != nil {
				return "", fmt.Errorf("decoding %s: %w", f.FilePath, err)
			}
		}
		hdr := &tar.Header{
			Name:    "package/" + f.FilePath,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: f.UpdatedAt,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", fmt.Errorf("writing tar header: %w", err)
		}
		if _, err := tw.Write(content); err != nil {
			return "", fmt.Errorf("writing %s: %w", f.FilePath, err)
		}
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("closing tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("closing gzip: %w", err)
	}

	name := fmt.Sprintf("%s-%s-%s.tar.gz", pkg.OwnerName, pkg.UnscopedName, release.Version)
	return name, nil
}
