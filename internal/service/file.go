package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

// CodeReleaseLocked is returned when writing to a locked release.
const CodeReleaseLocked = "release_locked"

// ReleaseRef addresses a release either directly or as a package plus an
// optional version. No version means the package's latest release.
type ReleaseRef struct {
	ReleaseID string
	PackageID string
	Version   string
}

// releaseResolver is shared by the file, release and build services.
type releaseResolver struct {
	packages repository.PackageRepository
	releases repository.ReleaseRepository
	access   access
}

// resolve loads the release and its package and checks the viewer may see it.
func (r releaseResolver) resolve(ctx context.Context, viewerID string, ref ReleaseRef) (*model.PackageRelease, *model.Package, error) {
	var (
		release *model.PackageRelease
		err     error
	)
	switch {
	case strings.TrimSpace(ref.ReleaseID) != "":
		release, err = r.releases.GetReleaseByID(ctx, strings.TrimSpace(ref.ReleaseID))
	case strings.TrimSpace(ref.PackageID) != "" && strings.TrimSpace(ref.Version) != "":
		release, err = r.releases.GetReleaseByVersion(ctx, strings.TrimSpace(ref.PackageID), strings.TrimSpace(ref.Version))
	case strings.TrimSpace(ref.PackageID) != "":
		release, err = r.releases.GetLatestRelease(ctx, strings.TrimSpace(ref.PackageID))
	default:
		return nil, nil, apperror.InvalidQuery("package_release_id", "package_release_id or package_id is required")
	}
	if err != nil {
		return nil, nil, err
	}

	pkg, err := r.packages.GetPackageByID(ctx, release.PackageID)
	if err != nil {
		return nil, nil, err
	}
	if err := r.access.visible(ctx, pkg, viewerID); err != nil {
		return nil, nil, apperror.NotFound("package_release", release.ID)
	}
	return release, pkg, nil
}

// writable resolves the release for a write and rejects locked releases.
func (r releaseResolver) writable(ctx context.Context, actorID string, ref ReleaseRef) (*model.PackageRelease, *model.Package, error) {
	release, pkg, err := r.resolve(ctx, actorID, ref)
	if err != nil {
		return nil, nil, err
	}
	if err := r.access.mustModify(ctx, pkg, actorID); err != nil {
		return nil, nil, err
	}
	if release.IsLocked {
		return nil, nil, apperror.Forbidden(fmt.Sprintf("release %s is locked", release.Version)).WithCode(CodeReleaseLocked)
	}
	return release, pkg, nil
}

// FileService reads and writes the files of a release.
type FileService struct {
	files    repository.FileRepository
	resolver releaseResolver
	logger   *slog.Logger
}

func NewFileService(
	packages repository.PackageRepository,
	releases repository.ReleaseRepository,
	files repository.FileRepository,
	orgs repository.OrgRepository,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		files:    files,
		resolver: releaseResolver{packages: packages, releases: releases, access: access{orgs: orgs}},
		logger:   logger,
	}
}

// FileQuery addresses a single file by ID or by release and path.
type FileQuery struct {
	FileID   string
	Release  ReleaseRef
	FilePath string
}

// Get returns one file.
func (s *FileService) Get(ctx context.Context, viewerID string, q FileQuery) (*model.PackageFile, error) {
	if id := strings.TrimSpace(q.FileID); id != "" {
		file, err := s.files.GetFileByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, _, err := s.resolver.resolve(ctx, viewerID, ReleaseRef{ReleaseID: file.PackageReleaseID}); err != nil {
			return nil, apperror.NotFound("package_file", id)
		}
		return file, nil
	}

	filePath := strings.TrimSpace(q.FilePath)
	if filePath == "" {
		return nil, apperror.InvalidQuery("file_path", "package_file_id or file_path is required")
	}
	release, _, err := s.resolver.resolve(ctx, viewerID, q.Release)
	if err != nil {
		return nil, err
	}
	return s.files.GetFileByPath(ctx, release.ID, filePath)
}

// List returns every file of a release, ordered by path.
func (s *FileService) List(ctx context.Context, viewerID string, ref ReleaseRef) ([]model.PackageFile, error) {
	release, _, err := s.resolver.resolve(ctx, viewerID, ref)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListFiles(ctx, release.ID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

// Create adds a new file; an existing path is a Conflict.
func (s *FileService) Create(ctx context.Context, actorID string, ref ReleaseRef, in FileInput) (*model.PackageFile, error) {
	release, file, err := s.prepare(ctx, actorID, ref, in)
	if err != nil {
		return nil, err
	}
	if err := s.files.CreateFile(ctx, file); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("creating file: %w", err)
	}
	s.logger.Info("file created", slog.String("releaseID", release.ID), slog.String("path", file.FilePath))
	return file, nil
}

// CreateOrUpdate upserts by path and reports whether the file is new.
func (s *FileService) CreateOrUpdate(ctx context.Context, actorID string, ref ReleaseRef, in FileInput) (*model.PackageFile, bool, error) {
	release, file, err := s.prepare(ctx, actorID, ref, in)
	if err != nil {
		return nil, false, err
	}
	created, err := s.files.UpsertFile(ctx, file)
	if err != nil {
		return nil, false, fmt.Errorf("saving file: %w", err)
	}
	s.logger.Info("file saved",
		slog.String("releaseID", release.ID),
		slog.String("path", file.FilePath),
		slog.Bool("created", created),
	)
	return file, created, nil
}

// Delete removes the file at filePath.
func (s *FileService) Delete(ctx context.Context, actorID string, ref ReleaseRef, filePath string) error {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return apperror.ValidationFailed("file_path", "file_path is required")
	}
	release, _, err := s.resolver.writable(ctx, actorID, ref)
	if err != nil {
		return err
	}
	if err := s.files.DeleteFile(ctx, release.ID, filePath); err != nil {
		return err
	}
	s.logger.Info("file deleted", slog.String("releaseID", release.ID), slog.String("path", filePath))
	return nil
}

func (s *FileService) prepare(ctx context.Context, actorID string, ref ReleaseRef, in FileInput) (*model.PackageRelease, *model.PackageFile, error) {
	if err := validateFileInput(in); err != nil {
		return nil, nil, err
	}
	release, _, err := s.resolver.writable(ctx, actorID, ref)
	if err != nil {
		return nil, nil, err
	}
	return release, &model.PackageFile{
		PackageReleaseID: release.ID,
		FilePath:         strings.TrimSpace(in.Path),
		ContentText:      in.ContentText,
		ContentBase64:    in.ContentBase64,
	}, nil
}

// validateFileInput checks the path is a clean relative path and that at
// most one content field is set.
func validateFileInput(in FileInput) error {
	p := strings.TrimSpace(in.Path)
	switch {
	case p == "":
		return apperror.ValidationFailed("file_path", "file_path is required")
	case len(p) > MaxFilePathLength:
		return apperror.ValidationFailed("file_path",
			fmt.Sprintf("file_path must be %d characters or less", MaxFilePathLength))
	case strings.HasPrefix(p, "/") || strings.Contains(p, `\`):
		return apperror.ValidationFailed("file_path", "file_path must be a relative path using '/'")
	case path.Clean(p) != p || p == "." || p == ".." || strings.HasPrefix(p, "../"):
		return apperror.ValidationFailed("file_path", "file_path must be a clean path inside the package")
	}

	if in.ContentText != "" && in.ContentBase64 != "" {
		return apperror.ValidationFailed("content_base64", "set content_text or content_base64, not both")
	}
	if len(in.ContentText) > MaxFileBytes {
		return apperror.ValidationFailed("content_text", "file is too large")
	}
	if in.ContentBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(in.ContentBase64)
		if err != nil {
			return apperror.ValidationFailed("content_base64", "content_base64 is not valid base64")
		}
		if len(raw) > MaxFileBytes {
			return apperror.ValidationFailed("content_base64", "file is too large")
		}
	}
	return nil
}
