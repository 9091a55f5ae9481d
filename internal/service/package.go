package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

// InitialVersion is the version of the release created with every new package.
const InitialVersion = "0.0.1"

var defaultViews = map[string]bool{"files": true, "3d": true, "pcb": true, "schematic": true}

// PackageService implements package CRUD, forking, starring and transfer.
type PackageService struct {
	packages repository.PackageRepository
	releases repository.ReleaseRepository
	files    repository.FileRepository
	accounts repository.AccountRepository
	orgs     repository.OrgRepository
	builds   BuildScheduler
	access   access
	logger   *slog.Logger
}

func NewPackageService(
	packages repository.PackageRepository,
	releases repository.ReleaseRepository,
	files repository.FileRepository,
	accounts repository.AccountRepository,
	orgs repository.OrgRepository,
	builds BuildScheduler,
	logger *slog.Logger,
) *PackageService {
	return &PackageService{
		packages: packages,
		releases: releases,
		files:    files,
		accounts: accounts,
		orgs:     orgs,
		builds:   builds,
		access:   access{orgs: orgs},
		logger:   logger,
	}
}

// CreatePackageInput is the body of /packages/create. Name may be unscoped
// or "owner/name"; the owner half must match the account or OrgID.
type CreatePackageInput struct {
	Name        string
	Description string
	Website     string
	License     string
	IsPrivate   bool
	Type        model.PackageType
	DefaultView string
	OrgID       string
	Files       []FileInput
}

// FileInput is one file to write into a release.
type FileInput struct {
	Path          string
	ContentText   string
	ContentBase64 string
}

// Create makes a package with an initial latest release holding in.Files
// and queues its first build.
func (s *PackageService) Create(ctx context.Context, actorID string, in CreatePackageInput) (*model.Package, error) {
	actor, err := s.accounts.GetAccountByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	pkg := &model.Package{
		CreatorAccountID: actor.ID,
		OwnerName:        actor.Handle,
		Description:      strings.TrimSpace(in.Description),
		Website:          strings.TrimSpace(in.Website),
		License:          strings.TrimSpace(in.License),
		IsPrivate:        in.IsPrivate,
		Type:             in.Type,
		DefaultView:      strings.TrimSpace(in.DefaultView),
	}
	if pkg.Type == "" {
		pkg.Type = model.PackageTypePackage
	}
	if pkg.DefaultView == "" {
		pkg.DefaultView = "files"
	}

	if in.OrgID != "" {
		org, err := s.orgs.GetOrgByID(ctx, in.OrgID)
		if err != nil {
			return nil, err
		}
		if !org.HasMember(actor.ID) {
			return nil, apperror.Forbidden("only org members can create packages for the org")
		}
		pkg.OwnerOrgID, pkg.OwnerName = org.ID, org.Name
	}

	name := strings.TrimSpace(in.Name)
	if owner, unscoped, ok := model.SplitName(name); ok {
		if owner != pkg.OwnerName {
			return nil, apperror.ValidationFailed("name", fmt.Sprintf("cannot create packages under %q", owner))
		}
		name = unscoped
	}
	pkg.UnscopedName = name

	if err := s.validate(pkg); err != nil {
		return nil, err
	}
	for _, f := range in.Files {
		if err := validateFileInput(f); err != nil {
			return nil, err
		}
	}

	if err := s.packages.CreatePackage(ctx, pkg); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create package", slog.String("name", pkg.Name()), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating package: %w", err)
	}

	if _, err := s.createRelease(ctx, pkg, InitialVersion, in.Files); err != nil {
		s.discard(ctx, pkg)
		return nil, err
	}

	s.logger.Info("package created", slog.String("packageID", pkg.ID), slog.String("name", pkg.Name()))
	return s.packages.GetPackageByID(ctx, pkg.ID)
}

// createRelease writes a latest release with files and schedules a build.
func (s *PackageService) createRelease(ctx context.Context, pkg *model.Package, version string, files []FileInput) (*model.PackageRelease, error) {
	release := &model.PackageRelease{PackageID: pkg.ID, Version: version, IsLatest: true}
	if err := s.releases.CreateRelease(ctx, release); err != nil {
		return nil, fmt.Errorf("creating release %s: %w", version, err)
	}
	for _, f := range files {
		file := &model.PackageFile{
			PackageReleaseID: release.ID,
			FilePath:         strings.TrimSpace(f.Path),
			ContentText:      f.ContentText,
			ContentBase64:    f.ContentBase64,
		}
		if _, err := s.files.UpsertFile(ctx, file); err != nil {
			return nil, fmt.Errorf("writing %s: %w", file.FilePath, err)
		}
	}
	if _, err := s.builds.Schedule(ctx, release.ID); err != nil {
		return nil, fmt.Errorf("scheduling build: %w", err)
	}
	return release, nil
}

// discard deletes a package whose initial release could not be written, so
// a half-created package never outlives the failed request.
func (s *PackageService) discard(ctx context.Context, pkg *model.Package) {
	if err := s.packages.DeletePackage(context.WithoutCancel(ctx), pkg.ID); err != nil {
		s.logger.Error("failed to remove half-created package",
			slog.String("packageID", pkg.ID), slog.String("name", pkg.Name()), slog.String("error", err.Error()))
	}
}

func (s *PackageService) validate(pkg *model.Package) error {
	if err := validateName("name", pkg.UnscopedName); err != nil {
		return err
	}
	if len(pkg.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if !pkg.Type.Valid() {
		return apperror.ValidationFailed("type", fmt.Sprintf("unknown package type %q", pkg.Type))
	}
	if !defaultViews[pkg.DefaultView] {
		return apperror.ValidationFailed("default_view", fmt.Sprintf("unknown view %q", pkg.DefaultView))
	}
	if pkg.GitHubRepoFullName != "" {
		if _, _, ok := model.SplitName(pkg.GitHubRepoFullName); !ok {
			return apperror.ValidationFailed("github_repo_full_name", "expected owner/repo")
		}
	}
	return nil
}

// PackageRef addresses a package by ID or by "owner/name".
type PackageRef struct {
	ID   string
	Name string
}

// Get returns the package if viewerID may see it.
func (s *PackageService) Get(ctx context.Context, viewerID string, ref PackageRef) (*model.Package, error) {
	pkg, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.access.visible(ctx, pkg, viewerID); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *PackageService) resolve(ctx context.Context, ref PackageRef) (*model.Package, error) {
	if id := strings.TrimSpace(ref.ID); id != "" {
		return s.packages.GetPackageByID(ctx, id)
	}
	if name := strings.TrimSpace(ref.Name); name != "" {
		owner, unscoped, ok := model.SplitName(name)
		if !ok {
			return nil, apperror.InvalidQuery("name", "name must look like owner/name")
		}
		return s.packages.GetPackageByName(ctx, owner, unscoped)
	}
	return nil, apperror.InvalidQuery("package_id", "package_id or name is required")
}

// UpdatePackageInput carries the fields of /packages/update. Nil means
// "leave unchanged".
type UpdatePackageInput struct {
	Name               *string
	Description        *string
	Website            *string
	License            *string
	IsPrivate          *bool
	Type               *model.PackageType
	DefaultView        *string
	GitHubRepoFullName *string
}

// Update applies in to the package. Renaming to the current name is a no-op,
// and an update that changes nothing does not touch storage.
func (s *PackageService) Update(ctx context.Context, actorID, id string, in UpdatePackageInput) (*model.Package, error) {
	id, err := requireID("package_id", id)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetPackageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.mustModify(ctx, pkg, actorID); err != nil {
		return nil, err
	}

	updated := *pkg
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if owner, unscoped, ok := model.SplitName(name); ok {
			if owner != pkg.OwnerName {
				return nil, apperror.ValidationFailed("name",
					fmt.Sprintf("cannot move %s under %q, use transfer instead", pkg.Name(), owner))
			}
			name = unscoped
		}
		updated.UnscopedName = name
	}
	if in.Description != nil {
		updated.Description = strings.TrimSpace(*in.Description)
	}
	if in.Website != nil {
		updated.Website = strings.TrimSpace(*in.Website)
	}
	if in.License != nil {
		updated.License = strings.TrimSpace(*in.License)
	}
	if in.IsPrivate != nil {
		updated.IsPrivate = *in.IsPrivate
	}
	if in.Type != nil {
		updated.Type = *in.Type
	}
	if in.DefaultView != nil {
		updated.DefaultView = strings.TrimSpace(*in.DefaultView)
	}
	if in.GitHubRepoFullName != nil {
		updated.GitHubRepoFullName = strings.TrimSpace(*in.GitHubRepoFullName)
	}

	if err := s.validate(&updated); err != nil {
		return nil, err
	}
	if updated == *pkg {
		return pkg, nil
	}

	if err := s.packages.UpdatePackage(ctx, &updated); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to update package", slog.String("packageID", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("updating package: %w", err)
	}

	if updated.UnscopedName != pkg.UnscopedName {
		s.logger.Info("package renamed", slog.String("packageID", id),
			slog.String("from", pkg.Name()), slog.String("to", updated.Name()))
	}
	return &updated, nil
}

// Delete removes the package together with its releases, files and domains.
func (s *PackageService) Delete(ctx context.Context, actorID, id string) error {
	id, err := requireID("package_id", id)
	if err != nil {
		return err
	}
	pkg, err := s.packages.GetPackageByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.access.mustModify(ctx, pkg, actorID); err != nil {
		return err
	}
	if err := s.packages.DeletePackage(ctx, id); err != nil {
		return fmt.Errorf("deleting package: %w", err)
	}
	s.logger.Info("package deleted", slog.String("packageID", id), slog.String("name", pkg.Name()))
	return nil
}

// Fork copies the latest release of a package into a new package owned by
// actorID. Forking a package the actor can already modify is rejected with
// the cannot_fork_own_package code. When the actor already has a package
// with the same name the fork gets a "-fork", "-fork-2", ... suffix.
func (s *PackageService) Fork(ctx context.Context, actorID, id string) (*model.Package, error) {
	id, err := requireID("package_id", id)
	if err != nil {
		return nil, err
	}
	src, err := s.packages.GetPackageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.visible(ctx, src, actorID); err != nil {
		return nil, err
	}
	own, err := s.access.canModify(ctx, src, actorID)
	if err != nil {
		return nil, err
	}
	if own {
		return nil, apperror.ValidationFailed("package_id", "you cannot fork your own package").
			WithCode(apperror.CodeCannotForkOwnPackage)
	}

	actor, err := s.accounts.GetAccountByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	var files []FileInput
	version := InitialVersion
	if latest, err := s.releases.GetLatestRelease(ctx, src.ID); err == nil {
		version = latest.Version
		stored, err := s.files.ListFiles(ctx, latest.ID)
		if err != nil {
			return nil, fmt.Errorf("listing files to fork: %w", err)
		}
		for _, f := range stored {
			files = append(files, FileInput{Path: f.FilePath, ContentText: f.ContentText, ContentBase64: f.ContentBase64})
		}
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("loading latest release: %w", err)
	}

	fork := &model.Package{
		CreatorAccountID:    actor.ID,
		OwnerName:           actor.Handle,
		Description:         src.Description,
		Website:             src.Website,
		License:             src.License,
		IsPrivate:           src.IsPrivate,
		Type:                src.Type,
		DefaultView:         src.DefaultView,
		ForkedFromPackageID: src.ID,
	}
	for attempt := 1; ; attempt++ {
		fork.UnscopedName = forkName(src.UnscopedName, attempt)
		err := s.packages.CreatePackage(ctx, fork)
		if err == nil {
			break
		}
		if !errors.Is(err, apperror.ErrConflict) || attempt >= 20 {
			return nil, fmt.Errorf("creating fork: %w", err)
		}
	}

	if _, err := s.createRelease(ctx, fork, version, files); err != nil {
		s.discard(ctx, fork)
		return nil, err
	}

	s.logger.Info("package forked",
		slog.String("from", src.Name()),
		slog.String("to", fork.Name()),
		slog.Int("files", len(files)),
	)
	return s.packages.GetPackageByID(ctx, fork.ID)
}

func forkName(name string, attempt int) string {
	switch attempt {
	case 1:
		return name
	case 2:
		return name + "-fork"
	}
	return fmt.Sprintf("%s-fork-%d", name, attempt-1)
}

// Search returns public packages whose name, description or owner contains query.
func (s *PackageService) Search(ctx context.Context, query string, limit int) ([]model.Package, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.InvalidQuery("query", "query is required")
	}
	pkgs, err := s.packages.ListPackages(ctx, repository.PackageFilter{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("searching packages: %w", err)
	}
	return pkgs, nil
}

// ListPackagesInput filters /packages/list.
type ListPackagesInput struct {
	OwnerName string
	Starred   bool
	Limit     int
}

// List returns packages visible to viewerID, optionally only one owner's or
// only those the viewer starred.
func (s *PackageService) List(ctx context.Context, viewerID string, in ListPackagesInput) ([]model.Package, error) {
	filter := repository.PackageFilter{
		OwnerName:       strings.TrimSpace(in.OwnerName),
		ViewerAccountID: viewerID,
		Limit:           in.Limit,
	}
	if in.Starred {
		if viewerID == "" {
			return nil, apperror.Unauthorized("log in to list starred packages")
		}
		filter.StarredBy = viewerID
	}
	pkgs, err := s.packages.ListPackages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	return pkgs, nil
}

// Star adds actorID's star to a visible package.
func (s *PackageService) Star(ctx context.Context, actorID, id string) (*model.Package, error) {
	return s.star(ctx, actorID, id, s.packages.AddStar)
}

// Unstar removes actorID's star.
func (s *PackageService) Unstar(ctx context.Context, actorID, id string) (*model.Package, error) {
	return s.star(ctx, actorID, id, s.packages.RemoveStar)
}

func (s *PackageService) star(ctx context.Context, actorID, id string, op func(context.Context, string, string) error) (*model.Package, error) {
	pkg, err := s.Get(ctx, actorID, PackageRef{ID: id})
	if err != nil {
		return nil, err
	}
	if err := op(ctx, pkg.ID, actorID); err != nil {
		return nil, fmt.Errorf("updating star: %w", err)
	}
	return s.packages.GetPackageByID(ctx, pkg.ID)
}

// Transfer moves a package into an org. The actor must be able to modify
// the package and be a member of the target org.
func (s *PackageService) Transfer(ctx context.Context, actorID, id, orgID string) (*model.Package, error) {
	id, err := requireID("package_id", id)
	if err != nil {
		return nil, err
	}
	orgID, err = requireID("target_org_id", orgID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.GetPackageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.mustModify(ctx, pkg, actorID); err != nil {
		return nil, err
	}
	org, err := s.orgs.GetOrgByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.HasMember(actorID) {
		return nil, apperror.Forbidden("you must be a member of the target org")
	}
	if pkg.OwnerOrgID == org.ID {
		return pkg, nil
	}

	from := pkg.Name()
	pkg.OwnerOrgID, pkg.OwnerName = org.ID, org.Name
	if err := s.packages.UpdatePackage(ctx, pkg); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("transferring package: %w", err)
	}
	s.logger.Info("package transferred", slog.String("from", from), slog.String("to", pkg.Name()))
	return pkg, nil
}
