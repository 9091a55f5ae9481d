// Package repository declares the storage interfaces the service layer depends on.
// The only production implementation lives in repository/sqlite; service tests
// use hand-written in-memory mocks.
package repository

import (
	"context"
	"time"

	"github.com/sakif/circuitpad/internal/model"
)

// MaxListLimit caps every list query. Truncation beyond it is silent.
const MaxListLimit = 100

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	UpsertGitHubAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*model.Account, error)
}

type OrgRepository interface {
	CreateOrg(ctx context.Context, org *model.Org) error
	GetOrgByID(ctx context.Context, id string) (*model.Org, error)
	GetOrgByName(ctx context.Context, name string) (*model.Org, error)
	AddOrgMember(ctx context.Context, orgID, accountID string) error
}

// PackageFilter selects packages for search and list endpoints.
// ViewerAccountID lets the viewer's own private packages through; everyone
// else only sees public packages.
type PackageFilter struct {
	Query           string
	OwnerName       string
	StarredBy       string
	ViewerAccountID string
	Limit           int
}

type PackageRepository interface {
	CreatePackage(ctx context.Context, pkg *model.Package) error
	GetPackageByID(ctx context.Context, id string) (*model.Package, error)
	GetPackageByName(ctx context.Context, owner, name string) (*model.Package, error)
	ListPackages(ctx context.Context, filter PackageFilter) ([]model.Package, error)
	UpdatePackage(ctx context.Context, pkg *model.Package) error
	DeletePackage(ctx context.Context, id string) error
	AddStar(ctx context.Context, packageID, accountID string) error
	RemoveStar(ctx context.Context, packageID, accountID string) error
}

type ReleaseRepository interface {
	CreateRelease(ctx context.Context, release *model.PackageRelease) error
	GetReleaseByID(ctx context.Context, id string) (*model.PackageRelease, error)
	GetReleaseByVersion(ctx context.Context, packageID, version string) (*model.PackageRelease, error)
	GetLatestRelease(ctx context.Context, packageID string) (*model.PackageRelease, error)
	ListReleases(ctx context.Context, packageID string) ([]model.PackageRelease, error)
	UpdateRelease(ctx context.Context, release *model.PackageRelease) error
	// ListStaleReleases returns releases whose build status is still
	// pending and that were last touched before the given time.
	ListStaleReleases(ctx context.Context, before time.Time) ([]model.PackageRelease, error)
}

type BuildRepository interface {
	// CreateBuild inserts a pending build and points its release at it.
	CreateBuild(ctx context.Context, build *model.PackageBuild) error
	GetBuildByID(ctx context.Context, id string) (*model.PackageBuild, error)
	ListBuilds(ctx context.Context, releaseID string) ([]model.PackageBuild, error)
	// UpdateBuild stores status and logs and mirrors them onto the release
	// when this build is the release's latest one.
	UpdateBuild(ctx context.Context, build *model.PackageBuild) error
}

type FileRepository interface {
	CreateFile(ctx context.Context, file *model.PackageFile) error
	// UpsertFile creates or replaces the file at file.FilePath and reports
	// whether a new row was inserted.
	UpsertFile(ctx context.Context, file *model.PackageFile) (bool, error)
	GetFileByID(ctx context.Context, id string) (*model.PackageFile, error)
	GetFileByPath(ctx context.Context, releaseID, path string) (*model.PackageFile, error)
	ListFiles(ctx context.Context, releaseID string) ([]model.PackageFile, error)
	DeleteFile(ctx context.Context, releaseID, path string) error
}

// DomainFilter holds the ANDed filters of the domain list endpoint.
type DomainFilter struct {
	PackageID        string
	PackageReleaseID string
	PackageBuildID   string
	Limit            int
}

type DomainRepository interface {
	CreateDomain(ctx context.Context, domain *model.PackageDomain) error
	GetDomainByID(ctx context.Context, id string) (*model.PackageDomain, error)
	UpdateDomain(ctx context.Context, domain *model.PackageDomain) error
	ListDomains(ctx context.Context, filter DomainFilter) ([]model.PackageDomain, error)
}
