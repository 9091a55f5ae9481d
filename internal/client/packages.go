package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/sakif/circuitpad/internal/model"
)

// PackageRef names a package by ID or by "owner/name".
type PackageRef struct {
	ID   string
	Name string
}

// FileInput is a file sent along with a new package.
type FileInput struct {
	FilePath      string `json:"file_path"`
	ContentText   string `json:"content_text,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
}

type CreatePackageRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Website     string            `json:"website,omitempty"`
	License     string            `json:"license,omitempty"`
	IsPrivate   bool              `json:"is_private,omitempty"`
	Type        model.PackageType `json:"type,omitempty"`
	DefaultView string            `json:"default_view,omitempty"`
	OrgID       string            `json:"org_id,omitempty"`
	Files       []FileInput       `json:"files,omitempty"`
}

// UpdatePackageRequest changes only the non-nil fields.
type UpdatePackageRequest struct {
	PackageID          string             `json:"package_id"`
	Name               *string            `json:"name,omitempty"`
	Description        *string            `json:"description,omitempty"`
	Website            *string            `json:"website,omitempty"`
	License            *string            `json:"license,omitempty"`
	IsPrivate          *bool              `json:"is_private,omitempty"`
	Type               *model.PackageType `json:"type,omitempty"`
	DefaultView        *string            `json:"default_view,omitempty"`
	GitHubRepoFullName *string            `json:"github_repo_full_name,omitempty"`
}

// ListPackagesQuery filters /packages/list.
type ListPackagesQuery struct {
	OwnerHandle string
	IsStarred   bool
	Limit       int
}

type packageID struct {
	PackageID string `json:"package_id"`
}

func (c *Client) GetPackage(ctx context.Context, ref PackageRef) (*model.Package, error) {
	q := url.Values{}
	setIf(q, "package_id", ref.ID)
	setIf(q, "name", ref.Name)
	var pkg model.Package
	if err := c.get(ctx, "/packages/get", q, "package", &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) CreatePackage(ctx context.Context, req CreatePackageRequest) (*model.Package, error) {
	var pkg model.Package
	if err := c.post(ctx, "/packages/create", req, "package", &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) UpdatePackage(ctx context.Context, req UpdatePackageRequest) (*model.Package, error) {
	var pkg model.Package
	if err := c.post(ctx, "/packages/update", req, "package", &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) DeletePackage(ctx context.Context, id string) error {
	return c.post(ctx, "/packages/delete", packageID{id}, "", nil)
}

// ForkPackage copies the package under the caller. Forking your own
// package fails with the cannot_fork_own_package code.
func (c *Client) ForkPackage(ctx context.Context, id string) (*model.Package, error) {
	var pkg model.Package
	if err := c.post(ctx, "/packages/fork", packageID{id}, "package", &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) SearchPackages(ctx context.Context, query string, limit int) ([]model.Package, error) {
	q := url.Values{"query": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var pkgs []model.Package
	if err := c.get(ctx, "/packages/search", q, "packages", &pkgs); err != nil {
		return nil, err
	}
	return pkgs, nil
}

func (c *Client) ListPackages(ctx context.Context, lq ListPackagesQuery) ([]model.Package, error) {
	q := url.Values{}
	setIf(q, "owner_github_username", lq.OwnerHandle)
	if lq.IsStarred {
		q.Set("is_starred", "true")
	}
	if lq.Limit > 0 {
		q.Set("limit", strconv.Itoa(lq.Limit))
	}
	var pkgs []model.Package
	if err := c.get(ctx, "/packages/list", q, "packages", &pkgs); err != nil {
		return nil, err
	}
	return pkgs, nil
}

func (c *Client) StarPackage(ctx context.Context, id string) (*model.Package, error) {
	var pkg model.Package
	if err := c.post(ctx, "/packages/add_star", packageID{id}, "package", &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) UnstarPackage(ctx context.Context, id string) (*model.Package, error) {
	var pkg model.Package
	if err := c.post(ctx, "/packages/remove_star", packageID{id}, "package", &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (c *Client) TransferPackage(ctx context.Context, id, orgID string) (*model.Package, error) {
	var pkg model.Package
	body := map[string]string{"package_id": id, "target_org_id": orgID}
	if err := c.post(ctx, "/packages/transfer", body, "package", &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}
