package client

import (
	"context"
	"net/url"

	"github.com/sakif/circuitpad/internal/model"
)

// DomainQuery holds the optional, ANDed filters of /package_domains/list.
type DomainQuery struct {
	PackageID        string
	PackageReleaseID string
	PackageBuildID   string
}

type CreateDomainRequest struct {
	PackageID                string             `json:"package_id"`
	PointsTo                 model.DomainTarget `json:"points_to"`
	PackageReleaseID         string             `json:"package_release_id,omitempty"`
	Tag                      string             `json:"tag,omitempty"`
	FullyQualifiedDomainName string             `json:"fully_qualified_domain_name"`
}

type UpdateDomainRequest struct {
	PackageDomainID  string             `json:"package_domain_id"`
	PointsTo         model.DomainTarget `json:"points_to,omitempty"`
	PackageReleaseID string             `json:"package_release_id,omitempty"`
	Tag              string             `json:"tag,omitempty"`
}

func (c *Client) ListDomains(ctx context.Context, dq DomainQuery) ([]model.PublicPackageDomain, error) {
	q := url.Values{}
	setIf(q, "package_id", dq.PackageID)
	setIf(q, "package_release_id", dq.PackageReleaseID)
	setIf(q, "package_build_id", dq.PackageBuildID)
	var domains []model.PublicPackageDomain
	if err := c.get(ctx, "/package_domains/list", q, "package_domains", &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

func (c *Client) CreateDomain(ctx context.Context, req CreateDomainRequest) (*model.PublicPackageDomain, error) {
	var d model.PublicPackageDomain
	if err := c.post(ctx, "/package_domains/create", req, "package_domain", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) UpdateDomain(ctx context.Context, req UpdateDomainRequest) (*model.PublicPackageDomain, error) {
	var d model.PublicPackageDomain
	if err := c.post(ctx, "/package_domains/update", req, "package_domain", &d); err != nil {
		return nil, err
	}
	return &d, nil
}
