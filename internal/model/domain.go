package model

import "time"

// DomainTarget is what a package domain resolves to.
type DomainTarget string

const (
	PointsToPackage               DomainTarget = "package"
	PointsToPackageRelease        DomainTarget = "package_release"
	PointsToPackageReleaseWithTag DomainTarget = "package_release_with_tag"
)

// Valid reports whether t is a known target kind.
func (t DomainTarget) Valid() bool {
	switch t {
	case PointsToPackage, PointsToPackageRelease, PointsToPackageReleaseWithTag:
		return true
	}
	return false
}

// PackageDomain maps a fully qualified subdomain onto a package, a release,
// or a tagged release. CreatorAccountID and VerificationToken never leave the
// server; see PublicPackageDomain.
type PackageDomain struct {
	ID                       string
	PackageID                string
	PointsTo                 DomainTarget
	PackageReleaseID         string
	PackageBuildID           string
	Tag                      string
	FullyQualifiedDomainName string
	CreatorAccountID         string
	VerificationToken        string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// PublicPackageDomain is the API view of a PackageDomain.
type PublicPackageDomain struct {
	ID                       string       `json:"package_domain_id"`
	PackageID                string       `json:"package_id"`
	PointsTo                 DomainTarget `json:"points_to"`
	PackageReleaseID         string       `json:"package_release_id,omitempty"`
	PackageBuildID           string       `json:"package_build_id,omitempty"`
	Tag                      string       `json:"tag,omitempty"`
	FullyQualifiedDomainName string       `json:"fully_qualified_domain_name"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
}

// Public strips the private fields.
func (d *PackageDomain) Public() PublicPackageDomain {
	return PublicPackageDomain{
		ID:                       d.ID,
		PackageID:                d.PackageID,
		PointsTo:                 d.PointsTo,
		PackageReleaseID:         d.PackageReleaseID,
		PackageBuildID:           d.PackageBuildID,
		Tag:                      d.Tag,
		FullyQualifiedDomainName: d.FullyQualifiedDomainName,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
	}
}
