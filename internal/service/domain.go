package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

// hostnamePattern is an RFC 1123 hostname with at least two labels.
var hostnamePattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// idPattern bounds what a filter ID may look like before it reaches SQL.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// DomainService manages the subdomains packages are served on.
type DomainService struct {
	domains  repository.DomainRepository
	resolver releaseResolver
	logger   *slog.Logger
}

func NewDomainService(
	domains repository.DomainRepository,
	packages repository.PackageRepository,
	releases repository.ReleaseRepository,
	orgs repository.OrgRepository,
	logger *slog.Logger,
) *DomainService {
	return &DomainService{
		domains:  domains,
		resolver: releaseResolver{packages: packages, releases: releases, access: access{orgs: orgs}},
		logger:   logger,
	}
}

// DomainQuery holds the optional filters of /package_domains/list.
type DomainQuery struct {
	PackageID        string
	PackageReleaseID string
	PackageBuildID   string
}

// List returns at most repository.MaxListLimit domains matching every given
// filter, newest first, with private fields stripped. The only error a caller
// can cause is a malformed filter.
func (s *DomainService) List(ctx context.Context, q DomainQuery) ([]model.PublicPackageDomain, error) {
	filter := repository.DomainFilter{Limit: repository.MaxListLimit}
	for _, f := range []struct {
		name  string
		value string
		dst   *string
	}{
		{"package_id", q.PackageID, &filter.PackageID},
		{"package_release_id", q.PackageReleaseID, &filter.PackageReleaseID},
		{"package_build_id", q.PackageBuildID, &filter.PackageBuildID},
	} {
		if f.value == "" {
			continue
		}
		if !idPattern.MatchString(f.value) {
			return nil, apperror.InvalidQuery(f.name, fmt.Sprintf("%s is not a valid id", f.name))
		}
		*f.dst = f.value
	}

	domains, err := s.domains.ListDomains(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list domains", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing domains: %w", err)
	}

	out := make([]model.PublicPackageDomain, 0, len(domains))
	for i := range domains {
		out = append(out, domains[i].Public())
	}
	return out, nil
}

// DomainInput is the body of /package_domains/create and /update.
type DomainInput struct {
	PackageID                string
	PointsTo                 model.DomainTarget
	PackageReleaseID         string
	Tag                      string
	FullyQualifiedDomainName string
}

// Create registers a domain for a package the actor can modify.
func (s *DomainService) Create(ctx context.Context, actorID string, in DomainInput) (*model.PublicPackageDomain, error) {
	packageID, err := requireID("package_id", in.PackageID)
	if err != nil {
		return nil, err
	}
	fqdn := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(in.FullyQualifiedDomainName), "."))
	if !hostnamePattern.MatchString(fqdn) || len(fqdn) > 253 {
		return nil, apperror.ValidationFailed("fully_qualified_domain_name", "not a valid domain name")
	}

	pkg, err := s.resolver.packages.GetPackageByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.access.mustModify(ctx, pkg, actorID); err != nil {
		return nil, err
	}

	d := &model.PackageDomain{
		PackageID:                pkg.ID,
		FullyQualifiedDomainName: fqdn,
		CreatorAccountID:         actorID,
		VerificationToken:        uuid.NewString(),
	}
	if err := s.point(ctx, d, in); err != nil {
		return nil, err
	}

	if err := s.domains.CreateDomain(ctx, d); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("creating domain: %w", err)
	}
	s.logger.Info("domain created", slog.String("fqdn", fqdn), slog.String("package", pkg.Name()))
	pub := d.Public()
	return &pub, nil
}

// Update repoints an existing domain.
func (s *DomainService) Update(ctx context.Context, actorID, id string, in DomainInput) (*model.PublicPackageDomain, error) {
	id, err := requireID("package_domain_id", id)
	if err != nil {
		return nil, err
	}
	d, err := s.domains.GetDomainByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pkg, err := s.resolver.packages.GetPackageByID(ctx, d.PackageID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.access.mustModify(ctx, pkg, actorID); err != nil {
		return nil, err
	}

	if in.PointsTo == "" {
		in.PointsTo = d.PointsTo
	}
	if in.PackageReleaseID == "" && in.PointsTo == model.PointsToPackageRelease {
		in.PackageReleaseID = d.PackageReleaseID
	}
	if in.Tag == "" && in.PointsTo == model.PointsToPackageReleaseWithTag {
		in.Tag = d.Tag
	}
	if err := s.point(ctx, d, in); err != nil {
		return nil, err
	}

	if err := s.domains.UpdateDomain(ctx, d); err != nil {
		return nil, fmt.Errorf("updating domain: %w", err)
	}
	s.logger.Info("domain updated", slog.String("fqdn", d.FullyQualifiedDomainName), slog.String("pointsTo", string(d.PointsTo)))
	pub := d.Public()
	return &pub, nil
}

// point validates the target of in and writes it onto d. A package_release
// target needs a release of the same package; a tagged target needs a tag.
func (s *DomainService) point(ctx context.Context, d *model.PackageDomain, in DomainInput) error {
	if !in.PointsTo.Valid() {
		return apperror.ValidationFailed("points_to", fmt.Sprintf("unknown target %q", in.PointsTo))
	}
	d.PointsTo = in.PointsTo
	d.PackageReleaseID, d.PackageBuildID, d.Tag = "", "", ""

	switch in.PointsTo {
	case model.PointsToPackageRelease:
		releaseID := strings.TrimSpace(in.PackageReleaseID)
		if releaseID == "" {
			return apperror.ValidationFailed("package_release_id", "package_release_id is required when points_to is package_release")
		}
		release, err := s.resolver.releases.GetReleaseByID(ctx, releaseID)
		if err != nil {
			return err
		}
		if release.PackageID != d.PackageID {
			return apperror.ValidationFailed("package_release_id", "release belongs to a different package")
		}
		d.PackageReleaseID = release.ID
		d.PackageBuildID = release.LatestPackageBuildID
	case model.PointsToPackageReleaseWithTag:
		tag := strings.TrimSpace(in.Tag)
		if tag == "" {
			return apperror.ValidationFailed("tag", "tag is required when points_to is package_release_with_tag")
		}
		d.Tag = tag
	}
	return nil
}
