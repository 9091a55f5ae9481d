// Package service holds the registry's business rules.
//
// Handlers parse HTTP and services decide: validation, ownership, visibility
// and orchestration across repositories all live here, so the same rules
// apply whether a call comes from an HTTP handler, a build worker or a cron
// job. Services depend on the repository interfaces only; tests pass the
// in-memory fakes from fakes_test.go.
//
//	main.go builds:  sqlite.DB → services → handlers
//	at runtime:      handler → service → repository
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

// Validation limits.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 1000
	MaxFilePathLength    = 255
	MaxFileBytes         = 1 << 20
)

// namePattern accepts the characters npm allows in an unscoped package name.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// BuildScheduler queues a new build of a release. BuildService implements it;
// package and release services use it without knowing about workers.
type BuildScheduler interface {
	Schedule(ctx context.Context, releaseID string) (*model.PackageBuild, error)
}

// access answers "may this account see / change this package".
type access struct {
	orgs repository.OrgRepository
}

// canModify: the creator owns a personal package; every member of the
// owning org owns an org package.
func (a access) canModify(ctx context.Context, pkg *model.Package, accountID string) (bool, error) {
	if accountID == "" {
		return false, nil
	}
	if pkg.OwnerOrgID == "" {
		return pkg.CreatorAccountID == accountID, nil
	}
	org, err := a.orgs.GetOrgByID(ctx, pkg.OwnerOrgID)
	if err != nil {
		return false, fmt.Errorf("loading owner org %s: %w", pkg.OwnerOrgID, err)
	}
	return org.HasMember(accountID), nil
}

// visible hides private packages from everyone who cannot modify them.
// A hidden package is reported as not found rather than forbidden so its
// existence does not leak.
func (a access) visible(ctx context.Context, pkg *model.Package, accountID string) error {
	if !pkg.IsPrivate {
		return nil
	}
	ok, err := a.canModify(ctx, pkg, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NotFound("package", pkg.ID)
	}
	return nil
}

// mustModify returns Forbidden unless accountID may change pkg.
func (a access) mustModify(ctx context.Context, pkg *model.Package, accountID string) error {
	if err := a.visible(ctx, pkg, accountID); err != nil {
		return err
	}
	ok, err := a.canModify(ctx, pkg, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden("you do not have permission to modify this package")
	}
	return nil
}

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	return value, nil
}

func validateName(field, name string) error {
	switch {
	case name == "":
		return apperror.ValidationFailed(field, field+" is required")
	case len(name) > MaxNameLength:
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be %d characters or less", field, MaxNameLength))
	case !namePattern.MatchString(name):
		return apperror.ValidationFailed(field, field+" may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}
