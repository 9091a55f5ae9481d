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

// OrgService manages organizations. Org names share the namespace of
// account handles because both appear as the owner in "owner/name".
type OrgService struct {
	orgs     repository.OrgRepository
	accounts repository.AccountRepository
	logger   *slog.Logger
}

func NewOrgService(orgs repository.OrgRepository, accounts repository.AccountRepository, logger *slog.Logger) *OrgService {
	return &OrgService{orgs: orgs, accounts: accounts, logger: logger}
}

// Create makes a new org owned by actorID.
func (s *OrgService) Create(ctx context.Context, actorID, name string) (*model.Org, error) {
	name = strings.TrimSpace(name)
	if err := validateName("name", name); err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetAccountByHandle(ctx, name); err == nil {
		return nil, apperror.Conflict("org", name)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking handle %s: %w", name, err)
	}

	org := &model.Org{Name: name, OwnerAccountID: actorID}
	if err := s.orgs.CreateOrg(ctx, org); err != nil {
		return nil, fmt.Errorf("creating org: %w", err)
	}
	s.logger.Info("org created", slog.String("orgID", org.ID), slog.String("name", name))
	return org, nil
}

// Get loads an org by ID, or by name when id is empty.
func (s *OrgService) Get(ctx context.Context, id, name string) (*model.Org, error) {
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	switch {
	case id != "":
		return s.orgs.GetOrgByID(ctx, id)
	case name != "":
		return s.orgs.GetOrgByName(ctx, name)
	}
	return nil, apperror.InvalidQuery("org_id", "org_id or name is required")
}

// AddMember adds the account with the given handle. Only members may add members.
func (s *OrgService) AddMember(ctx context.Context, actorID, orgID, handle string) (*model.Org, error) {
	orgID, err := requireID("org_id", orgID)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetOrgByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !org.HasMember(actorID) {
		return nil, apperror.Forbidden("only org members can add members")
	}

	account, err := s.accounts.GetAccountByHandle(ctx, strings.TrimSpace(handle))
	if err != nil {
		return nil, err
	}
	if err := s.orgs.AddOrgMember(ctx, org.ID, account.ID); err != nil {
		return nil, fmt.Errorf("adding org member: %w", err)
	}

	s.logger.Info("org member added", slog.String("orgID", org.ID), slog.String("accountID", account.ID))
	return s.orgs.GetOrgByID(ctx, org.ID)
}
