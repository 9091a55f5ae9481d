package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/auth"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

// MinPasswordLength applies to password accounts only.
const MinPasswordLength = 8

// AccountService registers accounts and opens sessions for them.
//
//	handler → AccountService → AccountRepository
//	                         ↘ TokenService, PasswordService
type AccountService struct {
	accounts  repository.AccountRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAccountService(
	accounts repository.AccountRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// Session is an account plus a freshly issued token for it.
type Session struct {
	Account *model.Account `json:"account"`
	Token   string         `json:"token"`
}

// Register creates a password account. Handles share the package name rules
// because they become the owner half of "owner/name".
func (s *AccountService) Register(ctx context.Context, handle, password string) (*model.Account, error) {
	handle = strings.TrimSpace(handle)
	if err := validateName("handle", handle); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	account := &model.Account{Handle: handle, PasswordHash: hash}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create account", slog.String("handle", handle), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating account: %w", err)
	}

	s.logger.Info("account registered", slog.String("accountID", account.ID), slog.String("handle", handle))
	return account, nil
}

// Login checks a handle/password pair. Unknown handles and wrong passwords
// produce the same Unauthorized error.
func (s *AccountService) Login(ctx context.Context, handle, password string) (*Session, error) {
	invalid := apperror.Unauthorized("invalid handle or password")

	account, err := s.accounts.GetAccountByHandle(ctx, strings.TrimSpace(handle))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if account.PasswordHash == "" {
		return nil, invalid
	}
	if err := s.passwords.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("failed login", slog.String("handle", account.Handle))
			return nil, invalid
		}
		return nil, fmt.Errorf("verifying password: %w", err)
	}

	return s.issue(account)
}

// LoginOrRegisterGitHub upserts the account linked to a GitHub profile and
// opens a session for it.
func (s *AccountService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*Session, error) {
	if gh == nil {
		return nil, errors.New("service: GitHub user must not be nil")
	}

	account := &model.Account{
		GitHubID:  gh.ID,
		Handle:    gh.Login,
		Email:     gh.Email,
		AvatarURL: gh.AvatarURL,
	}
	if err := s.accounts.UpsertGitHubAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("upserting GitHub account %d: %w", gh.ID, err)
	}

	s.logger.Info("account authenticated via GitHub",
		slog.String("accountID", account.ID),
		slog.String("handle", account.Handle),
	)
	return s.issue(account)
}

func (s *AccountService) issue(account *model.Account) (*Session, error) {
	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token for %s: %w", account.ID, err)
	}
	return &Session{Account: account, Token: token}, nil
}

// Get returns an account by ID.
func (s *AccountService) Get(ctx context.Context, id string) (*model.Account, error) {
	id, err := requireID("account_id", id)
	if err != nil {
		return nil, err
	}
	return s.accounts.GetAccountByID(ctx, id)
}
