package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountLookup resolves accounts by code.
type AccountLookup interface {
	GetByCode(ctx context.Context, code string) (accounts.Account, error)
}

// Service reads key/value configuration and resolves system accounts.
type Service struct {
	repo     Repository
	accounts AccountLookup
}

func NewService(repo Repository, lookup AccountLookup) *Service {
	return &Service{repo: repo, accounts: lookup}
}

// GetValue returns the stored value for key, or def when unset or blank.
func (s *Service) GetValue(ctx context.Context, key, def string) (string, error) {
	value, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return def, nil
		}
		return "", fmt.Errorf("settings: get %s: %w", key, err)
	}
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	return strings.TrimSpace(value), nil
}

// FunctionalCurrency returns the ledger's functional currency code.
func (s *Service) FunctionalCurrency(ctx context.Context) (string, error) {
	code, err := s.GetValue(ctx, KeyFunctionalCurrency, DefaultFunctionalCurrency)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(code), nil
}

// ResolveAccount returns the active account configured for role.
func (s *Service) ResolveAccount(ctx context.Context, role Role) (accounts.Account, error) {
	key, fallback, ok := KeyFor(role)
	if !ok {
		return accounts.Account{}, shared.Precondition("settings.resolve", shared.ErrSystemAccountMissing,
			fmt.Sprintf("no account role %q", role))
	}
	code, err := s.GetValue(ctx, key, fallback)
	if err != nil {
		return accounts.Account{}, err
	}
	account, err := s.accounts.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return accounts.Account{}, shared.Precondition("settings.resolve", shared.ErrSystemAccountMissing,
				fmt.Sprintf("%s account %s (setting %s) not found", role, code, key))
		}
		return accounts.Account{}, err
	}
	if !account.IsActive {
		return accounts.Account{}, shared.Precondition("settings.resolve", shared.ErrSystemAccountMissing,
			fmt.Sprintf("%s account %s is inactive", role, code))
	}
	return account, nil
}
