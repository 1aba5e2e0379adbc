package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service is the chart-of-accounts lookup used by the ledger core.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// GetByID returns the account or shared.ErrAccountNotFound.
func (s *Service) GetByID(ctx context.Context, id int64) (Account, error) {
	if id <= 0 {
		return Account{}, shared.NotFound("accounts.get", shared.ErrAccountNotFound)
	}
	account, err := s.repo.GetByID(ctx, id)
	if IsNotFound(err) {
		return Account{}, shared.NotFound("accounts.get", err, fmt.Sprintf("account %d not found", id))
	}
	return account, err
}

// GetByCode returns the account with the given code or shared.ErrAccountNotFound.
func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Account{}, shared.NotFound("accounts.get_by_code", shared.ErrAccountNotFound)
	}
	account, err := s.repo.GetByCode(ctx, code)
	if IsNotFound(err) {
		return Account{}, shared.NotFound("accounts.get_by_code", err, fmt.Sprintf("account %s not found", code))
	}
	return account, err
}

// IsNotFound reports whether err is a missing-account lookup.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrAccountNotFound)
}
