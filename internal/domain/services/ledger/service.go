// Package ledger exposes wallet balance operations on top of the
// append-only ledger. Every mutation goes through the account store's
// transactional primitives; this layer adds credential checks and
// notification fan-out.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
	"github.com/paygo-service/paygo_service/pkg/logger"
)

// AccountStore is the persistence contract the ledger service depends on
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
	Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (previous, current decimal.Decimal, err error)
	Release(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (decimal.Decimal, error)
	CreditExternal(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, sourceReference string) (decimal.Decimal, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]entities.LedgerEntry, error)
}

// Service coordinates wallet reads and mutations
type Service struct {
	accounts AccountStore
	logger   *logger.Logger
}

// NewService creates a new ledger service
func NewService(accounts AccountStore, log *logger.Logger) *Service {
	return &Service{
		accounts: accounts,
		logger:   log,
	}
}

// GetAccount returns the current account record
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

// Balance returns the wallet balance payload for an account
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (*entities.BalanceResponse, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &entities.BalanceResponse{
		AccountID: account.ID.String(),
		Balance:   account.Balance.String(),
		Currency:  account.Currency,
	}, nil
}

// Statement returns the most recent ledger entries for an account
func (s *Service) Statement(ctx context.Context, accountID uuid.UUID, limit int) ([]entities.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.accounts.ListEntries(ctx, accountID, limit)
}

// VerifyPIN checks the transaction PIN against the stored hash
func (s *Service) VerifyPIN(ctx context.Context, accountID uuid.UUID, pin string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PINHash), []byte(pin)); err != nil {
		s.logger.Warn("transaction pin mismatch", "account_id", accountID.String())
		return derrors.IncorrectCredentialError()
	}
	return nil
}

// Reserve debits the account for a purchase and reports both balances
func (s *Service) Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (previous, current decimal.Decimal, err error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, derrors.ValidationError("amount", "amount must be positive")
	}
	return s.accounts.Reserve(ctx, accountID, amount, orderID)
}

// Release returns reserved funds after a definitive vendor rejection
func (s *Service) Release(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (decimal.Decimal, error) {
	return s.accounts.Release(ctx, accountID, amount, orderID)
}

// CreditExternal applies an external funding credit keyed by the vendor's
// source reference so replayed webhooks cannot credit twice
func (s *Service) CreditExternal(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, sourceReference string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, derrors.ValidationError("amount", "amount must be positive")
	}
	return s.accounts.CreditExternal(ctx, accountID, amount, sourceReference)
}

// IsBelowThreshold reports whether the balance has crossed the account's
// low-balance alert line
func (s *Service) IsBelowThreshold(account *entities.Account, balance decimal.Decimal) bool {
	if account.LowBalanceThreshold.IsZero() {
		return false
	}
	return balance.LessThan(account.LowBalanceThreshold)
}
