package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
	"github.com/paygo-service/paygo_service/internal/infrastructure/database"
	"github.com/paygo-service/paygo_service/pkg/tracing"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// AccountRepository handles wallet account and ledger persistence
type AccountRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an account by its identifier
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "accounts"})

	query := `
		SELECT id, email, balance, currency, version, low_balance_threshold, pin_hash, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	account := &entities.Account{}
	err := r.db.GetContext(ctx, account, query, id)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, derrors.NotFoundError("account")
		}
		r.logger.Error("failed to get account",
			zap.Error(err),
			zap.String("account_id", id.String()),
		)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	tracing.EndDBSpan(span, nil, 1)
	return account, nil
}

// Reserve atomically debits the account when the balance covers the amount
// and appends a reserve ledger entry in the same transaction. The conditional
// UPDATE is the single serialization point for concurrent debits, so the
// balance can never go negative.
func (r *AccountRepository) Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (previous, current decimal.Decimal, err error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "accounts"})
	defer func() { tracing.EndDBSpan(span, err, -1) }()

	err = database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		debit := `
			UPDATE accounts
			SET balance = balance - $2, version = version + 1, updated_at = $3
			WHERE id = $1 AND balance >= $2
			RETURNING balance
		`

		txErr := tx.QueryRowxContext(ctx, debit, accountID, amount, time.Now()).Scan(&current)
		if txErr != nil {
			if errors.Is(txErr, sql.ErrNoRows) {
				return r.classifyReserveFailure(ctx, tx, accountID, amount)
			}
			return fmt.Errorf("failed to reserve funds: %w", txErr)
		}
		previous = current.Add(amount)

		return insertLedgerEntry(ctx, tx, &entities.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    accountID,
			Delta:        amount.Neg(),
			BalanceAfter: current,
			OrderID:      &orderID,
			EntryType:    entities.EntryTypeReserve,
		})
	})
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return previous, current, nil
}

// classifyReserveFailure distinguishes a missing account from a balance shortfall
func (r *AccountRepository) classifyReserveFailure(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, amount decimal.Decimal) error {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `SELECT balance FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return derrors.NotFoundError("account")
		}
		return fmt.Errorf("failed to inspect account balance: %w", err)
	}
	return derrors.InsufficientFundsError(balance.String(), amount.String())
}

// Release credits a prior reservation back to the account after a definitive
// vendor rejection and appends a release ledger entry
func (r *AccountRepository) Release(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (current decimal.Decimal, err error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "accounts"})
	defer func() { tracing.EndDBSpan(span, err, -1) }()

	err = database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		credit := `
			UPDATE accounts
			SET balance = balance + $2, version = version + 1, updated_at = $3
			WHERE id = $1
			RETURNING balance
		`

		txErr := tx.QueryRowxContext(ctx, credit, accountID, amount, time.Now()).Scan(&current)
		if txErr != nil {
			if errors.Is(txErr, sql.ErrNoRows) {
				return derrors.NotFoundError("account")
			}
			return fmt.Errorf("failed to release funds: %w", txErr)
		}

		return insertLedgerEntry(ctx, tx, &entities.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    accountID,
			Delta:        amount,
			BalanceAfter: current,
			OrderID:      &orderID,
			EntryType:    entities.EntryTypeRelease,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	r.logger.Info("reservation released",
		zap.String("account_id", accountID.String()),
		zap.String("amount", amount.String()),
		zap.String("order_id", orderID.String()),
	)
	return current, nil
}

// CreditExternal applies a confirmed external funding credit exactly once.
// The unique index on ledger_entries.source_reference rejects replays, and
// because the balance update shares the transaction a replay leaves the
// balance untouched.
func (r *AccountRepository) CreditExternal(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, sourceReference string) (current decimal.Decimal, err error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "ledger_entries"})
	defer func() { tracing.EndDBSpan(span, err, -1) }()

	err = database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		credit := `
			UPDATE accounts
			SET balance = balance + $2, version = version + 1, updated_at = $3
			WHERE id = $1
			RETURNING balance
		`

		txErr := tx.QueryRowxContext(ctx, credit, accountID, amount, time.Now()).Scan(&current)
		if txErr != nil {
			if errors.Is(txErr, sql.ErrNoRows) {
				return derrors.NotFoundError("account")
			}
			return fmt.Errorf("failed to credit account: %w", txErr)
		}

		entryErr := insertLedgerEntry(ctx, tx, &entities.LedgerEntry{
			ID:              uuid.New(),
			AccountID:       accountID,
			Delta:           amount,
			BalanceAfter:    current,
			EntryType:       entities.EntryTypeExternalCredit,
			SourceReference: &sourceReference,
		})
		if entryErr != nil {
			if isUniqueViolation(entryErr) {
				return derrors.DuplicateKeyError("source_reference", sourceReference)
			}
			return entryErr
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	r.logger.Info("external credit applied",
		zap.String("account_id", accountID.String()),
		zap.String("amount", amount.String()),
		zap.String("source_reference", sourceReference),
	)
	return current, nil
}

// ListEntries returns the most recent ledger entries for an account
func (r *AccountRepository) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]entities.LedgerEntry, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "ledger_entries"})

	query := `
		SELECT id, account_id, delta, balance_after, order_id, entry_type, source_reference, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	entries := []entities.LedgerEntry{}
	err := r.db.SelectContext(ctx, &entries, query, accountID, limit)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	tracing.EndDBSpan(span, nil, int64(len(entries)))
	return entries, nil
}

// insertLedgerEntry appends an entry inside the caller's transaction. Shared
// with the order repository so a finalize and its release can commit together.
func insertLedgerEntry(ctx context.Context, tx *sqlx.Tx, entry *entities.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, account_id, delta, balance_after, order_id, entry_type, source_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.ExecContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Delta,
		entry.BalanceAfter,
		entry.OrderID,
		entry.EntryType,
		entry.SourceReference,
		time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}
