package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
	"github.com/paygo-service/paygo_service/internal/infrastructure/database"
	"github.com/paygo-service/paygo_service/pkg/tracing"
)

// OrderRepository handles order persistence and finalization
type OrderRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sqlx.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// CreatePending inserts a new order in pending status. A reference that has
// already been used trips the unique constraint and surfaces as a duplicate
// key error, which is the backstop against double submission.
func (r *OrderRepository) CreatePending(ctx context.Context, order *entities.Order) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "INSERT", Table: "orders"})

	query := `
		INSERT INTO orders (
			id, reference, account_id, order_type, vendor, service_id, beneficiary,
			amount, status, previous_balance, current_balance, created_at, updated_at
		) VALUES (
			:id, :reference, :account_id, :order_type, :vendor, :service_id, :beneficiary,
			:amount, :status, :previous_balance, :current_balance, :created_at, :updated_at
		)
	`

	now := time.Now()
	order.Status = entities.OrderStatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, query, order)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		if isUniqueViolation(err) {
			return derrors.DuplicateKeyError("reference", order.Reference)
		}
		r.logger.Error("failed to create order",
			zap.Error(err),
			zap.String("reference", order.Reference),
		)
		return fmt.Errorf("failed to create order: %w", err)
	}

	tracing.EndDBSpan(span, nil, 1)
	return nil
}

// MarkProcessing moves a pending order to processing when the vendor outcome
// is ambiguous. Moving out of pending records that a vendor attempt happened.
func (r *OrderRepository) MarkProcessing(ctx context.Context, reference string, vendorRef *string) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "orders"})

	query := `
		UPDATE orders
		SET status = $2, vendor_ref = COALESCE($3, vendor_ref), updated_at = $4
		WHERE reference = $1 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		reference, entities.OrderStatusProcessing, vendorRef, time.Now(), entities.OrderStatusPending,
	)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		return fmt.Errorf("failed to mark order processing: %w", err)
	}

	rows, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rows)
	if rows == 0 {
		return derrors.AlreadyFinalizedError(reference)
	}
	return nil
}

// Finalize moves an order to a terminal status with a compare-and-set on the
// current status. Exactly one caller wins when requery, webhook, and the
// reconciliation sweep race; everyone else gets AlreadyFinalized.
func (r *OrderRepository) Finalize(ctx context.Context, reference string, status entities.OrderStatus, currentBalance decimal.Decimal, vendorRef, failureReason *string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}

	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "orders"})

	query := `
		UPDATE orders
		SET status = $2,
		    current_balance = $3,
		    vendor_ref = COALESCE($4, vendor_ref),
		    failure_reason = $5,
		    finalized_at = $6,
		    updated_at = $6
		WHERE reference = $1 AND status IN ($7, $8)
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		reference, status, currentBalance, vendorRef, failureReason, now,
		entities.OrderStatusPending, entities.OrderStatusProcessing,
	)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		r.logger.Error("failed to finalize order",
			zap.Error(err),
			zap.String("reference", reference),
			zap.String("status", string(status)),
		)
		return fmt.Errorf("failed to finalize order: %w", err)
	}

	rows, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rows)
	if rows == 0 {
		return derrors.AlreadyFinalizedError(reference)
	}

	r.logger.Info("order finalized",
		zap.String("reference", reference),
		zap.String("status", string(status)),
	)
	return nil
}

// FinalizeWithRelease moves an order to failed and restores the reserved
// funds in one transaction. The compare-and-set guards the release: only the
// caller that wins the transition credits the account, and a crash can never
// leave a failed order with the debit still applied.
func (r *OrderRepository) FinalizeWithRelease(ctx context.Context, order *entities.Order, failureReason *string) (current decimal.Decimal, err error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "UPDATE", Table: "orders"})
	defer func() { tracing.EndDBSpan(span, err, -1) }()

	err = database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		fail := `
			UPDATE orders
			SET status = $2,
			    current_balance = $3,
			    failure_reason = $4,
			    finalized_at = $5,
			    updated_at = $5
			WHERE reference = $1 AND status IN ($6, $7)
		`

		now := time.Now()
		result, txErr := tx.ExecContext(ctx, fail,
			order.Reference, entities.OrderStatusFailed, order.PreviousBalance, failureReason, now,
			entities.OrderStatusPending, entities.OrderStatusProcessing,
		)
		if txErr != nil {
			return fmt.Errorf("failed to finalize order: %w", txErr)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return derrors.AlreadyFinalizedError(order.Reference)
		}

		credit := `
			UPDATE accounts
			SET balance = balance + $2, version = version + 1, updated_at = $3
			WHERE id = $1
			RETURNING balance
		`

		txErr = tx.QueryRowxContext(ctx, credit, order.AccountID, order.Amount, now).Scan(&current)
		if txErr != nil {
			if errors.Is(txErr, sql.ErrNoRows) {
				return derrors.NotFoundError("account")
			}
			return fmt.Errorf("failed to release funds: %w", txErr)
		}

		return insertLedgerEntry(ctx, tx, &entities.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    order.AccountID,
			Delta:        order.Amount,
			BalanceAfter: current,
			OrderID:      &order.ID,
			EntryType:    entities.EntryTypeRelease,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	r.logger.Info("order failed and reservation released",
		zap.String("reference", order.Reference),
		zap.String("account_id", order.AccountID.String()),
		zap.String("amount", order.Amount.String()),
	)
	return current, nil
}

// GetByReference retrieves an order by its client reference
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*entities.Order, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "orders"})

	order := &entities.Order{}
	err := r.db.GetContext(ctx, order, `SELECT * FROM orders WHERE reference = $1`, reference)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, derrors.NotFoundError("order")
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	tracing.EndDBSpan(span, nil, 1)
	return order, nil
}

// GetByVendorRef retrieves an order by the vendor's transaction reference
func (r *OrderRepository) GetByVendorRef(ctx context.Context, vendorRef string) (*entities.Order, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "orders"})

	order := &entities.Order{}
	err := r.db.GetContext(ctx, order, `SELECT * FROM orders WHERE vendor_ref = $1`, vendorRef)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, derrors.NotFoundError("order")
		}
		return nil, fmt.Errorf("failed to get order by vendor ref: %w", err)
	}

	tracing.EndDBSpan(span, nil, 1)
	return order, nil
}

// LatestForAccount returns the most recent purchase order for an account, or
// nil when none exists. The duplicate guard uses it as the fallback check
// when the cache is unavailable.
func (r *OrderRepository) LatestForAccount(ctx context.Context, accountID uuid.UUID) (*entities.Order, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "orders"})

	query := `
		SELECT * FROM orders
		WHERE account_id = $1 AND order_type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	order := &entities.Order{}
	err := r.db.GetContext(ctx, order, query, accountID, entities.OrderTypePurchase)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest order: %w", err)
	}

	tracing.EndDBSpan(span, nil, 1)
	return order, nil
}

// ListUnsettled returns non-terminal orders created before the cutoff, oldest
// first. The reconciliation sweep feeds on this.
func (r *OrderRepository) ListUnsettled(ctx context.Context, before time.Time, limit int) ([]entities.Order, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: "orders"})

	query := `
		SELECT * FROM orders
		WHERE status IN ($1, $2) AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`

	orders := []entities.Order{}
	err := r.db.SelectContext(ctx, &orders, query,
		entities.OrderStatusPending, entities.OrderStatusProcessing, before, limit,
	)
	if err != nil {
		tracing.EndDBSpan(span, err, 0)
		return nil, fmt.Errorf("failed to list unsettled orders: %w", err)
	}

	tracing.EndDBSpan(span, nil, int64(len(orders)))
	return orders, nil
}

// CountUnsettled returns the number of non-terminal orders older than the
// cutoff, used for the stale-order gauge
func (r *OrderRepository) CountUnsettled(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM orders WHERE status IN ($1, $2) AND created_at < $3`,
		entities.OrderStatusPending, entities.OrderStatusProcessing, before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsettled orders: %w", err)
	}
	return count, nil
}
