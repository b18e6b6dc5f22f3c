// Package settlement orchestrates wallet-funded purchases against external
// vendors. The invariant the whole package is built around: reserved funds
// are released only on a definitive vendor rejection. A timeout or transport
// failure is ambiguous and leaves the order processing with funds held until
// a requery, webhook, or the reconciliation sweep resolves it.
package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/metrics"
)

// VendorAdapter is implemented by each vendor integration
type VendorAdapter interface {
	Name() string
	Purchase(ctx context.Context, payload entities.OrderPayload) (*entities.VendorResult, error)
	Requery(ctx context.Context, reference string) (*entities.VendorResult, error)
}

// OrderStore is the order persistence contract
type OrderStore interface {
	CreatePending(ctx context.Context, order *entities.Order) error
	MarkProcessing(ctx context.Context, reference string, vendorRef *string) error
	Finalize(ctx context.Context, reference string, status entities.OrderStatus, currentBalance decimal.Decimal, vendorRef, failureReason *string) error
	FinalizeWithRelease(ctx context.Context, order *entities.Order, failureReason *string) (decimal.Decimal, error)
	GetByReference(ctx context.Context, reference string) (*entities.Order, error)
	GetByVendorRef(ctx context.Context, vendorRef string) (*entities.Order, error)
}

// Ledger is the wallet contract the orchestrator drives
type Ledger interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*entities.Account, error)
	VerifyPIN(ctx context.Context, accountID uuid.UUID, pin string) error
	Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (previous, current decimal.Decimal, err error)
	Release(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (decimal.Decimal, error)
	CreditExternal(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, sourceReference string) (decimal.Decimal, error)
	IsBelowThreshold(account *entities.Account, balance decimal.Decimal) bool
}

// Guard is the duplicate suppression contract
type Guard interface {
	Check(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, beneficiary string) error
	Forget(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, beneficiary string)
}

// Notifier publishes best-effort notification events
type Notifier interface {
	Publish(event entities.NotificationEvent)
}

// Options tunes orchestration behaviour
type Options struct {
	VendorTimeout      time.Duration
	RequeryOnAmbiguous bool
}

// Service coordinates the reserve, vendor call, finalize sequence
type Service struct {
	ledger   Ledger
	orders   OrderStore
	guard    Guard
	adapters map[string]VendorAdapter
	notifier Notifier
	opts     Options
	logger   *logger.Logger
}

// NewService creates a settlement orchestrator
func NewService(ledger Ledger, orders OrderStore, guard Guard, adapters []VendorAdapter, notifier Notifier, opts Options, log *logger.Logger) *Service {
	byName := make(map[string]VendorAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	if opts.VendorTimeout <= 0 {
		opts.VendorTimeout = 30 * time.Second
	}
	return &Service{
		ledger:   ledger,
		orders:   orders,
		guard:    guard,
		adapters: byName,
		notifier: notifier,
		opts:     opts,
		logger:   log,
	}
}

// Purchase runs a wallet-funded purchase end to end: credential check,
// duplicate suppression, atomic reserve, pending order, vendor call, and
// either finalization or compensation depending on how the vendor answered.
func (s *Service) Purchase(ctx context.Context, accountID uuid.UUID, req *entities.PurchaseRequest) (*entities.PurchaseResponse, error) {
	adapter, ok := s.adapters[req.Vendor]
	if !ok {
		return nil, derrors.ValidationError("vendor", "unknown vendor: "+req.Vendor)
	}

	if err := s.ledger.VerifyPIN(ctx, accountID, req.PIN); err != nil {
		return nil, err
	}

	if err := s.guard.Check(ctx, accountID, req.Amount, req.Beneficiary); err != nil {
		return nil, err
	}

	orderID := uuid.New()
	previous, current, err := s.ledger.Reserve(ctx, accountID, req.Amount, orderID)
	if err != nil {
		// Nothing was debited, so the guard claim can be released for a retry
		s.guard.Forget(ctx, accountID, req.Amount, req.Beneficiary)
		return nil, err
	}

	order := &entities.Order{
		ID:              orderID,
		Reference:       req.Reference,
		AccountID:       accountID,
		Type:            entities.OrderTypePurchase,
		Vendor:          req.Vendor,
		ServiceID:       req.ServiceID,
		Beneficiary:     req.Beneficiary,
		Amount:          req.Amount,
		PreviousBalance: previous,
		CurrentBalance:  current,
	}
	if err := s.orders.CreatePending(ctx, order); err != nil {
		// No vendor attempt happened yet; undo the reservation before failing
		if _, relErr := s.ledger.Release(ctx, accountID, req.Amount, orderID); relErr != nil {
			s.logger.Error("failed to release reservation after order create failure",
				"reference", req.Reference,
				"error", relErr,
			)
		}
		s.guard.Forget(ctx, accountID, req.Amount, req.Beneficiary)
		return nil, err
	}

	return s.attemptVendor(ctx, adapter, order)
}

func (s *Service) attemptVendor(ctx context.Context, adapter VendorAdapter, order *entities.Order) (*entities.PurchaseResponse, error) {
	payload := entities.OrderPayload{
		Reference:   order.Reference,
		ServiceID:   order.ServiceID,
		Beneficiary: order.Beneficiary,
		Amount:      order.Amount,
	}

	vctx, cancel := context.WithTimeout(ctx, s.opts.VendorTimeout)
	defer cancel()

	start := time.Now()
	result, err := adapter.Purchase(vctx, payload)
	metrics.VendorRequestDuration.WithLabelValues(order.Vendor, "purchase").Observe(time.Since(start).Seconds())

	switch {
	case err == nil && result.Outcome == entities.VendorOutcomeSuccess:
		return s.settleDelivered(ctx, order, result)

	case err == nil && result.Outcome == entities.VendorOutcomeRejected:
		return s.settleRejected(ctx, order, result.Message)

	default:
		// Timeout, transport failure, or an explicitly ambiguous vendor reply.
		// The debit stands until the true outcome is known.
		return s.settleAmbiguous(ctx, adapter, order, result, err)
	}
}

func (s *Service) settleDelivered(ctx context.Context, order *entities.Order, result *entities.VendorResult) (*entities.PurchaseResponse, error) {
	vendorRef := &result.VendorRef
	if result.VendorRef == "" {
		vendorRef = nil
	}
	if err := s.orders.Finalize(ctx, order.Reference, entities.OrderStatusDelivered, order.CurrentBalance, vendorRef, nil); err != nil {
		if derrors.IsAlreadyFinalized(err) {
			// A concurrent signal settled the order first and already
			// counted and notified it
			return s.responseFromStored(ctx, order.Reference)
		}
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(order.Vendor, string(entities.OrderStatusDelivered)).Inc()
	s.notifySettled(ctx, order, entities.OrderStatusDelivered, order.CurrentBalance, result.Message)

	return &entities.PurchaseResponse{
		Reference:       order.Reference,
		Status:          entities.OrderStatusDelivered,
		PreviousBalance: order.PreviousBalance.String(),
		CurrentBalance:  order.CurrentBalance.String(),
		VendorRef:       result.VendorRef,
		Message:         result.Message,
	}, nil
}

func (s *Service) settleRejected(ctx context.Context, order *entities.Order, reason string) (*entities.PurchaseResponse, error) {
	// The compare-and-set to failed and the compensating release commit in
	// one transaction. Winning the race claims the exclusive right to refund,
	// and a crash can never leave a failed order still holding the debit.
	failureReason := &reason
	balance, err := s.orders.FinalizeWithRelease(ctx, order, failureReason)
	if err != nil {
		if derrors.IsAlreadyFinalized(err) {
			return s.responseFromStored(ctx, order.Reference)
		}
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(order.Vendor, string(entities.OrderStatusFailed)).Inc()
	s.notifySettled(ctx, order, entities.OrderStatusFailed, balance, reason)

	return &entities.PurchaseResponse{
		Reference:       order.Reference,
		Status:          entities.OrderStatusFailed,
		PreviousBalance: order.PreviousBalance.String(),
		CurrentBalance:  balance.String(),
		Message:         reason,
	}, nil
}

func (s *Service) settleAmbiguous(ctx context.Context, adapter VendorAdapter, order *entities.Order, result *entities.VendorResult, cause error) (*entities.PurchaseResponse, error) {
	var vendorRef *string
	if result != nil && result.VendorRef != "" {
		vendorRef = &result.VendorRef
	}

	if err := s.orders.MarkProcessing(ctx, order.Reference, vendorRef); err != nil && !derrors.IsAlreadyFinalized(err) {
		s.logger.Error("failed to mark order processing", "reference", order.Reference, "error", err)
	}
	metrics.OrdersAmbiguous.WithLabelValues(order.Vendor).Inc()
	s.logger.Warn("vendor outcome ambiguous, funds remain reserved",
		"reference", order.Reference,
		"vendor", order.Vendor,
		"error", cause,
	)

	if s.opts.RequeryOnAmbiguous {
		if resp, resolved := s.requeryOnce(ctx, adapter, order); resolved {
			return resp, nil
		}
	}

	return &entities.PurchaseResponse{
		Reference:       order.Reference,
		Status:          entities.OrderStatusProcessing,
		PreviousBalance: order.PreviousBalance.String(),
		CurrentBalance:  order.CurrentBalance.String(),
		Message:         "order is being processed; the final status will be confirmed shortly",
	}, nil
}

// requeryOnce makes a single status inquiry while the client is still
// waiting. Anything short of a definitive answer keeps the order processing.
func (s *Service) requeryOnce(ctx context.Context, adapter VendorAdapter, order *entities.Order) (*entities.PurchaseResponse, bool) {
	rctx, cancel := context.WithTimeout(ctx, s.opts.VendorTimeout)
	defer cancel()

	start := time.Now()
	result, err := adapter.Requery(rctx, order.Reference)
	metrics.VendorRequestDuration.WithLabelValues(order.Vendor, "requery").Observe(time.Since(start).Seconds())
	if err != nil || result == nil {
		return nil, false
	}

	switch result.Outcome {
	case entities.VendorOutcomeSuccess:
		resp, rerr := s.settleDelivered(ctx, order, result)
		return resp, rerr == nil
	case entities.VendorOutcomeRejected:
		resp, rerr := s.settleRejected(ctx, order, result.Message)
		return resp, rerr == nil
	default:
		return nil, false
	}
}

// HandleVendorResult applies an out-of-band settlement signal (webhook or
// requery) to an order. Late signals against terminal orders are benign
// no-ops.
func (s *Service) HandleVendorResult(ctx context.Context, reference string, result *entities.VendorResult) error {
	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		s.logger.Info("ignoring settlement signal for finalized order",
			"reference", reference,
			"status", string(order.Status),
		)
		return nil
	}

	switch result.Outcome {
	case entities.VendorOutcomeSuccess:
		_, err := s.settleDelivered(ctx, order, result)
		return err
	case entities.VendorOutcomeRejected:
		_, err := s.settleRejected(ctx, order, result.Message)
		return err
	default:
		// Still ambiguous; nothing to change
		return nil
	}
}

// Fund applies a verified external funding credit. Each gateway transaction
// gets its own funding order keyed by the source reference, and the ledger's
// unique source reference makes the credit itself idempotent; a replay
// reports success without moving money.
func (s *Service) Fund(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, vendor, sourceReference string) error {
	order := &entities.Order{
		ID:          uuid.New(),
		Reference:   sourceReference,
		AccountID:   accountID,
		Type:        entities.OrderTypeFunding,
		Vendor:      vendor,
		ServiceID:   "wallet_funding",
		Beneficiary: accountID.String(),
		Amount:      amount,
	}
	if err := s.orders.CreatePending(ctx, order); err != nil {
		if !derrors.IsDuplicateKey(err) {
			return err
		}
		existing, getErr := s.orders.GetByReference(ctx, sourceReference)
		if getErr != nil {
			return getErr
		}
		if existing.Status.IsTerminal() {
			s.logger.Info("funding credit already applied",
				"account_id", accountID.String(),
				"source_reference", sourceReference,
			)
			return nil
		}
		// A previous delivery created the order but did not finish; resume it
		order = existing
	}

	credited := true
	balance, err := s.ledger.CreditExternal(ctx, accountID, amount, sourceReference)
	if err != nil {
		if !derrors.IsDuplicateKey(err) {
			return err
		}
		// The credit landed on an earlier delivery; only the order record
		// still needs finishing
		credited = false
		account, accErr := s.ledger.GetAccount(ctx, accountID)
		if accErr != nil {
			return accErr
		}
		balance = account.Balance
	}

	if err := s.orders.Finalize(ctx, order.Reference, entities.OrderStatusDelivered, balance, nil, nil); err != nil && !derrors.IsAlreadyFinalized(err) {
		return err
	}

	if credited {
		s.notifier.Publish(entities.NotificationEvent{
			Type:      entities.NotificationWalletCredit,
			AccountID: accountID,
			Reference: sourceReference,
			Amount:    amount,
			Balance:   balance,
			CreatedAt: time.Now(),
		})
	}
	return nil
}

// GetOrder returns the current view of an order by reference
func (s *Service) GetOrder(ctx context.Context, reference string) (*entities.Order, error) {
	return s.orders.GetByReference(ctx, reference)
}

// Adapter returns the vendor adapter registered under the given name
func (s *Service) Adapter(vendor string) (VendorAdapter, bool) {
	a, ok := s.adapters[vendor]
	return a, ok
}

func (s *Service) responseFromStored(ctx context.Context, reference string) (*entities.PurchaseResponse, error) {
	order, err := s.orders.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	resp := &entities.PurchaseResponse{
		Reference:       order.Reference,
		Status:          order.Status,
		PreviousBalance: order.PreviousBalance.String(),
		CurrentBalance:  order.CurrentBalance.String(),
	}
	if order.VendorRef != nil {
		resp.VendorRef = *order.VendorRef
	}
	if order.FailureReason != nil {
		resp.Message = *order.FailureReason
	}
	return resp, nil
}

func (s *Service) notifySettled(ctx context.Context, order *entities.Order, status entities.OrderStatus, balance decimal.Decimal, message string) {
	eventType := entities.NotificationPaymentSuccess
	if status == entities.OrderStatusFailed {
		eventType = entities.NotificationPaymentFailure
	}
	s.notifier.Publish(entities.NotificationEvent{
		Type:      eventType,
		AccountID: order.AccountID,
		Reference: order.Reference,
		Amount:    order.Amount,
		Balance:   balance,
		Message:   message,
		CreatedAt: time.Now(),
	})

	if status == entities.OrderStatusDelivered {
		account, err := s.ledger.GetAccount(ctx, order.AccountID)
		if err == nil && s.ledger.IsBelowThreshold(account, balance) {
			s.notifier.Publish(entities.NotificationEvent{
				Type:      entities.NotificationLowBalance,
				AccountID: order.AccountID,
				Balance:   balance,
				CreatedAt: time.Now(),
			})
		}
	}
}
