package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
	"github.com/paygo-service/paygo_service/pkg/logger"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetAccount(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockLedger) VerifyPIN(ctx context.Context, accountID uuid.UUID, pin string) error {
	args := m.Called(ctx, accountID, pin)
	return args.Error(0)
}

func (m *MockLedger) Reserve(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	args := m.Called(ctx, accountID, amount, orderID)
	return args.Get(0).(decimal.Decimal), args.Get(1).(decimal.Decimal), args.Error(2)
}

func (m *MockLedger) Release(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID, amount, orderID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedger) CreditExternal(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, sourceReference string) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID, amount, sourceReference)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockLedger) IsBelowThreshold(account *entities.Account, balance decimal.Decimal) bool {
	args := m.Called(account, balance)
	return args.Bool(0)
}

type MockOrderStore struct {
	mock.Mock
}

func (m *MockOrderStore) CreatePending(ctx context.Context, order *entities.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderStore) MarkProcessing(ctx context.Context, reference string, vendorRef *string) error {
	args := m.Called(ctx, reference, vendorRef)
	return args.Error(0)
}

func (m *MockOrderStore) Finalize(ctx context.Context, reference string, status entities.OrderStatus, currentBalance decimal.Decimal, vendorRef, failureReason *string) error {
	args := m.Called(ctx, reference, status, currentBalance, vendorRef, failureReason)
	return args.Error(0)
}

func (m *MockOrderStore) FinalizeWithRelease(ctx context.Context, order *entities.Order, failureReason *string) (decimal.Decimal, error) {
	args := m.Called(ctx, order, failureReason)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockOrderStore) GetByReference(ctx context.Context, reference string) (*entities.Order, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Order), args.Error(1)
}

func (m *MockOrderStore) GetByVendorRef(ctx context.Context, vendorRef string) (*entities.Order, error) {
	args := m.Called(ctx, vendorRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Order), args.Error(1)
}

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) Check(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, beneficiary string) error {
	args := m.Called(ctx, accountID, amount, beneficiary)
	return args.Error(0)
}

func (m *MockGuard) Forget(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, beneficiary string) {
	m.Called(ctx, accountID, amount, beneficiary)
}

type MockAdapter struct {
	mock.Mock
	name string
}

func (m *MockAdapter) Name() string {
	if m.name != "" {
		return m.name
	}
	return "vtpass"
}

func (m *MockAdapter) Purchase(ctx context.Context, payload entities.OrderPayload) (*entities.VendorResult, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.VendorResult), args.Error(1)
}

func (m *MockAdapter) Requery(ctx context.Context, reference string) (*entities.VendorResult, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.VendorResult), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(event entities.NotificationEvent) {
	m.Called(event)
}

type fixture struct {
	ledger   *MockLedger
	orders   *MockOrderStore
	guard    *MockGuard
	adapter  *MockAdapter
	notifier *MockNotifier
	service  *Service
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		ledger:   new(MockLedger),
		orders:   new(MockOrderStore),
		guard:    new(MockGuard),
		adapter:  new(MockAdapter),
		notifier: new(MockNotifier),
	}
	f.notifier.On("Publish", mock.Anything).Return().Maybe()
	f.service = NewService(
		f.ledger, f.orders, f.guard,
		[]VendorAdapter{f.adapter},
		f.notifier, opts,
		logger.New("debug", "test"),
	)
	return f
}

func purchaseRequest() *entities.PurchaseRequest {
	return &entities.PurchaseRequest{
		Reference:   "ord-123",
		Vendor:      "vtpass",
		ServiceID:   "mtn-airtime",
		Beneficiary: "08030000000",
		Amount:      decimal.NewFromInt(500),
		PIN:         "1234",
	}
}

func TestPurchaseDelivered(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	req := purchaseRequest()

	f.ledger.On("VerifyPIN", mock.Anything, accountID, "1234").Return(nil)
	f.guard.On("Check", mock.Anything, accountID, req.Amount, req.Beneficiary).Return(nil)
	f.ledger.On("Reserve", mock.Anything, accountID, req.Amount, mock.Anything).
		Return(decimal.NewFromInt(1000), decimal.NewFromInt(500), nil)
	f.orders.On("CreatePending", mock.Anything, mock.Anything).Return(nil)
	f.adapter.On("Purchase", mock.Anything, mock.Anything).Return(&entities.VendorResult{
		Outcome:   entities.VendorOutcomeSuccess,
		VendorRef: "vt-999",
	}, nil)
	f.orders.On("Finalize", mock.Anything, "ord-123", entities.OrderStatusDelivered,
		decimal.NewFromInt(500), mock.Anything, mock.Anything).Return(nil)
	f.ledger.On("GetAccount", mock.Anything, accountID).Return(&entities.Account{ID: accountID}, nil)
	f.ledger.On("IsBelowThreshold", mock.Anything, mock.Anything).Return(false)

	resp, err := f.service.Purchase(context.Background(), accountID, req)

	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusDelivered, resp.Status)
	assert.Equal(t, "1000", resp.PreviousBalance)
	assert.Equal(t, "500", resp.CurrentBalance)
	assert.Equal(t, "vt-999", resp.VendorRef)
	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseInsufficientFundsReleasesGuardClaim(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	req := purchaseRequest()

	f.ledger.On("VerifyPIN", mock.Anything, accountID, "1234").Return(nil)
	f.guard.On("Check", mock.Anything, accountID, req.Amount, req.Beneficiary).Return(nil)
	f.ledger.On("Reserve", mock.Anything, accountID, req.Amount, mock.Anything).
		Return(decimal.Zero, decimal.Zero, derrors.InsufficientFundsError("100", "500"))
	f.guard.On("Forget", mock.Anything, accountID, req.Amount, req.Beneficiary).Return()

	_, err := f.service.Purchase(context.Background(), accountID, req)

	assert.True(t, derrors.IsInsufficientFunds(err))
	f.guard.AssertCalled(t, "Forget", mock.Anything, accountID, req.Amount, req.Beneficiary)
	f.orders.AssertNotCalled(t, "CreatePending", mock.Anything, mock.Anything)
}

func TestPurchaseWrongPINStopsBeforeGuard(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	req := purchaseRequest()

	f.ledger.On("VerifyPIN", mock.Anything, accountID, "1234").
		Return(derrors.IncorrectCredentialError())

	_, err := f.service.Purchase(context.Background(), accountID, req)

	assert.True(t, derrors.IsIncorrectCredential(err))
	f.guard.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseDuplicateReferenceReleasesReservation(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	req := purchaseRequest()

	f.ledger.On("VerifyPIN", mock.Anything, accountID, "1234").Return(nil)
	f.guard.On("Check", mock.Anything, accountID, req.Amount, req.Beneficiary).Return(nil)
	f.ledger.On("Reserve", mock.Anything, accountID, req.Amount, mock.Anything).
		Return(decimal.NewFromInt(1000), decimal.NewFromInt(500), nil)
	f.orders.On("CreatePending", mock.Anything, mock.Anything).
		Return(derrors.DuplicateKeyError("reference", "ord-123"))
	f.ledger.On("Release", mock.Anything, accountID, req.Amount, mock.Anything).
		Return(decimal.NewFromInt(1000), nil)
	f.guard.On("Forget", mock.Anything, accountID, req.Amount, req.Beneficiary).Return()

	_, err := f.service.Purchase(context.Background(), accountID, req)

	assert.True(t, derrors.IsDuplicateKey(err))
	f.ledger.AssertCalled(t, "Release", mock.Anything, accountID, req.Amount, mock.Anything)
	f.adapter.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
}

func TestPurchaseVendorRejectedRefundsWallet(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	req := purchaseRequest()

	f.ledger.On("VerifyPIN", mock.Anything, accountID, "1234").Return(nil)
	f.guard.On("Check", mock.Anything, accountID, req.Amount, req.Beneficiary).Return(nil)
	f.ledger.On("Reserve", mock.Anything, accountID, req.Amount, mock.Anything).
		Return(decimal.NewFromInt(1000), decimal.NewFromInt(500), nil)
	f.orders.On("CreatePending", mock.Anything, mock.Anything).Return(nil)
	f.adapter.On("Purchase", mock.Anything, mock.Anything).Return(&entities.VendorResult{
		Outcome: entities.VendorOutcomeRejected,
		Message: "invalid phone number",
	}, nil)
	f.orders.On("FinalizeWithRelease", mock.Anything, mock.Anything, mock.Anything).
		Return(decimal.NewFromInt(1000), nil)

	resp, err := f.service.Purchase(context.Background(), accountID, req)

	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusFailed, resp.Status)
	assert.Equal(t, "1000", resp.CurrentBalance)
	assert.Equal(t, "invalid phone number", resp.Message)
	// The refund rides the same transaction as the status change
	f.orders.AssertCalled(t, "FinalizeWithRelease", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseTimeoutKeepsFundsReserved(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	req := purchaseRequest()

	f.ledger.On("VerifyPIN", mock.Anything, accountID, "1234").Return(nil)
	f.guard.On("Check", mock.Anything, accountID, req.Amount, req.Beneficiary).Return(nil)
	f.ledger.On("Reserve", mock.Anything, accountID, req.Amount, mock.Anything).
		Return(decimal.NewFromInt(1000), decimal.NewFromInt(500), nil)
	f.orders.On("CreatePending", mock.Anything, mock.Anything).Return(nil)
	f.adapter.On("Purchase", mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded)
	f.orders.On("MarkProcessing", mock.Anything, "ord-123", mock.Anything).Return(nil)

	resp, err := f.service.Purchase(context.Background(), accountID, req)

	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusProcessing, resp.Status)
	assert.Equal(t, "500", resp.CurrentBalance)
	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchaseAmbiguousThenRequeryDelivers(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second, RequeryOnAmbiguous: true})
	accountID := uuid.New()
	req := purchaseRequest()

	f.ledger.On("VerifyPIN", mock.Anything, accountID, "1234").Return(nil)
	f.guard.On("Check", mock.Anything, accountID, req.Amount, req.Beneficiary).Return(nil)
	f.ledger.On("Reserve", mock.Anything, accountID, req.Amount, mock.Anything).
		Return(decimal.NewFromInt(1000), decimal.NewFromInt(500), nil)
	f.orders.On("CreatePending", mock.Anything, mock.Anything).Return(nil)
	f.adapter.On("Purchase", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))
	f.orders.On("MarkProcessing", mock.Anything, "ord-123", mock.Anything).Return(nil)
	f.adapter.On("Requery", mock.Anything, "ord-123").Return(&entities.VendorResult{
		Outcome:   entities.VendorOutcomeSuccess,
		VendorRef: "vt-42",
	}, nil)
	f.orders.On("Finalize", mock.Anything, "ord-123", entities.OrderStatusDelivered,
		decimal.NewFromInt(500), mock.Anything, mock.Anything).Return(nil)
	f.ledger.On("GetAccount", mock.Anything, accountID).Return(&entities.Account{ID: accountID}, nil)
	f.ledger.On("IsBelowThreshold", mock.Anything, mock.Anything).Return(false)

	resp, err := f.service.Purchase(context.Background(), accountID, req)

	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusDelivered, resp.Status)
	assert.Equal(t, "vt-42", resp.VendorRef)
}

func TestHandleVendorResultLateSignalIsNoop(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})

	f.orders.On("GetByReference", mock.Anything, "ord-123").Return(&entities.Order{
		Reference: "ord-123",
		Status:    entities.OrderStatusDelivered,
	}, nil)

	err := f.service.HandleVendorResult(context.Background(), "ord-123", &entities.VendorResult{
		Outcome: entities.VendorOutcomeRejected,
	})

	require.NoError(t, err)
	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleVendorResultRejectionRefunds(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	orderID := uuid.New()

	f.orders.On("GetByReference", mock.Anything, "ord-123").Return(&entities.Order{
		ID:              orderID,
		Reference:       "ord-123",
		AccountID:       accountID,
		Amount:          decimal.NewFromInt(500),
		Status:          entities.OrderStatusProcessing,
		PreviousBalance: decimal.NewFromInt(1000),
		CurrentBalance:  decimal.NewFromInt(500),
	}, nil)
	f.orders.On("FinalizeWithRelease", mock.Anything, mock.MatchedBy(func(o *entities.Order) bool {
		return o.ID == orderID && o.Amount.Equal(decimal.NewFromInt(500))
	}), mock.Anything).Return(decimal.NewFromInt(1000), nil)

	err := f.service.HandleVendorResult(context.Background(), "ord-123", &entities.VendorResult{
		Outcome: entities.VendorOutcomeRejected,
		Message: "no airtime stock",
	})

	require.NoError(t, err)
	f.orders.AssertCalled(t, "FinalizeWithRelease", mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleVendorResultAmbiguousChangesNothing(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})

	f.orders.On("GetByReference", mock.Anything, "ord-123").Return(&entities.Order{
		Reference: "ord-123",
		Status:    entities.OrderStatusProcessing,
	}, nil)

	err := f.service.HandleVendorResult(context.Background(), "ord-123", &entities.VendorResult{
		Outcome: entities.VendorOutcomeAmbiguous,
	})

	require.NoError(t, err)
	f.orders.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliveredSignalLostRaceSkipsMetricsAndNotification(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()

	f.orders.On("GetByReference", mock.Anything, "ord-123").Return(&entities.Order{
		Reference:       "ord-123",
		AccountID:       accountID,
		Amount:          decimal.NewFromInt(500),
		Status:          entities.OrderStatusProcessing,
		PreviousBalance: decimal.NewFromInt(1000),
		CurrentBalance:  decimal.NewFromInt(500),
	}, nil).Once()
	f.orders.On("Finalize", mock.Anything, "ord-123", entities.OrderStatusDelivered,
		mock.Anything, mock.Anything, mock.Anything).
		Return(derrors.AlreadyFinalizedError("ord-123"))
	f.orders.On("GetByReference", mock.Anything, "ord-123").Return(&entities.Order{
		Reference:      "ord-123",
		AccountID:      accountID,
		Status:         entities.OrderStatusDelivered,
		CurrentBalance: decimal.NewFromInt(500),
	}, nil)

	err := f.service.HandleVendorResult(context.Background(), "ord-123", &entities.VendorResult{
		Outcome: entities.VendorOutcomeSuccess,
	})

	// The winner of the compare-and-set already counted and notified; the
	// loser must do neither
	require.NoError(t, err)
	f.notifier.AssertNotCalled(t, "Publish", mock.Anything)
	f.ledger.AssertNotCalled(t, "GetAccount", mock.Anything, mock.Anything)
}

func TestFundReplayIsIdempotent(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	amount := decimal.NewFromInt(2000)

	f.orders.On("CreatePending", mock.Anything, mock.Anything).
		Return(derrors.DuplicateKeyError("reference", "mnfy-1"))
	f.orders.On("GetByReference", mock.Anything, "mnfy-1").Return(&entities.Order{
		Reference: "mnfy-1",
		AccountID: accountID,
		Type:      entities.OrderTypeFunding,
		Status:    entities.OrderStatusDelivered,
		Amount:    amount,
	}, nil)

	err := f.service.Fund(context.Background(), accountID, amount, "monnify", "mnfy-1")

	require.NoError(t, err)
	f.ledger.AssertNotCalled(t, "CreditExternal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestFundCreatesFundingOrderAndNotifies(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	amount := decimal.NewFromInt(2000)

	f.orders.On("CreatePending", mock.Anything, mock.MatchedBy(func(o *entities.Order) bool {
		return o.Type == entities.OrderTypeFunding &&
			o.Reference == "mnfy-2" &&
			o.Vendor == "monnify" &&
			o.Amount.Equal(amount)
	})).Return(nil)
	f.ledger.On("CreditExternal", mock.Anything, accountID, amount, "mnfy-2").
		Return(decimal.NewFromInt(2500), nil)
	f.orders.On("Finalize", mock.Anything, "mnfy-2", entities.OrderStatusDelivered,
		decimal.NewFromInt(2500), mock.Anything, mock.Anything).Return(nil)

	err := f.service.Fund(context.Background(), accountID, amount, "monnify", "mnfy-2")

	require.NoError(t, err)
	f.orders.AssertCalled(t, "Finalize", mock.Anything, "mnfy-2", entities.OrderStatusDelivered,
		decimal.NewFromInt(2500), mock.Anything, mock.Anything)
	f.notifier.AssertCalled(t, "Publish", mock.MatchedBy(func(e entities.NotificationEvent) bool {
		return e.Type == entities.NotificationWalletCredit && e.Balance.Equal(decimal.NewFromInt(2500))
	}))
}

func TestFundFinishesInterruptedFundingOrder(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	accountID := uuid.New()
	amount := decimal.NewFromInt(2000)

	f.orders.On("CreatePending", mock.Anything, mock.Anything).
		Return(derrors.DuplicateKeyError("reference", "mnfy-3"))
	f.orders.On("GetByReference", mock.Anything, "mnfy-3").Return(&entities.Order{
		Reference: "mnfy-3",
		AccountID: accountID,
		Type:      entities.OrderTypeFunding,
		Status:    entities.OrderStatusPending,
		Amount:    amount,
	}, nil)
	f.ledger.On("CreditExternal", mock.Anything, accountID, amount, "mnfy-3").
		Return(decimal.Zero, derrors.DuplicateKeyError("source_reference", "mnfy-3"))
	f.ledger.On("GetAccount", mock.Anything, accountID).Return(&entities.Account{
		ID:      accountID,
		Balance: decimal.NewFromInt(2500),
	}, nil)
	f.orders.On("Finalize", mock.Anything, "mnfy-3", entities.OrderStatusDelivered,
		decimal.NewFromInt(2500), mock.Anything, mock.Anything).Return(nil)

	err := f.service.Fund(context.Background(), accountID, amount, "monnify", "mnfy-3")

	// The money moved on an earlier delivery; this pass only completes the record
	require.NoError(t, err)
	f.orders.AssertCalled(t, "Finalize", mock.Anything, "mnfy-3", entities.OrderStatusDelivered,
		decimal.NewFromInt(2500), mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestPurchaseUnknownVendor(t *testing.T) {
	f := newFixture(Options{VendorTimeout: time.Second})
	req := purchaseRequest()
	req.Vendor = "nosuch"

	_, err := f.service.Purchase(context.Background(), uuid.New(), req)

	assert.True(t, derrors.IsInvalidInput(err))
}
