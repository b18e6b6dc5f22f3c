package reconciliation

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
	"github.com/paygo-service/paygo_service/internal/domain/services/settlement"
	"github.com/paygo-service/paygo_service/pkg/logger"
)

type MockUnsettledStore struct {
	mock.Mock
}

func (m *MockUnsettledStore) ListUnsettled(ctx context.Context, before time.Time, limit int) ([]entities.Order, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.Order), args.Error(1)
}

func (m *MockUnsettledStore) CountUnsettled(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) HandleVendorResult(ctx context.Context, reference string, result *entities.VendorResult) error {
	args := m.Called(ctx, reference, result)
	return args.Error(0)
}

func (m *MockResolver) Adapter(vendor string) (settlement.VendorAdapter, bool) {
	args := m.Called(vendor)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(settlement.VendorAdapter), args.Bool(1)
}

type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Name() string { return "vtpass" }

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

func unsettledOrder(reference string, age time.Duration) entities.Order {
	return entities.Order{
		ID:        uuid.New(),
		Reference: reference,
		AccountID: uuid.New(),
		Vendor:    "vtpass",
		Amount:    decimal.NewFromInt(500),
		Status:    entities.OrderStatusProcessing,
		CreatedAt: time.Now().Add(-age),
	}
}

func newSweeper(store *MockUnsettledStore, resolver *MockResolver) *Service {
	return NewService(store, resolver, Config{
		Grace:     2 * time.Minute,
		GiveUp:    24 * time.Hour,
		BatchSize: 100,
	}, logger.New("debug", "test"))
}

func TestSweepResolvesDeliveredOrder(t *testing.T) {
	store := new(MockUnsettledStore)
	resolver := new(MockResolver)
	adapter := new(MockAdapter)
	svc := newSweeper(store, resolver)

	store.On("ListUnsettled", mock.Anything, mock.Anything, 100).
		Return([]entities.Order{unsettledOrder("ord-1", 10*time.Minute)}, nil)
	store.On("CountUnsettled", mock.Anything, mock.Anything).Return(int64(0), nil)
	resolver.On("Adapter", "vtpass").Return(adapter, true)
	adapter.On("Requery", mock.Anything, "ord-1").Return(&entities.VendorResult{
		Outcome:   entities.VendorOutcomeSuccess,
		VendorRef: "vt-1",
	}, nil)
	resolver.On("HandleVendorResult", mock.Anything, "ord-1", mock.Anything).Return(nil)

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Pending)
}

func TestSweepResolvesRejectedOrder(t *testing.T) {
	store := new(MockUnsettledStore)
	resolver := new(MockResolver)
	adapter := new(MockAdapter)
	svc := newSweeper(store, resolver)

	store.On("ListUnsettled", mock.Anything, mock.Anything, 100).
		Return([]entities.Order{unsettledOrder("ord-2", 10*time.Minute)}, nil)
	store.On("CountUnsettled", mock.Anything, mock.Anything).Return(int64(0), nil)
	resolver.On("Adapter", "vtpass").Return(adapter, true)
	adapter.On("Requery", mock.Anything, "ord-2").Return(&entities.VendorResult{
		Outcome: entities.VendorOutcomeRejected,
		Message: "transaction failed",
	}, nil)
	resolver.On("HandleVendorResult", mock.Anything, "ord-2", mock.Anything).Return(nil)

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestSweepLeavesAmbiguousOrderPending(t *testing.T) {
	store := new(MockUnsettledStore)
	resolver := new(MockResolver)
	adapter := new(MockAdapter)
	svc := newSweeper(store, resolver)

	store.On("ListUnsettled", mock.Anything, mock.Anything, 100).
		Return([]entities.Order{unsettledOrder("ord-3", 10*time.Minute)}, nil)
	store.On("CountUnsettled", mock.Anything, mock.Anything).Return(int64(0), nil)
	resolver.On("Adapter", "vtpass").Return(adapter, true)
	adapter.On("Requery", mock.Anything, "ord-3").Return(&entities.VendorResult{
		Outcome: entities.VendorOutcomeAmbiguous,
	}, nil)

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Pending)
	resolver.AssertNotCalled(t, "HandleVendorResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepFlagsStaleOrderWithoutRequery(t *testing.T) {
	store := new(MockUnsettledStore)
	resolver := new(MockResolver)
	svc := newSweeper(store, resolver)

	store.On("ListUnsettled", mock.Anything, mock.Anything, 100).
		Return([]entities.Order{unsettledOrder("ord-4", 48*time.Hour)}, nil)
	store.On("CountUnsettled", mock.Anything, mock.Anything).Return(int64(1), nil)

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Stale)
	resolver.AssertNotCalled(t, "Adapter", mock.Anything)
}

func TestSweepRequeryFailureStaysReserved(t *testing.T) {
	store := new(MockUnsettledStore)
	resolver := new(MockResolver)
	adapter := new(MockAdapter)
	svc := newSweeper(store, resolver)

	store.On("ListUnsettled", mock.Anything, mock.Anything, 100).
		Return([]entities.Order{unsettledOrder("ord-5", 10*time.Minute)}, nil)
	store.On("CountUnsettled", mock.Anything, mock.Anything).Return(int64(0), nil)
	resolver.On("Adapter", "vtpass").Return(adapter, true)
	adapter.On("Requery", mock.Anything, "ord-5").
		Return(nil, errors.New("connection refused"))

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Pending)
	resolver.AssertNotCalled(t, "HandleVendorResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepSkipsFundingOrders(t *testing.T) {
	store := new(MockUnsettledStore)
	resolver := new(MockResolver)
	svc := newSweeper(store, resolver)

	funding := unsettledOrder("mnfy-1", 10*time.Minute)
	funding.Type = entities.OrderTypeFunding
	funding.Vendor = "monnify"

	store.On("ListUnsettled", mock.Anything, mock.Anything, 100).
		Return([]entities.Order{funding}, nil)
	store.On("CountUnsettled", mock.Anything, mock.Anything).Return(int64(0), nil)

	result, err := svc.Sweep(context.Background())

	// Funding orders wait for the gateway to redeliver; there is nothing to requery
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pending)
	resolver.AssertNotCalled(t, "Adapter", mock.Anything)
}

func TestSweepListFailure(t *testing.T) {
	store := new(MockUnsettledStore)
	resolver := new(MockResolver)
	svc := newSweeper(store, resolver)

	store.On("ListUnsettled", mock.Anything, mock.Anything, 100).
		Return(nil, errors.New("db down"))

	_, err := svc.Sweep(context.Background())
	assert.Error(t, err)
}
