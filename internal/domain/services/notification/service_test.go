package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	"github.com/paygo-service/paygo_service/pkg/logger"
)

type recordingEmailer struct {
	mu   sync.Mutex
	sent []sentEmail
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

func (r *recordingEmailer) Send(ctx context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func (r *recordingEmailer) all() []sentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentEmail, len(r.sent))
	copy(out, r.sent)
	return out
}

type MockAccountReader struct {
	mock.Mock
}

func (m *MockAccountReader) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func TestDispatcherDeliversEvent(t *testing.T) {
	emailer := &recordingEmailer{}
	accounts := new(MockAccountReader)
	d := NewDispatcher(emailer, accounts, 8, logger.New("debug", "test"))

	d.Start()
	d.Publish(entities.NotificationEvent{
		Type:      entities.NotificationPaymentSuccess,
		Email:     "user@example.com",
		Reference: "ord-1",
		Amount:    decimal.NewFromInt(500),
		Balance:   decimal.NewFromInt(1500),
	})
	d.Stop()

	sent := emailer.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "user@example.com", sent[0].to)
	assert.Equal(t, "Purchase successful", sent[0].subject)
	assert.Contains(t, sent[0].body, "ord-1")
	accounts.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestDispatcherResolvesMissingEmail(t *testing.T) {
	emailer := &recordingEmailer{}
	accounts := new(MockAccountReader)
	accountID := uuid.New()
	accounts.On("GetByID", mock.Anything, accountID).Return(&entities.Account{
		ID:    accountID,
		Email: "looked-up@example.com",
	}, nil)

	d := NewDispatcher(emailer, accounts, 8, logger.New("debug", "test"))
	d.Start()
	d.Publish(entities.NotificationEvent{
		Type:      entities.NotificationWalletCredit,
		AccountID: accountID,
		Amount:    decimal.NewFromInt(2000),
		Balance:   decimal.NewFromInt(2000),
	})
	d.Stop()

	sent := emailer.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "looked-up@example.com", sent[0].to)
	assert.Equal(t, "Wallet funded", sent[0].subject)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	emailer := &recordingEmailer{}
	d := NewDispatcher(emailer, new(MockAccountReader), 1, logger.New("debug", "test"))
	// Consumer is not started, so the second publish finds a full queue
	d.Publish(entities.NotificationEvent{Type: entities.NotificationLowBalance, Email: "a@example.com"})

	done := make(chan struct{})
	go func() {
		d.Publish(entities.NotificationEvent{Type: entities.NotificationLowBalance, Email: "b@example.com"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestPublishAfterStopDropsInsteadOfPanicking(t *testing.T) {
	emailer := &recordingEmailer{}
	d := NewDispatcher(emailer, new(MockAccountReader), 8, logger.New("debug", "test"))
	d.Start()
	d.Stop()

	// A request settling while the process drains must not crash on the
	// closed queue
	assert.NotPanics(t, func() {
		d.Publish(entities.NotificationEvent{
			Type:  entities.NotificationPaymentSuccess,
			Email: "late@example.com",
		})
	})
	assert.Empty(t, emailer.all())
}

func TestComposeFailureIncludesReason(t *testing.T) {
	subject, body := compose(entities.NotificationEvent{
		Type:      entities.NotificationPaymentFailure,
		Reference: "ord-9",
		Amount:    decimal.NewFromInt(500),
		Balance:   decimal.NewFromInt(1000),
		Message:   "invalid phone number",
	})

	assert.Equal(t, "Purchase failed", subject)
	assert.Contains(t, body, "refunded")
	assert.Contains(t, body, "invalid phone number")
}
