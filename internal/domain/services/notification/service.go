// Package notification dispatches settlement events to users. Delivery is
// strictly best-effort: Publish never blocks a settlement flow, and a full
// queue drops the event rather than slowing payments down.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/metrics"
)

// Emailer delivers a single message
type Emailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AccountReader resolves the recipient address for an event
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error)
}

// Dispatcher consumes notification events from a bounded queue
type Dispatcher struct {
	emailer  Emailer
	accounts AccountReader
	queue    chan entities.NotificationEvent
	logger   *logger.Logger

	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity
func NewDispatcher(emailer Emailer, accounts AccountReader, queueSize int, log *logger.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		emailer:  emailer,
		accounts: accounts,
		queue:    make(chan entities.NotificationEvent, queueSize),
		logger:   log,
		done:     make(chan struct{}),
	}
}

// Publish enqueues an event without blocking. Events are dropped when the
// queue is full or the dispatcher has stopped; settlement correctness never
// depends on notifications, and a request settling during shutdown must not
// panic on the closed queue.
func (d *Dispatcher) Publish(event entities.NotificationEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		metrics.NotificationsDropped.Inc()
		d.logger.Warn("dispatcher stopped, dropping event",
			"type", string(event.Type),
			"reference", event.Reference,
		)
		return
	}
	select {
	case d.queue <- event:
	default:
		metrics.NotificationsDropped.Inc()
		d.logger.Warn("notification queue full, dropping event",
			"type", string(event.Type),
			"reference", event.Reference,
		)
	}
}

// Start launches the consumer goroutine
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop closes the queue and waits for in-flight events to drain. The write
// lock waits out any Publish in progress before the channel closes.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
		close(d.queue)
	})
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := d.deliver(ctx, event); err != nil {
			d.logger.Warn("notification delivery failed",
				"type", string(event.Type),
				"reference", event.Reference,
				"error", err,
			)
		}
		cancel()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event entities.NotificationEvent) error {
	to := event.Email
	if to == "" {
		account, err := d.accounts.GetByID(ctx, event.AccountID)
		if err != nil {
			return err
		}
		to = account.Email
	}
	if to == "" {
		return nil
	}

	subject, body := compose(event)
	return d.emailer.Send(ctx, to, subject, body)
}

func compose(event entities.NotificationEvent) (subject, body string) {
	switch event.Type {
	case entities.NotificationPaymentSuccess:
		subject = "Purchase successful"
		body = fmt.Sprintf("Your purchase %s for %s was delivered. New balance: %s.",
			event.Reference, event.Amount.String(), event.Balance.String())
	case entities.NotificationPaymentFailure:
		subject = "Purchase failed"
		body = fmt.Sprintf("Your purchase %s for %s could not be completed and your wallet was refunded. Balance: %s.",
			event.Reference, event.Amount.String(), event.Balance.String())
		if event.Message != "" {
			body += " Reason: " + event.Message
		}
	case entities.NotificationWalletCredit:
		subject = "Wallet funded"
		body = fmt.Sprintf("Your wallet was credited with %s. New balance: %s.",
			event.Amount.String(), event.Balance.String())
	case entities.NotificationLowBalance:
		subject = "Low wallet balance"
		body = fmt.Sprintf("Your wallet balance is down to %s. Top up to keep purchases running.",
			event.Balance.String())
	default:
		subject = "Account update"
		body = event.Message
	}
	return subject, body
}
