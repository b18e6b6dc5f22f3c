package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotificationType identifies the template used when dispatching an event
type NotificationType string

const (
	NotificationPaymentSuccess NotificationType = "payment_success"
	NotificationPaymentFailure NotificationType = "payment_failure"
	NotificationWalletCredit   NotificationType = "wallet_credit"
	NotificationLowBalance     NotificationType = "low_balance"
)

// NotificationEvent is published by settlement flows and consumed
// asynchronously. Delivery is best-effort and never blocks settlement.
type NotificationEvent struct {
	Type      NotificationType
	AccountID uuid.UUID
	Email     string
	Reference string
	Amount    decimal.Decimal
	Balance   decimal.Decimal
	Message   string
	CreatedAt time.Time
}
