package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus tracks an order through its settlement lifecycle
type OrderStatus string

const (
	// OrderStatusPending means funds are reserved and no vendor attempt has concluded
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing means the vendor outcome is ambiguous and the order
	// is awaiting requery or webhook resolution
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusDelivered is terminal: the vendor confirmed fulfilment
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusFailed is terminal: the vendor rejected and funds were released
	OrderStatusFailed OrderStatus = "failed"
)

// ValidOrderTransitions defines the allowed state machine.
// Terminal states have no outgoing edges, so a finalized order can never
// be re-finalized regardless of how many signals arrive afterwards.
var ValidOrderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusDelivered, OrderStatusFailed},
	OrderStatusProcessing: {OrderStatusDelivered, OrderStatusFailed},
	OrderStatusDelivered:  {},
	OrderStatusFailed:     {},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusDelivered, OrderStatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusFailed
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range ValidOrderTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateOrderTransition returns a descriptive error when the transition
// is not part of the state machine
func ValidateOrderTransition(from, to OrderStatus) error {
	if !from.IsValid() {
		return fmt.Errorf("invalid source status: %s", from)
	}
	if !to.IsValid() {
		return fmt.Errorf("invalid target status: %s", to)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("invalid status transition from %s to %s", from, to)
	}
	return nil
}

// OrderType distinguishes wallet debits from external funding credits
type OrderType string

const (
	OrderTypePurchase OrderType = "purchase"
	OrderTypeFunding  OrderType = "funding"
)

// Order is the settlement record for a single purchase attempt. Reference is
// client-scoped and unique, which is what surfaces duplicate submissions at
// the database layer.
type Order struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Reference       string          `db:"reference" json:"reference"`
	AccountID       uuid.UUID       `db:"account_id" json:"account_id"`
	Type            OrderType       `db:"order_type" json:"order_type"`
	Vendor          string          `db:"vendor" json:"vendor"`
	ServiceID       string          `db:"service_id" json:"service_id"`
	Beneficiary     string          `db:"beneficiary" json:"beneficiary"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Status          OrderStatus     `db:"status" json:"status"`
	PreviousBalance decimal.Decimal `db:"previous_balance" json:"previous_balance"`
	CurrentBalance  decimal.Decimal `db:"current_balance" json:"current_balance"`
	VendorRef       *string         `db:"vendor_ref" json:"vendor_ref,omitempty"`
	FailureReason   *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	FinalizedAt     *time.Time      `db:"finalized_at" json:"finalized_at,omitempty"`
}

// PurchaseRequest is the inbound payload for a wallet-funded purchase
type PurchaseRequest struct {
	Reference   string          `json:"reference" binding:"required"`
	Vendor      string          `json:"vendor" binding:"required"`
	ServiceID   string          `json:"service_id" binding:"required"`
	Beneficiary string          `json:"beneficiary" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	PIN         string          `json:"pin" binding:"required"`
}

// PurchaseResponse reports the post-settlement view of an order
type PurchaseResponse struct {
	Reference       string      `json:"reference"`
	Status          OrderStatus `json:"status"`
	PreviousBalance string      `json:"previous_balance"`
	CurrentBalance  string      `json:"current_balance"`
	VendorRef       string      `json:"vendor_ref,omitempty"`
	Message         string      `json:"message,omitempty"`
}

// ErrorResponse is the uniform error envelope returned by the API
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
