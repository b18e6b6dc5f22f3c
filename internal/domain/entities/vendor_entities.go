package entities

import (
	"github.com/shopspring/decimal"
)

// VendorOutcome is the tri-state result of a settlement attempt. Ambiguous
// means the true outcome is unknown and funds must stay reserved until a
// requery, webhook, or the reconciliation sweep resolves it.
type VendorOutcome string

const (
	VendorOutcomeSuccess   VendorOutcome = "success"
	VendorOutcomeRejected  VendorOutcome = "rejected"
	VendorOutcomeAmbiguous VendorOutcome = "ambiguous"
)

// VendorResult carries the adapter's interpretation of a vendor response
type VendorResult struct {
	Outcome   VendorOutcome
	VendorRef string
	Message   string
}

// OrderPayload is the vendor-agnostic purchase instruction handed to adapters
type OrderPayload struct {
	Reference   string
	ServiceID   string
	Beneficiary string
	Amount      decimal.Decimal
	Metadata    map[string]string
}

// WebhookKind separates purchase settlement callbacks from funding credits
type WebhookKind string

const (
	WebhookKindPurchase WebhookKind = "purchase"
	WebhookKindFunding  WebhookKind = "funding"
)

// WebhookEvent is the normalized form of a verified vendor callback
type WebhookEvent struct {
	Kind            WebhookKind
	Reference       string
	VendorRef       string
	Outcome         VendorOutcome
	Amount          decimal.Decimal
	AccountRef      string
	SourceReference string
	Message         string
}
