package monnify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
)

// webhookPayload is the raw shape of a Monnify transaction completion event
type webhookPayload struct {
	EventType string `json:"eventType"`
	EventData struct {
		TransactionReference string          `json:"transactionReference"`
		PaymentReference     string          `json:"paymentReference"`
		AmountPaid           decimal.Decimal `json:"amountPaid"`
		PaymentStatus        string          `json:"paymentStatus"`
		Product              struct {
			Reference string `json:"reference"`
			Type      string `json:"type"`
		} `json:"product"`
	} `json:"eventData"`
}

// ParseWebhook normalizes a verified Monnify callback body into a funding
// event. The product reference carries the account the reserved virtual
// account belongs to.
func ParseWebhook(body []byte) (*entities.WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode monnify webhook: %w", err)
	}

	if payload.EventType != "SUCCESSFUL_TRANSACTION" {
		return nil, fmt.Errorf("unsupported monnify event type: %s", payload.EventType)
	}

	event := &entities.WebhookEvent{
		Kind:            entities.WebhookKindFunding,
		VendorRef:       payload.EventData.TransactionReference,
		SourceReference: payload.EventData.TransactionReference,
		AccountRef:      payload.EventData.Product.Reference,
		Amount:          payload.EventData.AmountPaid,
	}

	switch strings.ToUpper(payload.EventData.PaymentStatus) {
	case "PAID":
		event.Outcome = entities.VendorOutcomeSuccess
	case "FAILED", "CANCELLED":
		event.Outcome = entities.VendorOutcomeRejected
	default:
		event.Outcome = entities.VendorOutcomeAmbiguous
	}
	return event, nil
}
