package vtpass

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
)

// webhookPayload is the raw shape of a VTPass transaction update callback
type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		RequestID string             `json:"requestId"`
		Code      string             `json:"code"`
		Content   TransactionContent `json:"content"`
	} `json:"data"`
}

// ParseWebhook normalizes a verified VTPass callback body into a purchase
// settlement event keyed by the original request reference
func ParseWebhook(body []byte) (*entities.WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode vtpass webhook: %w", err)
	}

	if payload.Type != "transaction-update" {
		return nil, fmt.Errorf("unsupported vtpass event type: %s", payload.Type)
	}
	if payload.Data.RequestID == "" {
		return nil, fmt.Errorf("vtpass webhook missing request id")
	}

	event := &entities.WebhookEvent{
		Kind:      entities.WebhookKindPurchase,
		Reference: payload.Data.RequestID,
		VendorRef: payload.Data.Content.Transactions.TransactionID,
	}

	switch strings.ToLower(payload.Data.Content.Transactions.Status) {
	case "delivered":
		event.Outcome = entities.VendorOutcomeSuccess
	case "failed", "reversed":
		event.Outcome = entities.VendorOutcomeRejected
	default:
		event.Outcome = entities.VendorOutcomeAmbiguous
	}
	return event, nil
}
