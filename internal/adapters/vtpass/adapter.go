package vtpass

import (
	"context"
	"strings"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	"github.com/paygo-service/paygo_service/pkg/logger"
)

// Response codes from the VTPass API. Everything outside this table is
// treated as a definitive rejection; only transport failures and the
// explicit processing code stay ambiguous.
const (
	codeDelivered  = "000"
	codeProcessing = "099"
)

// Adapter translates VTPass responses into vendor-agnostic settlement verdicts
type Adapter struct {
	client *Client
	logger *logger.Logger
}

// NewAdapter creates a VTPass settlement adapter
func NewAdapter(client *Client, log *logger.Logger) *Adapter {
	return &Adapter{
		client: client,
		logger: log,
	}
}

// Name returns the vendor identifier used in order records and routing
func (a *Adapter) Name() string {
	return "vtpass"
}

// Purchase submits the order. A transport error, including a timeout, comes
// back as an error so the caller treats the outcome as ambiguous rather
// than failed.
func (a *Adapter) Purchase(ctx context.Context, payload entities.OrderPayload) (*entities.VendorResult, error) {
	req := &PayRequest{
		RequestID: payload.Reference,
		ServiceID: payload.ServiceID,
		Amount:    payload.Amount.String(),
		Phone:     payload.Beneficiary,
	}
	if v, ok := payload.Metadata["variation_code"]; ok {
		req.Variation = v
	}
	if v, ok := payload.Metadata["billers_code"]; ok {
		req.BillersCode = v
	}

	resp, err := a.client.Pay(ctx, req)
	if err != nil {
		return nil, err
	}
	return a.interpret(resp), nil
}

// Requery fetches the authoritative status for a prior purchase
func (a *Adapter) Requery(ctx context.Context, reference string) (*entities.VendorResult, error) {
	resp, err := a.client.Requery(ctx, reference)
	if err != nil {
		return nil, err
	}
	return a.interpret(resp), nil
}

func (a *Adapter) interpret(resp *APIResponse) *entities.VendorResult {
	result := &entities.VendorResult{
		VendorRef: resp.Content.Transactions.TransactionID,
		Message:   resp.ResponseDescription,
	}

	switch resp.Code {
	case codeDelivered:
		// The envelope code alone is not enough; the nested transaction
		// status can still report pending under code 000
		switch strings.ToLower(resp.Content.Transactions.Status) {
		case "delivered":
			result.Outcome = entities.VendorOutcomeSuccess
		case "pending", "initiated":
			result.Outcome = entities.VendorOutcomeAmbiguous
		case "failed", "reversed":
			result.Outcome = entities.VendorOutcomeRejected
		default:
			result.Outcome = entities.VendorOutcomeAmbiguous
		}
	case codeProcessing:
		result.Outcome = entities.VendorOutcomeAmbiguous
	default:
		result.Outcome = entities.VendorOutcomeRejected
		if result.Message == "" {
			result.Message = "transaction declined with code " + resp.Code
		}
	}

	a.logger.Debug("vtpass verdict",
		"code", resp.Code,
		"status", resp.Content.Transactions.Status,
		"outcome", string(result.Outcome),
	)
	return result
}
