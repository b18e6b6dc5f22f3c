package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paygo-service/paygo_service/internal/adapters/monnify"
	"github.com/paygo-service/paygo_service/internal/adapters/vtpass"
	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
	"github.com/paygo-service/paygo_service/internal/domain/services/settlement"
	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/metrics"
	"github.com/paygo-service/paygo_service/pkg/retry"
)

// WebhookSecrets maps a vendor name to its shared HMAC secret
type WebhookSecrets map[string]string

// WebhookHandlers receives vendor callbacks. Every delivery is answered 200
// so vendors stop retrying; a signature failure or processing error changes
// no state and is only visible in logs and metrics.
type WebhookHandlers struct {
	settlement *settlement.Service
	monnify    *monnify.Client
	secrets    WebhookSecrets
	logger     *logger.Logger
}

// NewWebhookHandlers creates webhook handlers
func NewWebhookHandlers(settlementService *settlement.Service, monnifyClient *monnify.Client, secrets WebhookSecrets, log *logger.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		settlement: settlementService,
		monnify:    monnifyClient,
		secrets:    secrets,
		logger:     log,
	}
}

// Receive handles POST /api/v1/webhooks/:vendor
func (h *WebhookHandlers) Receive(c *gin.Context) {
	vendor := c.Param("vendor")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("failed to read webhook body", "vendor", vendor, "error", err)
		metrics.WebhooksTotal.WithLabelValues(vendor, "read_error").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	secret, ok := h.secrets[vendor]
	if !ok {
		h.logger.Warn("webhook for unknown vendor", "vendor", vendor)
		metrics.WebhooksTotal.WithLabelValues(vendor, "unknown_vendor").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	if signature == "" {
		signature = c.GetHeader("monnify-signature")
	}
	if err := verifyHMACSignature(body, signature, secret); err != nil {
		h.logger.Warn("webhook signature verification failed",
			"vendor", vendor,
			"error", err,
			"client_ip", c.ClientIP(),
		)
		metrics.WebhooksTotal.WithLabelValues(vendor, "invalid_signature").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if err := h.process(c, vendor, body); err != nil {
		h.logger.Error("webhook processing failed", "vendor", vendor, "error", err)
		metrics.WebhooksTotal.WithLabelValues(vendor, "error").Inc()
	} else {
		metrics.WebhooksTotal.WithLabelValues(vendor, "processed").Inc()
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *WebhookHandlers) process(c *gin.Context, vendor string, body []byte) error {
	switch vendor {
	case "vtpass":
		event, err := vtpass.ParseWebhook(body)
		if err != nil {
			return err
		}
		return h.applyPurchaseEvent(c, event)
	case "monnify":
		event, err := monnify.ParseWebhook(body)
		if err != nil {
			return err
		}
		return h.applyFundingEvent(c, vendor, event)
	default:
		return fmt.Errorf("no webhook parser for vendor %s", vendor)
	}
}

func (h *WebhookHandlers) applyPurchaseEvent(c *gin.Context, event *entities.WebhookEvent) error {
	result := &entities.VendorResult{
		Outcome:   event.Outcome,
		VendorRef: event.VendorRef,
		Message:   event.Message,
	}

	// Transient store failures are worth a few attempts since the vendor
	// has already been answered 200
	err := retry.WithExponentialBackoff(c.Request.Context(), retry.DefaultConfig(), func() error {
		return h.settlement.HandleVendorResult(c.Request.Context(), event.Reference, result)
	}, func(err error) bool {
		return !derrors.IsAlreadyFinalized(err) && !derrors.IsNotFound(err)
	})
	if derrors.IsAlreadyFinalized(err) {
		// A requery or the sweep got there first
		return nil
	}
	return err
}

func (h *WebhookHandlers) applyFundingEvent(c *gin.Context, vendor string, event *entities.WebhookEvent) error {
	if event.Outcome != entities.VendorOutcomeSuccess {
		h.logger.Info("ignoring non-successful funding event", "vendor_ref", event.VendorRef)
		return nil
	}

	// Never trust the webhook amount alone; confirm against the vendor API
	// before crediting
	status, err := h.monnify.GetTransactionStatus(c.Request.Context(), event.VendorRef)
	if err != nil {
		return fmt.Errorf("could not confirm funding transaction: %w", err)
	}
	if !strings.EqualFold(status.PaymentStatus, "PAID") {
		return fmt.Errorf("funding transaction %s not confirmed as paid", event.VendorRef)
	}

	accountID, err := uuid.Parse(event.AccountRef)
	if err != nil {
		return fmt.Errorf("invalid account reference on funding event: %w", err)
	}

	return h.settlement.Fund(c.Request.Context(), accountID, event.Amount, vendor, event.SourceReference)
}

// verifyHMACSignature verifies HMAC-SHA256 webhook signature
func verifyHMACSignature(payload []byte, signature, secret string) error {
	if signature == "" {
		return fmt.Errorf("missing webhook signature")
	}

	signature = strings.TrimPrefix(signature, "sha256=")
	signature = strings.TrimPrefix(signature, "hmac-sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}

	return nil
}
