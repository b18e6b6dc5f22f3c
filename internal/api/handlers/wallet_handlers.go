package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/paygo-service/paygo_service/internal/domain/services/ledger"
	"github.com/paygo-service/paygo_service/pkg/logger"
)

// WalletHandlers serves wallet balance and statement lookups
type WalletHandlers struct {
	ledger *ledger.Service
	logger *logger.Logger
}

// NewWalletHandlers creates wallet handlers
func NewWalletHandlers(ledgerService *ledger.Service, log *logger.Logger) *WalletHandlers {
	return &WalletHandlers{
		ledger: ledgerService,
		logger: log,
	}
}

// Balance handles GET /api/v1/wallet/balance
func (h *WalletHandlers) Balance(c *gin.Context) {
	accountID, err := getAccountID(c)
	if err != nil {
		respondUnauthorized(c, "authentication required")
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// Statement handles GET /api/v1/wallet/statement
func (h *WalletHandlers) Statement(c *gin.Context) {
	accountID, err := getAccountID(c)
	if err != nil {
		respondUnauthorized(c, "authentication required")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.ledger.Statement(c.Request.Context(), accountID, limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
