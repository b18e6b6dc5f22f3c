package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	"github.com/paygo-service/paygo_service/internal/domain/services/settlement"
	"github.com/paygo-service/paygo_service/pkg/logger"
)

// OrderHandlers serves purchase submission and order status lookups
type OrderHandlers struct {
	settlement *settlement.Service
	logger     *logger.Logger
}

// NewOrderHandlers creates order handlers
func NewOrderHandlers(settlementService *settlement.Service, log *logger.Logger) *OrderHandlers {
	return &OrderHandlers{
		settlement: settlementService,
		logger:     log,
	}
}

// Purchase handles POST /api/v1/orders/purchase
func (h *OrderHandlers) Purchase(c *gin.Context) {
	accountID, err := getAccountID(c)
	if err != nil {
		respondUnauthorized(c, "authentication required")
		return
	}

	var req entities.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid purchase request: "+err.Error())
		return
	}

	resp, err := h.settlement.Purchase(c.Request.Context(), accountID, &req)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	// An ambiguous settlement is reported as accepted-but-unconfirmed
	status := http.StatusOK
	if resp.Status == entities.OrderStatusProcessing {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// GetOrder handles GET /api/v1/orders/:reference
func (h *OrderHandlers) GetOrder(c *gin.Context) {
	accountID, err := getAccountID(c)
	if err != nil {
		respondUnauthorized(c, "authentication required")
		return
	}

	reference := c.Param("reference")
	if reference == "" {
		respondBadRequest(c, "order reference is required")
		return
	}

	order, err := h.settlement.GetOrder(c.Request.Context(), reference)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if order.AccountID != accountID {
		// Orders are private to their account; report not found rather
		// than leaking existence
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "order not found", nil)
		return
	}

	c.JSON(http.StatusOK, order)
}
