package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paygo-service/paygo_service/internal/api/handlers"
	"github.com/paygo-service/paygo_service/internal/api/middleware"
	"github.com/paygo-service/paygo_service/internal/infrastructure/config"
	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/tracing"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Orders   *handlers.OrderHandlers
	Wallet   *handlers.WalletHandlers
	Webhooks *handlers.WebhookHandlers
	Health   *handlers.HealthHandlers
}

// SetupRoutes configures all application routes
func SetupRoutes(cfg *config.Config, log *logger.Logger, h *Handlers) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Global middleware, order matters
	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Operational endpoints
	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// Vendor callbacks authenticate by HMAC signature, not bearer token
	v1.POST("/webhooks/:vendor", h.Webhooks.Receive)

	authed := v1.Group("")
	authed.Use(middleware.Authentication(cfg, log))
	authed.Use(middleware.RateLimit(120))
	{
		authed.POST("/orders/purchase", h.Orders.Purchase)
		authed.GET("/orders/:reference", h.Orders.GetOrder)
		authed.GET("/wallet/balance", h.Wallet.Balance)
		authed.GET("/wallet/statement", h.Wallet.Statement)
	}

	return router
}
