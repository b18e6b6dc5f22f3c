package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/paygo-service/paygo_service/internal/adapters/monnify"
	"github.com/paygo-service/paygo_service/internal/adapters/vtpass"
	"github.com/paygo-service/paygo_service/internal/api/handlers"
	"github.com/paygo-service/paygo_service/internal/api/routes"
	"github.com/paygo-service/paygo_service/internal/domain/entities"
	"github.com/paygo-service/paygo_service/internal/domain/services/ledger"
	"github.com/paygo-service/paygo_service/internal/domain/services/notification"
	"github.com/paygo-service/paygo_service/internal/domain/services/reconciliation"
	"github.com/paygo-service/paygo_service/internal/domain/services/settlement"
	"github.com/paygo-service/paygo_service/internal/infrastructure/adapters"
	"github.com/paygo-service/paygo_service/internal/infrastructure/cache"
	"github.com/paygo-service/paygo_service/internal/infrastructure/config"
	"github.com/paygo-service/paygo_service/internal/infrastructure/database"
	"github.com/paygo-service/paygo_service/internal/infrastructure/repositories"
	reconworker "github.com/paygo-service/paygo_service/internal/workers/reconciliation"
	"github.com/paygo-service/paygo_service/pkg/graceful"
	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize OpenTelemetry tracing
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	stopPoolMetrics := database.StartPoolMetrics(db, 15*time.Second)

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}

	// Repositories
	accountRepo := repositories.NewAccountRepository(db, log.Zap())
	orderRepo := repositories.NewOrderRepository(db, log.Zap())

	// Vendor integrations
	vtpassClient := vtpass.NewClient(vtpass.Config{
		APIKey:    cfg.Vendors.VTPass.APIKey,
		SecretKey: cfg.Vendors.VTPass.SecretKey,
		PublicKey: cfg.Vendors.VTPass.PublicKey,
		BaseURL:   cfg.Vendors.VTPass.BaseURL,
		Timeout:   time.Duration(cfg.Vendors.VTPass.Timeout) * time.Second,
	}, log)
	vtpassAdapter := vtpass.NewAdapter(vtpassClient, log)

	monnifyClient := monnify.NewClient(monnify.Config{
		APIKey:       cfg.Vendors.Monnify.APIKey,
		SecretKey:    cfg.Vendors.Monnify.SecretKey,
		ContractCode: cfg.Vendors.Monnify.ContractCode,
		BaseURL:      cfg.Vendors.Monnify.BaseURL,
		Timeout:      time.Duration(cfg.Vendors.Monnify.Timeout) * time.Second,
		TokenGrace:   time.Duration(cfg.Vendors.Monnify.TokenGraceSecs) * time.Second,
	}, log)

	// Notification dispatcher
	var notifier settlement.Notifier
	dispatcher := buildDispatcher(cfg, accountRepo, log)
	if dispatcher != nil {
		dispatcher.Start()
		notifier = dispatcher
	} else {
		notifier = noopNotifier{}
	}

	// Domain services
	ledgerService := ledger.NewService(accountRepo, log)
	guard := settlement.NewDuplicateGuard(redisClient, orderRepo, cfg.Settlement.DuplicateWindowDuration(), log)
	settlementService := settlement.NewService(
		ledgerService,
		orderRepo,
		guard,
		[]settlement.VendorAdapter{vtpassAdapter},
		notifier,
		settlement.Options{
			VendorTimeout:      cfg.Settlement.VendorTimeoutDuration(),
			RequeryOnAmbiguous: cfg.Settlement.RequeryOnAmbiguous,
		},
		log,
	)

	reconService := reconciliation.NewService(orderRepo, settlementService, reconciliation.Config{
		Grace:     time.Duration(cfg.Reconciliation.GraceMinutes) * time.Minute,
		GiveUp:    time.Duration(cfg.Reconciliation.GiveUpHours) * time.Hour,
		BatchSize: cfg.Reconciliation.BatchSize,
	}, log)

	// HTTP surface
	router := routes.SetupRoutes(cfg, log, &routes.Handlers{
		Orders: handlers.NewOrderHandlers(settlementService, log),
		Wallet: handlers.NewWalletHandlers(ledgerService, log),
		Webhooks: handlers.NewWebhookHandlers(settlementService, monnifyClient, handlers.WebhookSecrets{
			"vtpass":  cfg.Vendors.VTPass.WebhookSecret,
			"monnify": cfg.Vendors.Monnify.WebhookSecret,
		}, log),
		Health: handlers.NewHealthHandlers(db, redisClient),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background reconciliation
	var worker *reconworker.Worker
	if cfg.Reconciliation.Enabled {
		worker = reconworker.NewWorker(reconService, cfg.Reconciliation.Schedule, log.Zap())
		if err := worker.Start(); err != nil {
			log.Fatal("Failed to start reconciliation worker", "error", err)
		}
	}

	go func() {
		log.Info("Starting server", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", "error", err)
		}
	}()

	shutdown := graceful.NewShutdownManager(server, db.DB, log)
	shutdown.Register(graceful.ShutdownFunc(func(timeout time.Duration) error {
		if worker != nil {
			worker.Stop()
		}
		if dispatcher != nil {
			dispatcher.Stop()
		}
		stopPoolMetrics()
		redisClient.Close()
		return nil
	}))
	shutdown.WaitForShutdown()
}

func buildDispatcher(cfg *config.Config, accountRepo *repositories.AccountRepository, log *logger.Logger) *notification.Dispatcher {
	if !cfg.Notification.Enabled {
		return nil
	}
	emailer, err := adapters.NewEmailService(log.Zap(), adapters.EmailServiceConfig{
		APIKey:    cfg.Notification.SendGridKey,
		FromEmail: cfg.Notification.FromEmail,
		FromName:  cfg.Notification.FromName,
	})
	if err != nil {
		log.Warn("Notification dispatcher disabled", "error", err)
		return nil
	}
	return notification.NewDispatcher(emailer, accountRepo, cfg.Notification.QueueSize, log)
}

// noopNotifier satisfies the notifier contract when email is disabled
type noopNotifier struct{}

func (noopNotifier) Publish(event entities.NotificationEvent) {}
