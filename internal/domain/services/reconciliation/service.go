// Package reconciliation resolves orders that settled ambiguously. The sweep
// requeries each vendor for the true outcome and applies it through the same
// finalization path as webhooks, so all resolution races are decided by the
// order store's compare-and-set. Orders the vendor still cannot account for
// are surfaced for manual review; money is never refunded on a guess.
package reconciliation

import (
	"context"
	"time"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
	"github.com/paygo-service/paygo_service/internal/domain/services/settlement"
	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/metrics"
	"github.com/paygo-service/paygo_service/pkg/retry"
)

// UnsettledStore lists orders awaiting resolution
type UnsettledStore interface {
	ListUnsettled(ctx context.Context, before time.Time, limit int) ([]entities.Order, error)
	CountUnsettled(ctx context.Context, before time.Time) (int64, error)
}

// Resolver applies a vendor verdict to an order
type Resolver interface {
	HandleVendorResult(ctx context.Context, reference string, result *entities.VendorResult) error
	Adapter(vendor string) (settlement.VendorAdapter, bool)
}

// Config tunes the sweep
type Config struct {
	// Grace is how old an unsettled order must be before the sweep touches it,
	// leaving room for the synchronous requery and webhooks to win first
	Grace time.Duration
	// GiveUp is the age past which an order is reported for manual review
	// instead of being requeried again
	GiveUp time.Duration
	// BatchSize caps the orders processed per run
	BatchSize int
}

// Service requeries ambiguous orders and finalizes the ones the vendor can
// account for
type Service struct {
	orders   UnsettledStore
	resolver Resolver
	cfg      Config
	logger   *logger.Logger
}

// NewService creates a reconciliation service
func NewService(orders UnsettledStore, resolver Resolver, cfg Config, log *logger.Logger) *Service {
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Minute
	}
	if cfg.GiveUp <= 0 {
		cfg.GiveUp = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Service{
		orders:   orders,
		resolver: resolver,
		cfg:      cfg,
		logger:   log,
	}
}

// SweepResult summarizes one reconciliation run
type SweepResult struct {
	Examined  int
	Delivered int
	Failed    int
	Pending   int
	Stale     int
}

// Sweep processes one batch of unsettled orders
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().Add(-s.cfg.Grace)
	orders, err := s.orders.ListUnsettled(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Examined: len(orders)}
	giveUpBefore := time.Now().Add(-s.cfg.GiveUp)

	for _, order := range orders {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if order.CreatedAt.Before(giveUpBefore) {
			result.Stale++
			s.logger.Error("order stuck past give-up horizon, manual review required",
				"reference", order.Reference,
				"vendor", order.Vendor,
				"amount", order.Amount.String(),
				"age_hours", time.Since(order.CreatedAt).Hours(),
			)
			continue
		}

		if order.Type == entities.OrderTypeFunding {
			// Funding orders finish when the gateway redelivers its webhook;
			// there is no vendor purchase to requery
			result.Pending++
			continue
		}

		s.resolveOrder(ctx, &order, result)
	}

	s.updateStaleGauge(ctx, giveUpBefore)

	s.logger.Info("reconciliation sweep complete",
		"examined", result.Examined,
		"delivered", result.Delivered,
		"failed", result.Failed,
		"pending", result.Pending,
		"stale", result.Stale,
	)
	return result, nil
}

func (s *Service) resolveOrder(ctx context.Context, order *entities.Order, result *SweepResult) {
	adapter, ok := s.resolver.Adapter(order.Vendor)
	if !ok {
		s.logger.Error("no adapter registered for vendor", "vendor", order.Vendor, "reference", order.Reference)
		result.Pending++
		return
	}

	var verdict *entities.VendorResult
	// Requery is a read, so retrying on transport failure is safe
	err := retry.WithExponentialBackoff(ctx, retry.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}, func() error {
		var qerr error
		verdict, qerr = adapter.Requery(ctx, order.Reference)
		return qerr
	}, nil)
	if err != nil {
		s.logger.Warn("requery failed, order stays reserved",
			"reference", order.Reference,
			"vendor", order.Vendor,
			"error", err,
		)
		result.Pending++
		return
	}

	switch verdict.Outcome {
	case entities.VendorOutcomeSuccess, entities.VendorOutcomeRejected:
		if err := s.resolver.HandleVendorResult(ctx, order.Reference, verdict); err != nil && !derrors.IsAlreadyFinalized(err) {
			s.logger.Error("failed to apply reconciliation verdict",
				"reference", order.Reference,
				"error", err,
			)
			result.Pending++
			return
		}
		if verdict.Outcome == entities.VendorOutcomeSuccess {
			result.Delivered++
			metrics.ReconciliationResolved.WithLabelValues(string(entities.OrderStatusDelivered)).Inc()
		} else {
			result.Failed++
			metrics.ReconciliationResolved.WithLabelValues(string(entities.OrderStatusFailed)).Inc()
		}
	default:
		result.Pending++
	}
}

func (s *Service) updateStaleGauge(ctx context.Context, giveUpBefore time.Time) {
	count, err := s.orders.CountUnsettled(ctx, giveUpBefore)
	if err != nil {
		s.logger.Warn("failed to count stale orders", "error", err)
		return
	}
	metrics.ReconciliationStale.Set(float64(count))
}
