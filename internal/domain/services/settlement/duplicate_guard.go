package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paygo-service/paygo_service/internal/domain/entities"
	derrors "github.com/paygo-service/paygo_service/internal/domain/errors"
	"github.com/paygo-service/paygo_service/internal/infrastructure/cache"
	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/metrics"
)

// LatestOrderStore is the fallback lookup used when the cache is unavailable
type LatestOrderStore interface {
	LatestForAccount(ctx context.Context, accountID uuid.UUID) (*entities.Order, error)
}

// DuplicateGuard suppresses accidental resubmissions of the same purchase
// within a short window. A purchase is suspect when the account repeats
// either the amount or the beneficiary inside the window; the client
// reference is deliberately excluded so retries with a fresh reference are
// still caught.
type DuplicateGuard struct {
	cache  cache.RedisClient
	orders LatestOrderStore
	window time.Duration
	logger *logger.Logger
}

// NewDuplicateGuard creates a duplicate guard with the given window
func NewDuplicateGuard(c cache.RedisClient, orders LatestOrderStore, window time.Duration, log *logger.Logger) *DuplicateGuard {
	return &DuplicateGuard{
		cache:  c,
		orders: orders,
		window: window,
		logger: log,
	}
}

// Fingerprint derives a duplicate suppression key for one dimension of a
// purchase, such as its amount or its beneficiary
func Fingerprint(accountID uuid.UUID, dimension, value string) string {
	sum := sha256.Sum256([]byte(accountID.String() + "|" + dimension + "|" + value))
	return hex.EncodeToString(sum[:])
}

func guardKeys(accountID uuid.UUID, amount decimal.Decimal, beneficiary string) []string {
	return []string{
		fmt.Sprintf("dupguard:%s", Fingerprint(accountID, "amount", amount.String())),
		fmt.Sprintf("dupguard:%s", Fingerprint(accountID, "beneficiary", beneficiary)),
	}
}

// Check claims the amount and beneficiary fingerprints for the window. The
// first caller wins; a purchase that collides with either claim inside the
// window is rejected as a possible duplicate. When the cache is down the
// guard degrades to comparing against the account's latest order rather than
// failing the purchase outright.
func (g *DuplicateGuard) Check(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, beneficiary string) error {
	for _, key := range guardKeys(accountID, amount, beneficiary) {
		claimed, err := g.cache.SetNX(ctx, key, time.Now().Unix(), g.window)
		if err != nil {
			g.logger.Warn("duplicate guard cache unavailable, using database fallback", "error", err)
			return g.checkFallback(ctx, accountID, amount, beneficiary)
		}
		if !claimed {
			metrics.DuplicatesRejected.Inc()
			g.logger.Info("purchase rejected as possible duplicate",
				"account_id", accountID.String(),
				"beneficiary", beneficiary,
			)
			return derrors.PossibleDuplicateError(int(g.window.Seconds()))
		}
	}
	return nil
}

// Forget releases the fingerprint claims. Called when the purchase fails
// before any vendor attempt, so an immediate legitimate retry is not blocked.
func (g *DuplicateGuard) Forget(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, beneficiary string) {
	for _, key := range guardKeys(accountID, amount, beneficiary) {
		if err := g.cache.Del(ctx, key); err != nil {
			g.logger.Warn("failed to release duplicate guard claim", "error", err)
		}
	}
}

func (g *DuplicateGuard) checkFallback(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, beneficiary string) error {
	latest, err := g.orders.LatestForAccount(ctx, accountID)
	if err != nil {
		// The fallback is best-effort; a read failure here must not block purchases
		g.logger.Error("duplicate guard fallback lookup failed", "error", err)
		return nil
	}
	if latest == nil {
		return nil
	}
	if time.Since(latest.CreatedAt) < g.window &&
		latest.Status != entities.OrderStatusFailed &&
		(latest.Amount.Equal(amount) || latest.Beneficiary == beneficiary) {
		metrics.DuplicatesRejected.Inc()
		return derrors.PossibleDuplicateError(int(g.window.Seconds()))
	}
	return nil
}
