// Package metrics registers the Prometheus collectors used by the settlement core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts settled orders by vendor and terminal status
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paygo_orders_total",
		Help: "Orders by vendor and final status",
	}, []string{"vendor", "status"})

	// OrdersAmbiguous counts vendor calls that ended without a definitive outcome
	OrdersAmbiguous = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paygo_orders_ambiguous_total",
		Help: "Vendor calls left pending due to timeout or transport failure",
	}, []string{"vendor"})

	// DuplicatesRejected counts requests rejected by the duplicate guard
	DuplicatesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paygo_duplicate_rejections_total",
		Help: "Purchase requests rejected as accidental resubmissions",
	})

	// VendorRequestDuration observes vendor API latency
	VendorRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paygo_vendor_request_duration_seconds",
		Help:    "Latency of outbound vendor API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"vendor", "operation"})

	// WebhooksTotal counts webhook deliveries by vendor and handling result
	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paygo_webhooks_total",
		Help: "Webhook deliveries by vendor and result",
	}, []string{"vendor", "result"})

	// ReconciliationResolved counts orders resolved by the background sweep
	ReconciliationResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paygo_reconciliation_resolved_total",
		Help: "Stale orders resolved by the reconciliation sweep",
	}, []string{"status"})

	// ReconciliationStale gauges orders past the give-up horizon awaiting review
	ReconciliationStale = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paygo_reconciliation_stale_orders",
		Help: "Unsettled orders past the give-up horizon",
	})

	// NotificationsDropped counts events dropped because the dispatch queue was full
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paygo_notifications_dropped_total",
		Help: "Notification events dropped by the best-effort dispatcher",
	})

	// DatabaseConnectionsGauge tracks database pool state
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "paygo_database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})
)
