// Package metrics holds the Prometheus collectors of the storefront-service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckoutAttempts counts checkout initiations by outcome (redirected, failed, rejected).
	CheckoutAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "attempts_total",
		Help:      "Checkout initiations by outcome.",
	}, []string{"outcome"})

	// CatalogFetches counts catalog loads by source (cache, provider) and outcome.
	CatalogFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "catalog",
		Name:      "fetches_total",
		Help:      "Catalog fetches by source and outcome.",
	}, []string{"source", "outcome"})

	// CatalogFetchDuration tracks provider catalog latency.
	CatalogFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "catalog",
		Name:      "provider_fetch_duration_seconds",
		Help:      "Payment provider catalog fetch duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// UserSyncs counts user upserts triggered by identity transitions.
	UserSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "users",
		Name:      "syncs_total",
		Help:      "User store upserts by outcome.",
	}, []string{"outcome"})

	// LiveSessions tracks open live-view connections.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storefront",
		Subsystem: "live",
		Name:      "sessions",
		Help:      "Open live-view WebSocket sessions.",
	})

	// SubscriptionEvents counts consumed subscription status events by outcome.
	SubscriptionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "subscriptions",
		Name:      "events_total",
		Help:      "Subscription status events consumed by outcome.",
	}, []string{"outcome"})
)
