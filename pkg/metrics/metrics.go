package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records credential resolutions by method (token|api_key) and result (success|failure|inactive).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyward_auth_attempts_total",
			Help: "Total number of credential resolution attempts",
		},
		[]string{"method", "result"},
	)

	// PermissionChecks counts requirement evaluations and their outcome (allowed|denied).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyward_permission_checks_total",
			Help: "Total number of permission and role checks",
		},
		[]string{"requirement", "result"},
	)

	// APIKeyOperations counts API key lifecycle operations (create|activate|deactivate|delete).
	APIKeyOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyward_api_key_operations_total",
			Help: "Total number of API key lifecycle operations",
		},
		[]string{"operation"},
	)

	// IdentityReconciliations counts OAuth logins by provider and outcome (created|linked|refreshed).
	IdentityReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyward_identity_reconciliations_total",
			Help: "Total number of external identity reconciliations",
		},
		[]string{"provider", "outcome"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyward_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
