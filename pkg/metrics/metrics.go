package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcore_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// TenantResolutions counts tenant resolution outcomes by the signal that decided them.
	TenantResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcore_tenant_resolutions_total",
			Help: "Total number of tenant resolutions",
		},
		[]string{"source", "outcome"},
	)

	// IsolationViolations counts statements refused because no tenant was resolved.
	IsolationViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcore_isolation_violations_total",
			Help: "Total number of tenant isolation violations",
		},
		[]string{"operation"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcore_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// InvitationTransitions counts invitation state changes by resulting status.
	InvitationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcore_invitation_transitions_total",
			Help: "Total number of invitation state transitions",
		},
		[]string{"status"},
	)

	// RoleReconciliations counts reconciler runs by trigger and result (ok|drift|error).
	RoleReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcore_role_reconciliations_total",
			Help: "Total number of role reconciliations",
		},
		[]string{"trigger", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizcore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status", "scope"},
	)
)
