// Package metrics holds the Prometheus collectors of the arcade core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Authentication outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// AuthAttempts counts register and login attempts by operation and outcome.
var AuthAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arcadia_auth_attempts_total",
		Help: "Total number of authentication attempts",
	},
	[]string{"operation", "outcome"},
)

// AuditEvents counts audit events written, by severity.
var AuditEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arcadia_audit_events_total",
		Help: "Total number of audit events written",
	},
	[]string{"severity"},
)

// AuditFailures counts audit events that could not be stored.
var AuditFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "arcadia_audit_failures_total",
		Help: "Total number of audit events that failed to persist",
	},
)

// SessionsStarted counts opened game sessions by game policy.
var SessionsStarted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arcadia_game_sessions_started_total",
		Help: "Total number of game sessions started",
	},
	[]string{"policy"},
)

// TokensMoved counts tokens moved through the ledger by transaction kind.
var TokensMoved = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arcadia_tokens_total",
		Help: "Total number of tokens moved through the ledger",
	},
	[]string{"kind"},
)

// AchievementsGranted counts newly granted achievements by kind.
var AchievementsGranted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arcadia_achievements_granted_total",
		Help: "Total number of achievements granted",
	},
	[]string{"kind"},
)

// ThreatDetections counts positive threat detections by type.
var ThreatDetections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arcadia_threat_detections_total",
		Help: "Total number of positive threat detections",
	},
	[]string{"type"},
)

// MaintenanceRuns counts maintenance job runs by job and status.
var MaintenanceRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "arcadia_maintenance_runs_total",
		Help: "Total number of maintenance job runs",
	},
	[]string{"job", "status"},
)

// CatalogGames is the number of active catalog games by policy, as of the last snapshot.
var CatalogGames = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "arcadia_catalog_games",
		Help: "Active catalog games at the last maintenance snapshot",
	},
	[]string{"policy"},
)

// CatalogPlays is the cumulative play count of active games by policy, as of the last snapshot.
var CatalogPlays = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "arcadia_catalog_plays",
		Help: "Cumulative plays of active games at the last maintenance snapshot",
	},
	[]string{"policy"},
)

// RecentAuditEvents is the number of audit events of the last 24 hours by severity.
var RecentAuditEvents = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "arcadia_audit_events_recent",
		Help: "Audit events stored during the 24 hours before the last maintenance snapshot",
	},
	[]string{"severity"},
)

// Register registers all collectors with reg. Panics on duplicate registration.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		AuthAttempts,
		AuditEvents,
		AuditFailures,
		SessionsStarted,
		TokensMoved,
		AchievementsGranted,
		ThreatDetections,
		MaintenanceRuns,
		CatalogGames,
		CatalogPlays,
		RecentAuditEvents,
	)
}
