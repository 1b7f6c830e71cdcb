package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync metrics
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wombot_sweep_duration_seconds",
			Help:    "Duration of a full hourly sweep across configured guilds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	GuildSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wombot_guild_syncs_total",
			Help: "Guild reconciliations by trigger and outcome",
		},
		[]string{"trigger", "outcome"}, // trigger: sweep, manual; outcome: ok, aborted, failed, busy
	)

	RoleChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wombot_role_changes_total",
			Help: "Managed role grants and revocations applied to members",
		},
		[]string{"direction"}, // "added", "removed"
	)

	MemberFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wombot_member_failures_total",
			Help: "Per-member failures during reconciliation",
		},
		[]string{"kind"}, // "forbidden", "error", "nickname"
	)

	// WOM client metrics
	WOMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wombot_wom_requests_total",
			Help: "Wise Old Man group fetches by outcome",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wombot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Scheduler metrics
	LoopRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wombot_loop_runs_total",
			Help: "Background loop iterations by loop and result",
		},
		[]string{"loop", "result"}, // result: "ok", "error"
	)

	// Guild lifecycle metrics
	ObservedGuilds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wombot_observed_guilds",
			Help: "Guilds the bot can currently observe",
		},
	)

	InactiveGuilds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wombot_inactive_guilds",
			Help: "Configured guilds currently carrying an inactive marker",
		},
	)
)
