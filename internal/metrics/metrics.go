package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActivitiesLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusforge_activities_logged_total",
			Help: "Activity submissions by outcome",
		},
		[]string{"result"},
	)
	PointsAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusforge_points_awarded_total",
			Help: "Points written to the ledger",
		},
		[]string{"reason"},
	)
	BadgesAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusforge_badges_awarded_total",
			Help: "Badge awards issued",
		},
	)
	SuspiciousFlags = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusforge_suspicious_flags_total",
			Help: "Anti-cheat flags raised",
		},
		[]string{"type", "severity"},
	)
	LeaderboardRecompute = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "focusforge_leaderboard_recompute_seconds",
			Help:    "Time spent recomputing one leaderboard scope",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"period"},
	)
	LeaderboardReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusforge_leaderboard_reads_total",
			Help: "Leaderboard reads by source",
		},
		[]string{"source"},
	)
	RefreshTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusforge_refresh_tasks_processed_total",
			Help: "Leaderboard refresh tasks drained from the outbox",
		},
		[]string{"result"},
	)
)

// Register adds the domain collectors to reg. Call once from main.go.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ActivitiesLogged,
		PointsAwarded,
		BadgesAwarded,
		SuspiciousFlags,
		LeaderboardRecompute,
		LeaderboardReads,
		RefreshTasks,
	)
}
