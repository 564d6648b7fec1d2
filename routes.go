package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"focusforgeAPI/handlers"
	"focusforgeAPI/internal/config"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/middleware"
)

type routerDeps struct {
	cfg      *config.Config
	log      *logger.Logger
	verify   middleware.TokenVerifier
	limiter  *middleware.IPRateLimiter
	gatherer prometheus.Gatherer
	ping     func(ctx context.Context) error

	activity      *handlers.ActivityHandler
	leaderboard   *handlers.LeaderboardHandler
	trust         *handlers.TrustHandler
	badges        *handlers.BadgeHandler
	admin         *handlers.AdminHandler
	analytics     *handlers.AnalyticsHandler
	notifications *handlers.NotificationHandler
}

func newRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()

	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(d.limiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	operator := middleware.BasicAuth(d.cfg.MetricsUser, d.cfg.MetricsPass)
	standardRouter.Handle("/metrics", operator(promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofGuard(d.cfg.PprofSecret)(http.DefaultServeMux))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := d.ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "focusforge-api"}`))
	}).Methods("GET")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/leaderboard", d.leaderboard.GetLeaderboard).Methods("GET")
	api.HandleFunc("/leaderboard/categories", d.leaderboard.GetCategories).Methods("GET")
	api.HandleFunc("/badges", d.badges.ListBadges).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(operator)
	admin.HandleFunc("/badges/backfill", d.admin.BackfillBadges).Methods("POST")
	admin.HandleFunc("/leaderboard/recompute", d.admin.RecomputeLeaderboards).Methods("POST")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuth(d.verify, d.log))

	protected.HandleFunc("/activities", d.activity.LogActivity).Methods("POST")
	protected.HandleFunc("/leaderboard/me", d.leaderboard.GetMyRank).Methods("GET")
	protected.HandleFunc("/trust", d.trust.GetTrustSummary).Methods("GET")
	protected.HandleFunc("/badges/me", d.badges.ListMyBadges).Methods("GET")
	protected.HandleFunc("/analytics/summaries", d.analytics.GetDailySummaries).Methods("GET")
	protected.HandleFunc("/notifications/register-device", d.notifications.RegisterDevice).Methods("POST")

	return r
}
