package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"focusforgeAPI/handlers"
	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/cache"
	"focusforgeAPI/internal/config"
	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/metrics"
	"focusforgeAPI/internal/notification"
	"focusforgeAPI/internal/points"
	"focusforgeAPI/internal/ratelimit"
	"focusforgeAPI/internal/store"
	"focusforgeAPI/internal/trust"
	"focusforgeAPI/internal/workers"
	"focusforgeAPI/middleware"
	"focusforgeAPI/services"

	_ "net/http/pprof"
)

func newPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	clerk.SetKey(cfg.ClerkSecretKey)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbPool, err := newPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer func() {
		log.Info("closing database connection pool")
		dbPool.Close()
	}()
	log.Info("connected to database")

	st := store.NewPostgresStore(dbPool)
	if err := st.Migrate(ctx); err != nil {
		log.Fatal("failed to migrate schema", "error", err)
	}
	if err := st.SeedBadges(ctx, badge.DefaultCatalog()); err != nil {
		log.Fatal("failed to seed badge catalogue", "error", err)
	}

	var (
		submissionLimiter ratelimit.Limiter
		snapshotCache     services.SnapshotCache
	)
	window := time.Hour
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable, using in-process limiter and no read cache", "error", err)
		} else {
			defer rdb.Close()
			submissionLimiter = ratelimit.NewRedisLimiter(rdb, cfg.Gamification.SubmissionsPerHour, window)
			snapshotCache = cache.NewLeaderboardCache(rdb, cfg.CacheTTL, log)
			log.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if submissionLimiter == nil {
		local := ratelimit.NewLocalLimiter(cfg.Gamification.SubmissionsPerHour, window)
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-bgCtx.Done():
					return
				case <-ticker.C:
					local.Cleanup(2 * window)
				}
			}
		}()
		submissionLimiter = local
	}

	notificationService := services.NewNotificationService(st, log)
	trustService := services.NewTrustService(st, trust.Limits{
		MaxMinutesPerEntry: cfg.Gamification.MaxMinutesPerEntry,
		MaxMinutesPerDay:   cfg.Gamification.MaxMinutesPerDay,
	}, notificationService, log)
	rules := points.DefaultRules()
	rules.DailyCap = cfg.Gamification.DailyPointCap
	rules.WeeklyBonusPoints = cfg.Gamification.WeeklyBonusPoints
	rules.WeeklyBonusDays = cfg.Gamification.WeeklyBonusDays
	pointsService := services.NewPointsService(st, rules, log)
	badgeService := services.NewBadgeService(st, notificationService, log)
	analyticsService := services.NewAnalyticsService(st, trustService, log)
	activityService := services.NewActivityService(st, cfg.Gamification, services.ActivityDeps{
		Limiter:       submissionLimiter,
		Trust:         trustService,
		Points:        pointsService,
		Badges:        badgeService,
		Analytics:     analyticsService,
		Notifications: notificationService,
	}, log)
	leaderboardService := services.NewLeaderboardService(st, snapshotCache, cfg.Leaderboard, log)

	var push services.PushNotificationProvider
	fcmService, err := notification.NewFCMService(ctx, cfg.FCMCredentialsJSON, cfg.FCMCredentialsFile, log)
	if err != nil {
		log.Warn("could not initialize FCM, notifications stay in-app", "error", err)
	} else {
		push = fcmService
		log.Info("FCM push provider initialized")
	}
	dispatcher := services.NewNotificationDispatcher(notificationService, push, log)
	notificationService.SetDispatcher(dispatcher)
	defer dispatcher.Stop()

	refreshWorker := workers.NewRefreshWorker(st, leaderboardService, cfg.Leaderboard.RefreshPollInterval, log)
	activityService.SetRefreshNotifier(refreshWorker)
	refreshWorker.Start()
	defer refreshWorker.Stop()

	scheduler := workers.NewScheduler(leaderboardService, notificationService, cfg.Leaderboard, log)
	scheduler.Start()
	defer scheduler.Stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)
	middleware.InitPrometheus(registry)

	ipLimiter := middleware.NewIPRateLimiter(cfg.RequestsPerSecond, cfg.RequestBurst)
	go ipLimiter.Cleanup(bgCtx)

	r := newRouter(routerDeps{
		cfg:           cfg,
		log:           log,
		verify:        middleware.VerifyClerkToken,
		limiter:       ipLimiter,
		gatherer:      registry,
		ping:          dbPool.Ping,
		activity:      handlers.NewActivityHandler(activityService, log),
		leaderboard:   handlers.NewLeaderboardHandler(leaderboardService, log),
		trust:         handlers.NewTrustHandler(trustService, log),
		badges:        handlers.NewBadgeHandler(badgeService, log),
		admin:         handlers.NewAdminHandler(badgeService, leaderboardService, log),
		analytics:     handlers.NewAnalyticsHandler(analyticsService, log),
		notifications: handlers.NewNotificationHandler(notificationService, log),
	})

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5*time.Minute + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("error starting server", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("got signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}

	log.Info("server shutdown complete")
}
