package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	LogMode     string
	DatabaseURL string

	ClerkSecretKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	FCMCredentialsFile string
	// Base64 encoded service account JSON; preferred over the file.
	FCMCredentialsJSON string

	MetricsUser string
	MetricsPass string
	PprofSecret string

	// Per-IP limits for the public router.
	RequestsPerSecond float64
	RequestBurst      int

	Gamification Gamification
	Leaderboard  Leaderboard
}

type Gamification struct {
	DailyPointCap      int
	WeeklyBonusPoints  int
	WeeklyBonusDays    int
	MaxMinutesPerEntry int
	MaxMinutesPerDay   int
	MinMinutes         int
	MaxMinutes         int
	MaxPastDays        int
	SubmissionsPerHour int
}

type Leaderboard struct {
	Categories          []string
	RetentionDays       int
	AggregationInterval time.Duration
	RefreshPollInterval time.Duration
	Concurrency         int
	AggregateOnStart    bool
}

var defaultCategories = []string{"Coding", "Health", "Reading", "Academics", "Career Skills"}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getString("PORT", "3333"),
		LogMode:            getString("LOG_MODE", "dev"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ClerkSecretKey:     os.Getenv("CLERK_SECRET_KEY"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		CacheTTL:           getDuration("LEADERBOARD_CACHE_TTL", 5*time.Minute),
		FCMCredentialsFile: getString("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		FCMCredentialsJSON: os.Getenv("FCM_SERVICE_ACCOUNT_JSON"),
		MetricsUser:        os.Getenv("METRICS_USER"),
		MetricsPass:        os.Getenv("METRICS_PASS"),
		PprofSecret:        os.Getenv("PPROF_SECRET"),
		RequestsPerSecond:  getFloat("RATE_LIMIT_RPS", 5),
		RequestBurst:       getInt("RATE_LIMIT_BURST", 30),
		Gamification: Gamification{
			DailyPointCap:      getInt("DAILY_POINT_CAP", 100),
			WeeklyBonusPoints:  getInt("WEEKLY_BONUS_POINTS", 50),
			WeeklyBonusDays:    getInt("WEEKLY_BONUS_DAYS", 5),
			MaxMinutesPerEntry: getInt("MAX_MINUTES_PER_ENTRY", 480),
			MaxMinutesPerDay:   getInt("MAX_MINUTES_PER_DAY", 720),
			MinMinutes:         getInt("MIN_MINUTES", 10),
			MaxMinutes:         getInt("MAX_MINUTES", 600),
			MaxPastDays:        getInt("MAX_PAST_DAYS", 30),
			SubmissionsPerHour: getInt("SUBMISSIONS_PER_HOUR", 10),
		},
		Leaderboard: Leaderboard{
			Categories:          getList("LEADERBOARD_CATEGORIES", defaultCategories),
			RetentionDays:       getInt("SNAPSHOT_RETENTION_DAYS", 90),
			AggregationInterval: getDuration("AGGREGATION_INTERVAL", 24*time.Hour),
			RefreshPollInterval: getDuration("REFRESH_POLL_INTERVAL", 30*time.Second),
			Concurrency:         getInt("AGGREGATION_CONCURRENCY", 4),
			AggregateOnStart:    getBool("AGGREGATE_ON_START", true),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.ClerkSecretKey == "" {
		return nil, fmt.Errorf("CLERK_SECRET_KEY environment variable is not set")
	}
	return cfg, nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
