package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"focusforgeAPI/internal/leaderboard"
	"focusforgeAPI/internal/logger"
)

// NewRedisClient connects and pings. Callers treat an error as "run without a cache".
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

type cachedScope struct {
	Generation int64                      `json:"generation"`
	Start      string                     `json:"start"`
	End        string                     `json:"end"`
	Rows       []*leaderboard.SnapshotRow `json:"rows"`
}

// setRetries bounds optimistic retries when another writer touches the key
// between WATCH and EXEC.
const setRetries = 3

var errSuperseded = errors.New("cached generation is newer")

// LeaderboardCache keeps the latest snapshot generation per scope in Redis.
// Every method is a no-op on a nil cache, and Redis errors read as a miss.
type LeaderboardCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewLeaderboardCache(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *LeaderboardCache {
	if rdb == nil {
		return nil
	}
	return &LeaderboardCache{rdb: rdb, ttl: ttl, log: log}
}

func windowOf(key leaderboard.ScopeKey) (string, string) {
	return key.Start.Format("2006-01-02"), key.End.Format("2006-01-02")
}

// Get returns the cached rows when they belong to key's exact window.
func (c *LeaderboardCache) Get(ctx context.Context, key leaderboard.ScopeKey) ([]*leaderboard.SnapshotRow, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key.CacheKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("leaderboard cache read failed", "key", key.CacheKey(), "error", err)
		}
		return nil, false
	}

	var cs cachedScope
	if err := json.Unmarshal(raw, &cs); err != nil {
		c.log.Warn("leaderboard cache entry unreadable", "key", key.CacheKey(), "error", err)
		return nil, false
	}
	start, end := windowOf(key)
	if cs.Start != start || cs.End != end {
		return nil, false
	}
	return cs.Rows, true
}

// supersedes reports whether the cached payload holds a newer generation than
// generation. Unreadable payloads never win.
func supersedes(cached []byte, generation int64) bool {
	var cs cachedScope
	if err := json.Unmarshal(cached, &cs); err != nil {
		return false
	}
	return cs.Generation > generation
}

// Set stores rows as generation of key unless a newer generation is already
// cached. The check and the write run in one WATCH/MULTI round.
func (c *LeaderboardCache) Set(ctx context.Context, key leaderboard.ScopeKey, generation int64, rows []*leaderboard.SnapshotRow) {
	if c == nil {
		return
	}
	start, end := windowOf(key)
	payload, err := json.Marshal(cachedScope{Generation: generation, Start: start, End: end, Rows: rows})
	if err != nil {
		c.log.Warn("failed to encode leaderboard cache entry", "key", key.CacheKey(), "error", err)
		return
	}

	cacheKey := key.CacheKey()
	write := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, cacheKey).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && supersedes(current, generation) {
			return errSuperseded
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey, payload, c.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < setRetries; attempt++ {
		err := c.rdb.Watch(ctx, write, cacheKey)
		switch {
		case err == nil:
			return
		case errors.Is(err, errSuperseded):
			c.log.Debug("kept newer leaderboard cache entry", "key", cacheKey, "generation", generation)
			return
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			c.log.Warn("leaderboard cache write failed", "key", cacheKey, "error", err)
			return
		}
	}
	c.log.Warn("leaderboard cache write kept losing races", "key", cacheKey, "generation", generation)
}
