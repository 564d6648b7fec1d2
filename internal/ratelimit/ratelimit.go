package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter caps activity submissions per user.
type Limiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, error)
}

// RedisLimiter is a fixed window counter shared by every API instance.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("rate:activity:%s", userID)

	// The window is opened with SET NX EX and counted in the same MULTI, so a
	// counter never exists without its expiry.
	var count *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.window)
		count = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("failed to count submissions: %w", err)
	}
	return count.Val() <= int64(l.limit), nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is a per-process token bucket per user, used when Redis is
// not configured.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[uuid.UUID]*visitor
	every    rate.Limit
	burst    int
	now      func() time.Time
}

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	return &LocalLimiter{
		visitors: make(map[uuid.UUID]*visitor),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// Cleanup forgets users idle for longer than idle.
func (l *LocalLimiter) Cleanup(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, id)
		}
	}
}
