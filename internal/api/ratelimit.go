package api

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/redis"
)

// Limiter decides whether a client may issue another request
type Limiter interface {
	Allow(ctx context.Context, client string) (bool, error)
}

// NewLimiter picks the Redis sliding window when Redis is enabled,
// otherwise a per-process token bucket per client.
func NewLimiter(cfg *config.Config, client *redis.Client) Limiter {
	if client != nil && client.Enabled() {
		return NewRedisLimiter(client, cfg.APIRateLimitRPS)
	}
	return NewLocalLimiter(cfg.APIRateLimitRPS, cfg.APIRateBurst)
}

// RedisLimiter shares the per-client window across API replicas
type RedisLimiter struct {
	limiter   *redis.RateLimiter
	perSecond int
}

// NewRedisLimiter creates a limiter allowing rps requests per second per client
func NewRedisLimiter(client *redis.Client, rps float64) *RedisLimiter {
	perSecond := int(math.Ceil(rps))
	if perSecond < 1 {
		perSecond = 1
	}
	return &RedisLimiter{
		limiter:   redis.NewRateLimiter(client, redis.Namespace),
		perSecond: perSecond,
	}
}

// Allow implements Limiter
func (l *RedisLimiter) Allow(ctx context.Context, client string) (bool, error) {
	allowed, _, err := l.limiter.Allow(ctx, redis.APIRateLimit(client, l.perSecond))
	return allowed, err
}

// LocalLimiter keeps one token bucket per client in memory
type LocalLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLocalLimiter creates a token bucket limiter
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *LocalLimiter) get(client string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[client]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[client]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[client] = limiter
	return limiter
}

// Allow implements Limiter
func (l *LocalLimiter) Allow(_ context.Context, client string) (bool, error) {
	return l.get(client).Allow(), nil
}
