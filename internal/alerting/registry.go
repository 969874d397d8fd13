package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// CooldownRegistry gates alerts per symbol. TryAcquire atomically checks the
// cooldown and, when the alert may fire, records the attempt before any
// dispatch happens. Semantics are at-most-one-in-flight per cooldown window,
// not exactly-once: a later dispatch failure does not reset the gate.
type CooldownRegistry interface {
	TryAcquire(ctx context.Context, symbol string, now time.Time) bool
}

// MemoryRegistry is the in-process cooldown registry. Entries are never
// deleted; growth is bounded by the symbol universe.
type MemoryRegistry struct {
	cooldown time.Duration

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewMemoryRegistry constructs an in-memory registry.
func NewMemoryRegistry(cooldown time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		cooldown:  cooldown,
		lastAlert: make(map[string]time.Time),
	}
}

// TryAcquire implements CooldownRegistry.
func (r *MemoryRegistry) TryAcquire(_ context.Context, symbol string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.lastAlert[symbol]; ok && now.Sub(last) < r.cooldown {
		return false
	}
	r.lastAlert[symbol] = now
	return true
}

// RedisRegistry keys the cooldown on Redis with SET NX PX, so several
// processes share one gate. Redis being unreachable fails open.
type RedisRegistry struct {
	client   *redis.Client
	cooldown time.Duration
	logger   zerolog.Logger
}

// NewRedisRegistry constructs a Redis-backed registry.
func NewRedisRegistry(client *redis.Client, cooldown time.Duration, logger zerolog.Logger) *RedisRegistry {
	return &RedisRegistry{
		client:   client,
		cooldown: cooldown,
		logger:   logger.With().Str("component", "cooldown_redis").Logger(),
	}
}

// TryAcquire implements CooldownRegistry.
func (r *RedisRegistry) TryAcquire(ctx context.Context, symbol string, _ time.Time) bool {
	ok, err := r.client.SetNX(ctx, "perpwatch:cooldown:"+symbol, 1, r.cooldown).Result()
	if err != nil {
		r.logger.Warn().Err(err).Str("symbol", symbol).Msg("cooldown check failed, allowing alert")
		return true
	}
	return ok
}

var (
	_ CooldownRegistry = (*MemoryRegistry)(nil)
	_ CooldownRegistry = (*RedisRegistry)(nil)
)
