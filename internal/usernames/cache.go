package usernames

import (
	"context"
	"sync"
	"time"

	"github.com/brydisanto/smash-the-wall/internal/config"
	"github.com/redis/go-redis/v9"
)

// Cache stores resolved usernames keyed by lowercased address. A stored
// empty string is a negative entry: the address was looked up and has no
// username, so it must not be looked up again.
type Cache interface {
	Get(ctx context.Context, addr string) (username string, found bool)
	Set(ctx context.Context, addr, username string)
}

// RedisCache keeps entries in Redis with a TTL, so staleness is bounded
// and memory is reclaimed without any process-side bookkeeping.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(cfg *config.Config) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &RedisCache{rdb: rdb, ttl: cfg.RedisTTL()}
}

func (c *RedisCache) Get(ctx context.Context, addr string) (string, bool) {
	v, err := c.rdb.Get(ctx, "username:"+addr).Result()
	if err != nil {
		// redis.Nil and transport errors both read as a miss; a transport
		// error just costs one extra external lookup.
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, addr, username string) {
	_ = c.rdb.Set(ctx, "username:"+addr, username, c.ttl).Err()
}

// MemoryCache is the fallback when Redis is not configured. Bounded: once
// cap is exceeded roughly half the entries are dropped, which is crude but
// keeps a long-running process from growing without limit.
type MemoryCache struct {
	mu  sync.RWMutex
	cap int
	m   map[string]string
}

func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &MemoryCache{cap: capacity, m: make(map[string]string, 64)}
}

func (c *MemoryCache) Get(_ context.Context, addr string) (string, bool) {
	c.mu.RLock()
	v, ok := c.m[addr]
	c.mu.RUnlock()
	return v, ok
}

func (c *MemoryCache) Set(_ context.Context, addr, username string) {
	c.mu.Lock()
	if len(c.m) >= c.cap {
		drop := c.cap / 2
		for k := range c.m {
			if drop == 0 {
				break
			}
			delete(c.m, k)
			drop--
		}
	}
	c.m[addr] = username
	c.mu.Unlock()
}
