package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Super-Meta77/sefaria-backend/internal/platform/envutil"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

// Cache is a small byte-value cache for rendered read models.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	LocalSize     int
}

func ConfigFromEnv() Config {
	return Config{
		RedisAddr:     strings.TrimSpace(envutil.String("REDIS_ADDR", "")),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),
		Prefix:        envutil.String("CACHE_PREFIX", "sefaria:"),
		TTL:           envutil.Seconds("CACHE_TTL_SECONDS", 10*time.Minute),
		LocalSize:     envutil.Int("CACHE_LOCAL_SIZE", 512),
	}
}

// New returns a Redis-backed cache when RedisAddr is set, otherwise an in-process
// expiring LRU.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.RedisAddr == "" {
		log.Info("Using in-process cache", "size", cfg.LocalSize, "ttl", cfg.TTL.String())
		return NewLocal(cfg.LocalSize, cfg.TTL), nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("Using redis cache", "addr", cfg.RedisAddr, "ttl", cfg.TTL.String())
	return NewRedis(rdb, cfg.Prefix, cfg.TTL), nil
}

type redisCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *goredis.Client, prefix string, ttl time.Duration) Cache {
	return &redisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte) error {
	return c.rdb.Set(ctx, c.prefix+key, val, c.ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.prefix+k)
	}
	return c.rdb.Del(ctx, full...).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

type localCache struct {
	lru *expirable.LRU[string, []byte]
}

func NewLocal(size int, ttl time.Duration) Cache {
	if size <= 0 {
		size = 512
	}
	return &localCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *localCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *localCache) Set(_ context.Context, key string, val []byte) error {
	c.lru.Add(key, val)
	return nil
}

func (c *localCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.lru.Remove(k)
	}
	return nil
}

func (c *localCache) Close() error {
	c.lru.Purge()
	return nil
}
