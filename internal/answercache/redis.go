package answercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

const redisKeyPrefix = "answer:"

// RedisCache backs the answer cache with redis so repeated queries hit
// across processes. TTL eviction is delegated to redis.
type RedisCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisCache(log *logger.Logger, cfg Config) (*RedisCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{
		log: log.With("service", "RedisAnswerCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (c *RedisCache) Get(ctx context.Context, query string) (Entry, bool, error) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+Fingerprint(query)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Corrupt payload; treat as a miss so it gets overwritten.
		c.log.Warn("bad cached answer payload", "error", err)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, query string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, redisKeyPrefix+Fingerprint(query), raw, c.ttl).Err()
}

func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// NewFromEnv picks redis when REDIS_ADDR is set, falling back to the
// in-process cache otherwise.
func NewFromEnv(log *logger.Logger) (Cache, error) {
	cfg := ConfigFromEnv()
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		return NewRedisCache(log, cfg)
	}
	return NewMemoryCache(log, cfg), nil
}
