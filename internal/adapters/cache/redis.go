package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

const sweepLockKey = "escrow:sweep:lock"

// RedisSweepLock is a SetNX lease keeping worker replicas from scanning the
// same sweep batch. It is advisory: the per-escrow claim columns remain the
// at-most-once guard.
type RedisSweepLock struct {
	client *redis.Client
}

func NewRedisSweepLock(client *redis.Client) *RedisSweepLock {
	return &RedisSweepLock{client: client}
}

func (l *RedisSweepLock) Acquire(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, sweepLockKey, token, ttl).Result()
}

func (l *RedisSweepLock) Release(ctx context.Context, token string) error {
	// Only the holder may release; a compare-and-delete avoids clearing a
	// lease that already expired and was re-acquired elsewhere.
	const script = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	return l.client.Eval(ctx, script, []string{sweepLockKey}, token).Err()
}

const ruleCacheKey = "escrow:rules:v1"

// RedisRuleCache keeps the rule set warm between sweeps. Errors degrade to a
// cache miss so the repository stays the source of truth.
type RedisRuleCache struct {
	client *redis.Client
}

func NewRedisRuleCache(client *redis.Client) *RedisRuleCache {
	return &RedisRuleCache{client: client}
}

func (c *RedisRuleCache) Get(ctx context.Context) ([]domain.AutoReleaseRule, bool, error) {
	raw, err := c.client.Get(ctx, ruleCacheKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rules []domain.AutoReleaseRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, false, nil
	}
	return rules, true, nil
}

func (c *RedisRuleCache) Set(ctx context.Context, rules []domain.AutoReleaseRule, ttl time.Duration) error {
	b, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ruleCacheKey, b, ttl).Err()
}
