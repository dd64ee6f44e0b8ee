package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/procuresight/internal/domain"
)

const keyPrefix = "procuresight:"

// setIndexed stores an assessment and records its key in the version index.
// The index outlives every member it lists.
var setIndexed = redis.NewScript(`
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	redis.call('SADD', KEYS[2], KEYS[1])
	local ttl = redis.call('PTTL', KEYS[2])
	if ttl < tonumber(ARGV[2]) then
		redis.call('PEXPIRE', KEYS[2], ARGV[2])
	end
	return 1
`)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}

// GetAssessment retrieves a cached assessment.
func (c *RedisCache) GetAssessment(ctx context.Context, version, recordID string) (*domain.Assessment, error) {
	return getAssessment(ctx, c, version, recordID)
}

// SetAssessment stores an assessment and indexes it under its version.
func (c *RedisCache) SetAssessment(ctx context.Context, version string, a *domain.Assessment, ttl time.Duration) error {
	data, err := encodeAssessment(a)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	keys := []string{keyPrefix + assessmentKey(version, a.RecordID), indexKey(version)}
	return setIndexed.Run(ctx, c.client, keys, data, ttl.Milliseconds()).Err()
}

// PurgeVersion deletes every indexed assessment of version and the index itself.
func (c *RedisCache) PurgeVersion(ctx context.Context, version string) error {
	index := indexKey(version)
	members, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("read version index: %w", err)
	}
	return c.client.Del(ctx, append(members, index)...).Err()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func indexKey(version string) string {
	return keyPrefix + "index:" + version
}
