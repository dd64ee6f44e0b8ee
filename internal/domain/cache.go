package domain

import (
	"context"
	"time"
)

// Cache keeps computed assessments between requests. Entries are keyed by
// snapshot version so a reload can drop everything computed from the old
// corpus at once.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// GetAssessment returns nil, nil when nothing is cached for the record
	// under version.
	GetAssessment(ctx context.Context, version, recordID string) (*Assessment, error)
	SetAssessment(ctx context.Context, version string, a *Assessment, ttl time.Duration) error

	// PurgeVersion removes every assessment cached under version.
	PurgeVersion(ctx context.Context, version string) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache.
type CacheConfig struct {
	Type string // "memory" or "redis"

	// in-process LRU, also the L1 of the two-phase cache
	LocalMaxSize int
	LocalTTL     time.Duration

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase puts the LRU in front of Redis.
	EnableTwoPhase bool
}
