package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// New creates a new cache based on configuration.
// For Community tier: returns LRU cache.
// For Pro tier with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For Pro tier without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Assessments are keyed by snapshot version so a reload never serves results
// computed against the previous corpus.
func assessmentKey(version, recordID string) string {
	return versionPrefix(version) + recordID
}

func versionPrefix(version string) string {
	return "assessment:" + version + ":"
}

// store is the byte-level half of domain.Cache that the assessment codec sits on.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func getAssessment(ctx context.Context, s store, version, recordID string) (*domain.Assessment, error) {
	data, err := s.Get(ctx, assessmentKey(version, recordID))
	if err != nil || data == nil {
		return nil, err
	}

	var a domain.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode cached assessment %s: %w", recordID, err)
	}
	return &a, nil
}

func setAssessment(ctx context.Context, s store, version string, a *domain.Assessment, ttl time.Duration) error {
	data, err := encodeAssessment(a)
	if err != nil {
		return err
	}
	return s.Set(ctx, assessmentKey(version, a.RecordID), data, ttl)
}

func encodeAssessment(a *domain.Assessment) ([]byte, error) {
	if a == nil || a.RecordID == "" {
		return nil, fmt.Errorf("assessment without record id")
	}
	return json.Marshal(a)
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis shared by every API node and worker
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 keeps the entry for at most its own TTL.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// GetAssessment reads through both levels.
func (c *TwoPhaseCache) GetAssessment(ctx context.Context, version, recordID string) (*domain.Assessment, error) {
	return getAssessment(ctx, c, version, recordID)
}

// SetAssessment writes to both levels. The remote copy is also indexed under
// its version so PurgeVersion can find it.
func (c *TwoPhaseCache) SetAssessment(ctx context.Context, version string, a *domain.Assessment, ttl time.Duration) error {
	if err := setAssessment(ctx, c.local, version, a, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.SetAssessment(ctx, version, a, ttl)
}

// PurgeVersion drops a version from both levels.
func (c *TwoPhaseCache) PurgeVersion(ctx context.Context, version string) error {
	if err := c.local.PurgeVersion(ctx, version); err != nil {
		return err
	}
	return c.remote.PurgeVersion(ctx, version)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}
