// Package cache provides Redis-backed caches for hot routing lookups.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/ai/classify"
)

// DefaultClassificationTTL bounds how long a classification is reused.
const DefaultClassificationTTL = 15 * time.Minute

// ClassificationCacheStats counts cache traffic.
type ClassificationCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

type cachedClassification struct {
	Result   classify.HybridResult `json:"result"`
	CachedAt time.Time             `json:"cached_at"`
}

// ClassificationCache memoizes prompt classifications in Redis. Identical
// prompts skip the classifier entirely, which matters most when the model
// backend is involved.
type ClassificationCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger

	mu    sync.Mutex
	stats ClassificationCacheStats
}

// NewClassificationCache builds a cache on the given Redis client. A nil
// client yields a nil cache, which callers treat as caching disabled.
func NewClassificationCache(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *ClassificationCache {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultClassificationTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassificationCache{
		redis:  redisClient,
		ttl:    ttl,
		prefix: "classify:",
		logger: logger,
	}
}

// key hashes the prompt so arbitrary text never becomes a Redis key.
func (c *ClassificationCache) key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached classification for a prompt, if present.
func (c *ClassificationCache) Get(ctx context.Context, prompt string) (*classify.HybridResult, bool) {
	data, err := c.redis.Get(ctx, c.key(prompt)).Result()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.Debug("Classification cache read failed", zap.Error(err))
		c.miss()
		return nil, false
	}

	var entry cachedClassification
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.Debug("Classification cache entry corrupt", zap.Error(err))
		c.miss()
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return &entry.Result, true
}

// Set stores a classification under the prompt's hash with the cache TTL.
func (c *ClassificationCache) Set(ctx context.Context, prompt string, result *classify.HybridResult) error {
	entry := cachedClassification{
		Result:   *result,
		CachedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal classification cache entry: %w", err)
	}

	if err := c.redis.Set(ctx, c.key(prompt), data, c.ttl).Err(); err != nil {
		c.logger.Debug("Classification cache write failed", zap.Error(err))
		return fmt.Errorf("failed to set classification cache: %w", err)
	}

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()
	return nil
}

// Clear removes every cached classification.
func (c *ClassificationCache) Clear(ctx context.Context) error {
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan classification cache keys: %w", err)
	}

	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to clear classification cache: %w", err)
		}
	}
	return nil
}

// Stats returns a snapshot of the traffic counters.
func (c *ClassificationCache) Stats() ClassificationCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HitRate returns the hit percentage across all lookups.
func (c *ClassificationCache) HitRate() float64 {
	stats := c.Stats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0
	}
	return float64(stats.Hits) / float64(total) * 100
}

func (c *ClassificationCache) miss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}

// Classifier is the classification dependency the caching layer wraps.
type Classifier interface {
	Classify(ctx context.Context, prompt string) *classify.HybridResult
}

// CachingClassifier checks the cache before delegating to the wrapped
// classifier. Degraded results are never cached; the model backend may
// recover between requests.
type CachingClassifier struct {
	inner Classifier
	cache *ClassificationCache
}

// NewCachingClassifier wraps a classifier with the cache. A nil cache
// passes every prompt straight through.
func NewCachingClassifier(inner Classifier, cache *ClassificationCache) *CachingClassifier {
	return &CachingClassifier{inner: inner, cache: cache}
}

func (c *CachingClassifier) Classify(ctx context.Context, prompt string) *classify.HybridResult {
	if c.cache != nil {
		if result, ok := c.cache.Get(ctx, prompt); ok {
			return result
		}
	}

	result := c.inner.Classify(ctx, prompt)

	if c.cache != nil && result != nil && result.FinalMethod != classify.FinalHeuristicFallback {
		_ = c.cache.Set(ctx, prompt, result)
	}
	return result
}
