package embedding

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// Cache persists vectors between runs. storage.SQLiteStorage satisfies it.
type Cache interface {
	SaveEmbedding(key string, vector []float32, version string) error
	GetEmbedding(key string) ([]float32, string, error)
}

// CachedProvider memoizes a Provider in memory and, when a Cache is set,
// in persistent storage. Persisted entries are only reused when their
// version matches the wrapped provider's Model().
type CachedProvider struct {
	inner  Provider
	store  Cache
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewCachedProvider wraps inner. store may be nil.
func NewCachedProvider(inner Provider, store Cache, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:  inner,
		store:  store,
		logger: logger,
		cache:  make(map[string][]float32),
	}
}

// Embed returns a cached vector or computes and caches a new one.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(text)

	c.mu.RLock()
	if vec, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return vec, nil
	}
	c.mu.RUnlock()

	version := c.inner.Model()
	if c.store != nil {
		vec, storedVersion, err := c.store.GetEmbedding(key)
		if err != nil {
			c.logger.Warn("failed to read cached embedding", zap.Error(err))
		} else if vec != nil && storedVersion == version {
			c.remember(key, vec)
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.remember(key, vec)
	if c.store != nil {
		if err := c.store.SaveEmbedding(key, vec, version); err != nil {
			c.logger.Warn("failed to save embedding", zap.Error(err))
		}
	}
	return vec, nil
}

// Model returns the wrapped provider's model.
func (c *CachedProvider) Model() string {
	return c.inner.Model()
}

// Len reports how many vectors are held in memory.
func (c *CachedProvider) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *CachedProvider) remember(key string, vec []float32) {
	c.mu.Lock()
	c.cache[key] = vec
	c.mu.Unlock()
}

// CacheKey derives the cache key for text.
func CacheKey(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
