package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/hello-drektopia/redditbot-go/internal/middleware"
	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service remembers moderation verdicts so repeated text is not re-checked
type Service interface {
	Get(ctx context.Context, input, model string) (flagged bool, found bool)
	Set(ctx context.Context, input, model string, flagged bool) error
}

// Cache implements caching service
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	metrics *middleware.Metrics
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.Config, logger *logrus.Logger, metrics *middleware.Metrics) *Cache {
	if !cfg.Cache.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.Cache.TTL, cfg.Cache.TTL*2),
		logger:  logger,
		metrics: metrics,
		maxSize: cfg.Cache.MaxSize,
	}
}

// Get retrieves a cached verdict
func (c *Cache) Get(ctx context.Context, input, model string) (bool, bool) {
	if !c.enabled {
		return false, false
	}

	if val, found := c.cache.Get(c.generateKey(input, model)); found {
		entry := val.(*models.CacheEntry)
		c.metrics.RecordCacheHit()
		c.logger.WithFields(logrus.Fields{
			"model": model,
			"age":   time.Since(entry.CreatedAt),
		}).Debug("Moderation cache hit")
		return entry.Flagged, true
	}

	c.metrics.RecordCacheMiss()
	return false, false
}

// Set stores a verdict
func (c *Cache) Set(ctx context.Context, input, model string, flagged bool) error {
	if !c.enabled {
		return nil
	}

	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.cache.Flush()
		}
	}

	c.cache.SetDefault(c.generateKey(input, model), &models.CacheEntry{
		Input:     input,
		Flagged:   flagged,
		Model:     model,
		CreatedAt: time.Now(),
	})

	return nil
}

// generateKey creates a unique cache key
func (c *Cache) generateKey(input, model string) string {
	hash := sha256.Sum256([]byte(model + ":" + input))
	return hex.EncodeToString(hash[:])
}
