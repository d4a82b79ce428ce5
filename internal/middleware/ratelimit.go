package middleware

import (
	"sync"
	"time"

	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter limits how often a single author can trigger the bot
type RateLimiter interface {
	Allow(authorID string) bool
	Reset(authorID string)
}

type authorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AuthorRateLimiter implements per-author rate limiting
type AuthorRateLimiter struct {
	enabled  bool
	limiters map[string]*authorLimiter
	mu       sync.Mutex
	rpm      int
	burst    int
	idleTTL  time.Duration
	logger   *logrus.Logger
	metrics  *Metrics
	stop     chan struct{}
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.Config, logger *logrus.Logger, metrics *Metrics) *AuthorRateLimiter {
	if !cfg.RateLimit.Enabled {
		return &AuthorRateLimiter{enabled: false}
	}

	rl := &AuthorRateLimiter{
		enabled:  true,
		limiters: make(map[string]*authorLimiter),
		rpm:      cfg.RateLimit.RequestsPerMinute,
		burst:    cfg.RateLimit.Burst,
		idleTTL:  time.Hour,
		logger:   logger,
		metrics:  metrics,
		stop:     make(chan struct{}),
		now:      time.Now,
	}

	go rl.cleanup(10 * time.Minute)

	return rl
}

// Allow checks if an author is allowed to trigger the bot
func (r *AuthorRateLimiter) Allow(authorID string) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(authorID).Allow()
	if !allowed {
		r.logger.WithField("author_id", authorID).Warn("Rate limit exceeded")
		r.metrics.RecordRateLimitExceeded()
	}

	return allowed
}

// Reset resets the rate limiter for an author
func (r *AuthorRateLimiter) Reset(authorID string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, authorID)
	r.mu.Unlock()
}

// Stop ends the cleanup loop
func (r *AuthorRateLimiter) Stop() {
	if r.enabled {
		close(r.stop)
	}
}

func (r *AuthorRateLimiter) getLimiter(authorID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.limiters[authorID]
	if !exists {
		// Rate per second = RPM / 60
		rps := float64(r.rpm) / 60.0
		entry = &authorLimiter{limiter: rate.NewLimiter(rate.Limit(rps), r.burst)}
		r.limiters[authorID] = entry
	}
	entry.lastSeen = r.now()

	return entry.limiter
}

// evictIdle drops limiters not used within idleTTL
func (r *AuthorRateLimiter) evictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	evicted := 0
	for id, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.limiters, id)
			evicted++
		}
	}
	return evicted
}

func (r *AuthorRateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if n := r.evictIdle(); n > 0 {
				r.logger.WithField("evicted", n).Debug("Evicted idle rate limiters")
			}
		}
	}
}
