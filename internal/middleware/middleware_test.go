package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hello-drektopia/redditbot-go/internal/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(&config.Config{}, quietLogger(), NewMetrics())
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("t2_author"))
	}
	rl.Stop()
}

func TestRateLimiterBurstAndReset(t *testing.T) {
	assert := assert.New(t)

	cfg := &config.Config{RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}}
	rl := NewRateLimiter(cfg, quietLogger(), NewMetrics())
	defer rl.Stop()

	before := testutil.ToFloat64(rateLimitExceeded)

	assert.True(rl.Allow("a"))
	assert.True(rl.Allow("a"))
	assert.False(rl.Allow("a"))
	assert.True(rl.Allow("b"))
	assert.Equal(before+1, testutil.ToFloat64(rateLimitExceeded))

	rl.Reset("a")
	assert.True(rl.Allow("a"))
}

func TestRateLimiterEvictIdle(t *testing.T) {
	cfg := &config.Config{RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 1}}
	rl := NewRateLimiter(cfg, quietLogger(), NewMetrics())
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Allow("old")

	now = now.Add(2 * time.Hour)
	rl.Allow("fresh")

	assert.Equal(t, 1, rl.evictIdle())
	assert.Len(t, rl.limiters, 1)
}

func TestMetricsRouter(t *testing.T) {
	router := NewMetricsRouter("/metrics", "<ul><li>!help</li></ul>")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/commands", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "!help")

	NewMetrics().RecordReplyPosted()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "redditbot_replies_posted_total")
}
