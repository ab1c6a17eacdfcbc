package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// defaultBucketTTL is how long an idle caller keeps its token bucket.
const defaultBucketTTL = 10 * time.Minute

type keyFunc func(*gin.Context) string

// KeyByUserOrIP buckets identified callers by user ID and anonymous ones by
// client IP. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := userIDFromCtx(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter is a process-local token bucket per caller. Buckets live in a
// go-cache keyed by keyFn; each hit extends the bucket's TTL and the cache
// janitor drops idle ones.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	keyFn   keyFunc
	ttl     time.Duration
	buckets *cache.Cache
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (coerced to at least 1). Idle buckets expire after ten minutes.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return newRateLimiter(rps, burst, keyFn, defaultBucketTTL)
}

func newRateLimiter(rps float64, burst int, keyFn keyFunc, ttl time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		ttl:     ttl,
		buckets: cache.New(ttl, ttl),
	}
}

// limiter returns the bucket for key, creating it on first use.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		rl.buckets.Set(key, lim, rl.ttl)
		return lim
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	if err := rl.buckets.Add(key, lim, rl.ttl); err != nil {
		// Lost the race to another request for the same caller.
		if v, ok := rl.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator exempted this request
// because it replays a stored send.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler rejects callers over their budget with 429 and Retry-After.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || rl.limiter(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
