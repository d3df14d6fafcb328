// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter keyed per
// client. Buckets come from golang.org/x/time/rate, are created on first use
// and are swept once they have been idle for IdleTTL.
//
// Replays flagged by IdempotencyValidator never consume tokens, so a client
// retrying a create with the same Idempotency-Key is not punished for it.
// The limiter is process-local; it protects a single instance from bursts and
// is not an authorization mechanism.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to the identity of its bucket.
type KeyFunc func(*gin.Context) string

// KeyByIP buckets requests by client IP. The API has no authenticated
// identity to key on.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	// RPS is the refill rate in tokens per second. Zero refills nothing.
	RPS float64
	// Burst is the bucket size; values <= 0 mean 1.
	Burst int
	// Key selects the bucket; nil means KeyByIP.
	Key KeyFunc
	// IdleTTL evicts buckets unused for this long; <= 0 means 10 minutes.
	IdleTTL time.Duration
	// Exempt lists request paths that are never limited (e.g. /health).
	Exempt []string
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces per-key token buckets. Safe for concurrent use.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	key    KeyFunc
	ttl    time.Duration
	exempt map[string]struct{}

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
}

// sweepEvery is the number of lookups between idle-bucket sweeps.
const sweepEvery = 5000

// NewRateLimiter builds a RateLimiter from opts.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	rl := &RateLimiter{
		limit:   rate.Limit(opts.RPS),
		burst:   opts.Burst,
		key:     opts.Key,
		ttl:     opts.IdleTTL,
		exempt:  make(map[string]struct{}, len(opts.Exempt)),
		buckets: make(map[string]*bucket),
	}
	if rl.burst <= 0 {
		rl.burst = 1
	}
	if rl.key == nil {
		rl.key = KeyByIP()
	}
	if rl.ttl <= 0 {
		rl.ttl = 10 * time.Minute
	}
	for _, p := range opts.Exempt {
		rl.exempt[p] = struct{}{}
	}
	return rl
}

// limiter returns the bucket for key, creating it when absent. Every
// sweepEvery lookups it first drops buckets idle for at least ttl, so a stale
// bucket is recreated full rather than refreshed.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		rl.sweepLocked(now)
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.ttl {
			delete(rl.buckets, k)
		}
	}
}

// retryAfter is the whole number of seconds until one token is back, at
// least 1.
func (rl *RateLimiter) retryAfter() string {
	if rl.limit <= 0 || rl.limit == rate.Inf {
		return "1"
	}
	secs := int(math.Ceil(1 / float64(rl.limit)))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that should skip rate limiting.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware. A denied request gets a 429 error
// envelope with Retry-After, is counted under the rate_limited event and
// logged at warn.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.exempt[c.Request.URL.Path]; ok || IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.key(c)
		if rl.limiter(key, time.Now()).Allow() {
			c.Next()
			return
		}

		LoggerFrom(c).Warn().
			Str("event", "rate_limited").
			Str("bucket", key).
			Msg("rate limit exceeded")
		CountAPIError("rate_limited")
		c.Header("Retry-After", rl.retryAfter())
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		AbortWithError(c, http.StatusTooManyRequests, "")
	}
}
